package allocator

import "time"

// slotSet is a minute-granularity occupancy bitmap anchored at a
// fixed instant.  Marks are rounded outward to whole minutes, so
// a clear range is a guarantee of freedom while a set bit only
// means "possibly busy" and needs an exact interval check.
type slotSet struct {
	anchor   time.Time
	bits     []uint64
	complete bool // false once a mark fell outside the tracked range
}

func newSlotSet(anchor time.Time, horizon time.Duration) *slotSet {
	minutes := int(horizon / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return &slotSet{
		anchor:   anchor.Truncate(time.Minute),
		bits:     make([]uint64, (minutes+63)/64),
		complete: true,
	}
}

func (s *slotSet) minuteIndex(t time.Time) int {
	return int(t.Sub(s.anchor) / time.Minute)
}

// mark records [start, end) as occupied, rounding outward.
func (s *slotSet) mark(start, end time.Time) {
	lo := s.minuteIndex(start.Truncate(time.Minute))
	hi := s.minuteIndex(end.Truncate(time.Minute))
	if end.After(end.Truncate(time.Minute)) {
		hi++
	}
	if lo < 0 {
		lo = 0
		s.complete = false
	}
	if max := len(s.bits) * 64; hi > max {
		hi = max
		s.complete = false
	}
	for i := lo; i < hi; i++ {
		s.bits[i/64] |= 1 << uint(i%64)
	}
}

// covered reports whether [start, end) lies entirely inside the
// tracked range with no marks lost to clamping.
func (s *slotSet) covered(start, end time.Time) bool {
	return s.complete && s.minuteIndex(start) >= 0 && s.minuteIndex(end) <= len(s.bits)*64
}

// anyMarked reports whether any minute of [start, end) is set.
func (s *slotSet) anyMarked(start, end time.Time) bool {
	lo := s.minuteIndex(start.Truncate(time.Minute))
	hi := s.minuteIndex(end.Truncate(time.Minute))
	if end.After(end.Truncate(time.Minute)) {
		hi++
	}
	if lo < 0 {
		lo = 0
	}
	if max := len(s.bits) * 64; hi > max {
		hi = max
	}
	for i := lo; i < hi; i++ {
		if s.bits[i/64]&(1<<uint(i%64)) != 0 {
			return true
		}
	}
	return false
}
