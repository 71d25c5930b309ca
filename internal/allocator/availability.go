package allocator

import (
	"time"

	"github.com/seatwise/table-allocation/internal/model"
	"github.com/seatwise/table-allocation/internal/policy"
)

// IntervalSource identifies what registered a busy interval.
type IntervalSource string

const (
	SourceBooking IntervalSource = "booking"
	SourceHold    IntervalSource = "hold"
)

// BusyWindow is one occupied interval on one table.
type BusyWindow struct {
	TableID string         `json:"tableId"`
	Start   time.Time      `json:"start"`
	End     time.Time      `json:"end"`
	Source  IntervalSource `json:"source"`
	RefID   string         `json:"refId"` // booking id or hold id
}

func (b BusyWindow) overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && start.Before(b.End)
}

// FilterMode controls how TimeFilter treats the index.  Approx is
// a pass-through used when the index was not built for the target
// day (pruning disabled, or context loading skipped).
type FilterMode string

const (
	FilterStrict FilterMode = "strict"
	FilterApprox FilterMode = "approx"
)

type availabilityEntry struct {
	windows []BusyWindow
	slots   *slotSet
}

// AvailabilityIndex holds the busy intervals for every table
// touched by a day's bookings and live holds.  It answers
// point-in-window freedom queries during planning and reports the
// concrete conflicts when a candidate is rejected.
type AvailabilityIndex struct {
	entries map[string]*availabilityEntry
	anchor  time.Time
	horizon time.Duration
}

// AvailabilityParams are the inputs for building an index.
type AvailabilityParams struct {
	TargetBookingID string
	Bookings        []model.ContextBooking
	Holds           []model.Hold
	ExcludeHoldID   string
	Policy          policy.VenuePolicy
	Now             time.Time
	TargetWindow    *BookingWindow
	PruneToWindow   bool          // drop bookings outside the target window ± padding
	PrunePadding    time.Duration // slack around the target window when pruning
}

// BuildAvailabilityIndex projects blocking bookings and live
// holds into per-table busy intervals.  The target booking itself
// and the excluded hold are skipped so re-validation does not see
// its own footprint.  With PruneToWindow set, bookings whose
// window misses the padded target window are not indexed at all.
func BuildAvailabilityIndex(p AvailabilityParams) *AvailabilityIndex {
	idx := &AvailabilityIndex{
		entries: make(map[string]*availabilityEntry),
		horizon: 36 * time.Hour,
	}
	if p.TargetWindow != nil {
		idx.anchor = p.TargetWindow.BlockStart.Add(-12 * time.Hour)
	} else {
		idx.anchor = p.Now.Add(-12 * time.Hour)
	}

	for _, b := range p.Bookings {
		if b.ID == p.TargetBookingID || !model.BlocksInventory(b.Status) || len(b.AssignedTableIDs) == 0 {
			continue
		}
		win, _, _, err := ComputeWindowWithFallback(WindowRequest{
			StartAt:     b.StartAt,
			BookingDate: b.BookingDate,
			StartTime:   b.StartTime,
			PartySize:   b.PartySize,
			ServiceHint: b.ServiceHint,
		}, p.Policy)
		if err != nil {
			// A booking whose window cannot be derived cannot block tables.
			continue
		}
		if p.PruneToWindow && p.TargetWindow != nil {
			lo := p.TargetWindow.BlockStart.Add(-p.PrunePadding)
			hi := p.TargetWindow.BlockEnd.Add(p.PrunePadding)
			if !win.Overlaps(lo, hi) {
				continue
			}
		}
		for _, tableID := range b.AssignedTableIDs {
			idx.register(BusyWindow{
				TableID: tableID,
				Start:   win.BlockStart,
				End:     win.BlockEnd,
				Source:  SourceBooking,
				RefID:   b.ID,
			})
		}
	}

	for _, h := range p.Holds {
		if h.ID == p.ExcludeHoldID || h.Expired(p.Now) {
			continue
		}
		for _, tableID := range h.TableIDs {
			idx.register(BusyWindow{
				TableID: tableID,
				Start:   h.StartAt,
				End:     h.EndAt,
				Source:  SourceHold,
				RefID:   h.ID,
			})
		}
	}
	return idx
}

func (idx *AvailabilityIndex) register(w BusyWindow) {
	entry := idx.entries[w.TableID]
	if entry == nil {
		entry = &availabilityEntry{slots: newSlotSet(idx.anchor, idx.horizon)}
		idx.entries[w.TableID] = entry
	}
	entry.windows = append(entry.windows, w)
	entry.slots.mark(w.Start, w.End)
}

// IsFree reports whether the table has no registered interval
// overlapping [start, end).  Tables with no entry are free.
func (idx *AvailabilityIndex) IsFree(tableID string, start, end time.Time) bool {
	entry := idx.entries[tableID]
	if entry == nil {
		return true
	}
	// Bitmap fast path: a clear minute range proves freedom.
	if entry.slots.covered(start, end) && !entry.slots.anyMarked(start, end) {
		return true
	}
	for _, w := range entry.windows {
		if w.overlaps(start, end) {
			return false
		}
	}
	return true
}

// TimeFilter drops tables that are not free for the window.  In
// approx mode it returns the input unchanged.
func (idx *AvailabilityIndex) TimeFilter(tables []model.Table, win BookingWindow, mode FilterMode) []model.Table {
	if mode == FilterApprox || idx == nil {
		return tables
	}
	out := tables[:0:0]
	for _, t := range tables {
		if idx.IsFree(t.ID, win.BlockStart, win.BlockEnd) {
			out = append(out, t)
		}
	}
	return out
}

// BusyWindows returns every registered interval, grouped by
// table, for floor-plan style views.
func (idx *AvailabilityIndex) BusyWindows() map[string][]BusyWindow {
	out := make(map[string][]BusyWindow, len(idx.entries))
	for id, entry := range idx.entries {
		out[id] = append([]BusyWindow(nil), entry.windows...)
	}
	return out
}

// ConflictsFor lists every registered interval on the given
// tables overlapping [start, end).
func (idx *AvailabilityIndex) ConflictsFor(tableIDs []string, start, end time.Time) []BusyWindow {
	var conflicts []BusyWindow
	for _, id := range tableIDs {
		entry := idx.entries[id]
		if entry == nil {
			continue
		}
		for _, w := range entry.windows {
			if w.overlaps(start, end) {
				conflicts = append(conflicts, w)
			}
		}
	}
	return conflicts
}
