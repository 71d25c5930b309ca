package allocator

import (
	"fmt"
	"time"

	"github.com/seatwise/table-allocation/internal/policy"
)

// BookingWindow is the derived time footprint of a booking: the
// dining interval plus the buffered block interval during which
// the tables count as occupied.  Windows are never persisted;
// every planning pass recomputes them from the current policy.
type BookingWindow struct {
	Service     string        `json:"service"`
	Duration    time.Duration `json:"-"`
	DiningStart time.Time     `json:"diningStart"`
	DiningEnd   time.Time     `json:"diningEnd"`
	BlockStart  time.Time     `json:"blockStart"`
	BlockEnd    time.Time     `json:"blockEnd"`
	Clamped     bool          `json:"clampedToServiceEnd"`
}

// Overlaps reports whether the block interval intersects [start, end).
func (w BookingWindow) Overlaps(start, end time.Time) bool {
	return w.BlockStart.Before(end) && start.Before(w.BlockEnd)
}

// WindowRequest carries the inputs needed to derive a booking
// window.  StartAt wins when present; otherwise BookingDate and
// StartTime are interpreted in the venue timezone.
type WindowRequest struct {
	StartAt     *time.Time
	BookingDate string // YYYY-MM-DD
	StartTime   string // HH:MM
	PartySize   int
	ServiceHint string
	FailHard    bool // disable fallback service substitution
}

// ComputeWindow derives the booking window under the given policy.
// The service period comes from the explicit hint when valid, or a
// time-of-day lookup otherwise.  The block end is clamped to the
// service boundary unless the service allows overrun; a clamp that
// would leave a non-positive dining interval is a SERVICE_OVERRUN.
func ComputeWindow(req WindowRequest, pol policy.VenuePolicy) (BookingWindow, error) {
	start, err := resolveStart(req, pol)
	if err != nil {
		return BookingWindow{}, err
	}
	svc, ok := pol.Service(req.ServiceHint)
	if !ok {
		minute := start.Hour()*60 + start.Minute()
		svc, ok = pol.ServiceAt(minute)
		if !ok {
			return BookingWindow{}, newError(CodeServiceNotFound,
				fmt.Sprintf("no service period covers %s", start.Format("15:04"))).
				withDetails(map[string]any{"requestedStart": start.Format(time.RFC3339)})
		}
	}
	return windowForService(start, req.PartySize, svc, pol)
}

// ComputeWindowWithFallback behaves like ComputeWindow but, when
// no service covers the requested start, substitutes a fallback
// service (the hint when it names a real service, otherwise the
// first configured one) so best-effort planning can proceed.  The
// returned flag and service name let callers record that the
// window is a substitute.  FailHard disables the fallback.
func ComputeWindowWithFallback(req WindowRequest, pol policy.VenuePolicy) (BookingWindow, bool, string, error) {
	win, err := ComputeWindow(req, pol)
	if err == nil {
		return win, false, "", nil
	}
	if !HasCode(err, CodeServiceNotFound) || req.FailHard {
		return BookingWindow{}, false, "", err
	}
	fallback, ok := pol.Service(req.ServiceHint)
	if !ok {
		if len(pol.Services) == 0 {
			return BookingWindow{}, false, "", err
		}
		fallback = pol.Services[0]
	}
	start, rerr := resolveStart(req, pol)
	if rerr != nil {
		return BookingWindow{}, false, "", rerr
	}
	win, werr := windowForService(start, req.PartySize, fallback, pol)
	if werr != nil {
		return BookingWindow{}, false, "", werr
	}
	return win, true, fallback.Key, nil
}

// resolveStart turns the request into a concrete instant in the
// venue timezone.
func resolveStart(req WindowRequest, pol policy.VenuePolicy) (time.Time, error) {
	loc := pol.Location()
	if req.StartAt != nil {
		return req.StartAt.In(loc), nil
	}
	if req.BookingDate == "" || req.StartTime == "" {
		return time.Time{}, newError(CodeInvalidInput, "booking has neither a start instant nor a date and time")
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", req.BookingDate+" "+req.StartTime, loc)
	if err != nil {
		return time.Time{}, wrapError(CodeInvalidInput, "unparseable booking date/time", err)
	}
	return start, nil
}

func windowForService(start time.Time, partySize int, svc policy.ServiceDefinition, pol policy.VenuePolicy) (BookingWindow, error) {
	duration := pol.DurationFor(partySize)
	pre := time.Duration(pol.Buffers.PreMinutes) * time.Minute
	post := time.Duration(pol.Buffers.PostMinutes) * time.Minute

	diningStart := start
	diningEnd := start.Add(duration)
	blockStart := diningStart.Add(-pre)
	blockEnd := diningEnd.Add(post)

	midnight := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	serviceEnd := midnight.Add(time.Duration(svc.EndMinute) * time.Minute)

	clamped := false
	if blockEnd.After(serviceEnd) && !svc.AllowOverrun {
		blockEnd = serviceEnd
		diningEnd = blockEnd.Add(-post)
		clamped = true
		if !diningEnd.After(diningStart) {
			return BookingWindow{}, newError(CodeServiceOverrun,
				fmt.Sprintf("booking cannot fit before %s close", svc.Key)).
				withDetails(map[string]any{
					"service":    svc.Key,
					"serviceEnd": serviceEnd.UTC().Format(time.RFC3339),
				})
		}
	}

	return BookingWindow{
		Service:     svc.Key,
		Duration:    diningEnd.Sub(diningStart),
		DiningStart: diningStart.UTC(),
		DiningEnd:   diningEnd.UTC(),
		BlockStart:  blockStart.UTC(),
		BlockEnd:    blockEnd.UTC(),
		Clamped:     clamped,
	}, nil
}
