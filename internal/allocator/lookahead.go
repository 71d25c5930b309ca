package allocator

import (
	"time"

	"github.com/seatwise/table-allocation/internal/model"
	"github.com/seatwise/table-allocation/internal/policy"
)

// LookaheadConfig bounds the penalizer.  It exists to steer
// today's choice away from plans that would strand a near-future
// party, so every knob is a cost ceiling rather than a quality
// target.
type LookaheadConfig struct {
	Enabled        bool
	Window         time.Duration // how far past the current start future bookings are considered
	Penalty        float64       // score added per future booking the plan would block
	BlockThreshold float64       // total penalty at or above which the plan is dropped
	MaxPlans       int           // only the top-ranked plans are examined
	TimeBudget     time.Duration // overall wall-clock budget for the whole pass
}

// LookaheadInput is everything the penalizer needs besides the
// ranked plans themselves.
type LookaheadInput struct {
	Config          LookaheadConfig
	CurrentWindow   BookingWindow
	ContextBookings []model.ContextBooking
	Policy          policy.VenuePolicy
	Tables          []model.Table
	Index           *AvailabilityIndex
	Graph           *AdjacencyGraph
	Clock           func() time.Time
}

// LookaheadConflict records one future booking a plan would block.
type LookaheadConflict struct {
	PlanKey   string `json:"planKey"`
	BookingID string `json:"bookingId"`
}

// LookaheadReport summarizes what the pass did.
type LookaheadReport struct {
	FutureBookings  int                 `json:"futureBookings"`
	PlansExamined   int                 `json:"plansExamined"`
	PlansPenalized  int                 `json:"plansPenalized"`
	PlansRemoved    []string            `json:"plansRemoved"`
	Conflicts       []LookaheadConflict `json:"conflicts"`
	BudgetExhausted bool                `json:"budgetExhausted"`
}

// ApplyLookahead penalizes plans that would leave upcoming
// unassigned bookings without a seat.  For each examined plan the
// plan's tables are treated as taken and every relevant future
// booking is re-checked: first a capacity upper bound, then a
// cheap planning pass.  A blocked booking adds a fixed penalty;
// reaching the block threshold removes the plan outright.
// Surviving plans are re-sorted under the standard ordering.
func ApplyLookahead(plans []*Plan, in LookaheadInput) ([]*Plan, LookaheadReport) {
	var report LookaheadReport
	if !in.Config.Enabled || len(plans) == 0 {
		return plans, report
	}
	clock := in.Clock
	if clock == nil {
		clock = time.Now
	}
	future := futureBookings(in)
	report.FutureBookings = len(future)
	if len(future) == 0 {
		return plans, report
	}

	deadline := time.Time{}
	if in.Config.TimeBudget > 0 {
		deadline = clock().Add(in.Config.TimeBudget)
	}
	limit := in.Config.MaxPlans
	if limit <= 0 || limit > len(plans) {
		limit = len(plans)
	}

	removed := make(map[string]bool)
	for i := 0; i < limit; i++ {
		if !deadline.IsZero() && clock().After(deadline) {
			report.BudgetExhausted = true
			break
		}
		plan := plans[i]
		report.PlansExamined++
		taken := make(map[string]bool, len(plan.TableIDs))
		for _, id := range plan.TableIDs {
			taken[id] = true
		}

		penalty := 0.0
		for _, fb := range future {
			if !deadline.IsZero() && clock().After(deadline) {
				report.BudgetExhausted = true
				break
			}
			if futureSeatable(fb, taken, in) {
				continue
			}
			penalty += in.Config.Penalty
			report.Conflicts = append(report.Conflicts, LookaheadConflict{PlanKey: plan.Key, BookingID: fb.booking.ID})
		}
		if penalty == 0 {
			continue
		}
		if in.Config.BlockThreshold > 0 && penalty >= in.Config.BlockThreshold {
			removed[plan.Key] = true
			report.PlansRemoved = append(report.PlansRemoved, plan.Key)
			continue
		}
		report.PlansPenalized++
		plan.Score += penalty
		if plan.Breakdown != nil {
			plan.Breakdown["lookaheadPenalty"] = penalty
		}
	}

	if len(removed) > 0 {
		kept := plans[:0]
		for _, p := range plans {
			if !removed[p.Key] {
				kept = append(kept, p)
			}
		}
		plans = kept
	}
	sortPlans(plans)
	return plans, report
}

type futureBooking struct {
	booking model.ContextBooking
	window  BookingWindow
}

// futureBookings selects the still-unassigned bookings that start
// within the lookahead window and whose footprint overlaps the
// current one.
func futureBookings(in LookaheadInput) []futureBooking {
	var out []futureBooking
	horizon := in.CurrentWindow.DiningStart.Add(in.Config.Window)
	for _, b := range in.ContextBookings {
		if len(b.AssignedTableIDs) > 0 || !model.BlocksInventory(b.Status) {
			continue
		}
		win, _, _, err := ComputeWindowWithFallback(WindowRequest{
			StartAt:     b.StartAt,
			BookingDate: b.BookingDate,
			StartTime:   b.StartTime,
			PartySize:   b.PartySize,
			ServiceHint: b.ServiceHint,
		}, in.Policy)
		if err != nil {
			continue
		}
		if !win.DiningStart.After(in.CurrentWindow.DiningStart) || win.DiningStart.After(horizon) {
			continue
		}
		if !win.Overlaps(in.CurrentWindow.BlockStart, in.CurrentWindow.BlockEnd) {
			continue
		}
		out = append(out, futureBooking{booking: b, window: win})
	}
	return out
}

// futureSeatable checks whether a future booking can still be
// matched once the candidate plan's tables are taken.  A capacity
// upper bound runs first so the planner is only invoked when a
// solution is at least arithmetically possible.
func futureSeatable(fb futureBooking, taken map[string]bool, in LookaheadInput) bool {
	var avail []model.Table
	total := 0
	for _, t := range in.Tables {
		if taken[t.ID] || !t.Active {
			continue
		}
		if in.Index != nil && !in.Index.IsFree(t.ID, fb.window.BlockStart, fb.window.BlockEnd) {
			continue
		}
		avail = append(avail, t)
		total += t.Capacity
	}
	if total < fb.booking.PartySize {
		return false
	}
	res := BuildPlans(PlannerInput{
		Tables:             avail,
		PartySize:          fb.booking.PartySize,
		Graph:              in.Graph,
		Weights:            in.Policy.Weights,
		RequireAdjacency:   false,
		EnableCombinations: true,
		KMax:               2,
		MaxPlansPerSlack:   1,
		MaxEvaluations:     200,
	})
	return len(res.Plans) > 0
}
