package allocator

import (
	"context"
	"errors"
	"fmt"

	"github.com/seatwise/table-allocation/internal/model"
	"github.com/seatwise/table-allocation/internal/policy"
)

// Quote failure reasons.  A quote without a viable plan is an
// expected outcome; callers branch on these strings rather than
// on error codes.
const (
	ReasonNoTablesForWindow    = "No tables available for requested window"
	ReasonInsufficientFiltered = "Insufficient filtered capacity"
	ReasonInsufficientGlobal   = "Insufficient global capacity"
	ReasonHoldConflicts        = "Hold conflicts prevented all candidates"
	ReasonNoSuitableTables     = "No suitable tables available"
)

// Relaxation strategy names, applied in this order until one
// yields plans.  The winning strategy is recorded on the result
// so callers can surface why a best-effort plan was chosen.
const (
	RelaxStrict           = "strict"
	RelaxNoAdjacency      = "no-adjacency"
	RelaxMinParty         = "relaxed-min-party"
	RelaxCapacityOverflow = "capacity-overflow"
)

// QuoteRequest asks for the best available plan for a booking.
type QuoteRequest struct {
	BookingID   string
	ZoneID      string // restrict candidates to one zone
	RequestedBy string
}

// QuoteResult is the quote outcome: a held candidate plan with
// ranked alternates, or a structured failure reason.
type QuoteResult struct {
	Hold            *model.Hold        `json:"hold,omitempty"`
	Candidate       *Plan              `json:"candidate,omitempty"`
	Alternates      []*Plan            `json:"alternates,omitempty"`
	Window          BookingWindow      `json:"window"`
	Reason          string             `json:"reason,omitempty"`
	Relaxations     []string           `json:"relaxations,omitempty"`
	UsedFallback    bool               `json:"usedFallbackService"`
	FallbackService string             `json:"fallbackService,omitempty"`
	HoldConflicts   int                `json:"holdConflicts"`
	Diagnostics     PlannerDiagnostics `json:"diagnostics"`
	Lookahead       LookaheadReport    `json:"lookahead"`
	PolicyVersion   string             `json:"policyVersion"`
}

// QuoteTablesForBooking computes the booking window, filters the
// inventory, runs the planner through the relaxation ladder and
// the lookahead penalizer, then walks ranked plans creating a
// hold for the first one that survives conflict checking.
func (s *Service) QuoteTablesForBooking(ctx context.Context, req QuoteRequest) (QuoteResult, error) {
	booking, err := s.bookings.Booking(ctx, req.BookingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return QuoteResult{}, newError(CodeBookingNotFound, fmt.Sprintf("booking %s not found", req.BookingID))
		}
		return QuoteResult{}, wrapError(CodeAssignmentRepository, "loading booking", err)
	}
	pol, err := s.policies.VenuePolicy(ctx, booking.RestaurantID)
	if err != nil {
		return QuoteResult{}, wrapError(CodeAssignmentRepository, "loading venue policy", err)
	}
	policyVersion := pol.VersionHash()

	win, usedFallback, fallbackService, err := ComputeWindowWithFallback(WindowRequest{
		StartAt:     booking.StartAt,
		BookingDate: booking.BookingDate,
		StartTime:   booking.StartTime,
		PartySize:   booking.PartySize,
		ServiceHint: booking.ServiceHint,
		FailHard:    s.opts.FailHardWindows,
	}, pol)
	if err != nil {
		return QuoteResult{}, err
	}
	result := QuoteResult{
		Window:          win,
		UsedFallback:    usedFallback,
		FallbackService: fallbackService,
		PolicyVersion:   policyVersion,
	}
	if usedFallback {
		s.observe(ctx, ObservabilityEvent{
			Source:    "quote",
			EventType: "window.fallback_service",
			Severity:  "warning",
			Context:   map[string]any{"bookingId": booking.ID, "service": fallbackService},
		})
	}

	inv, err := s.loadInventory(ctx, booking.RestaurantID)
	if err != nil {
		return QuoteResult{}, wrapError(CodeAssignmentRepository, "loading inventory", err)
	}
	graph := NewAdjacencyGraph(inv.Edges, pol.UndirectedAdjacency)

	var index *AvailabilityIndex
	var contextBookings []model.ContextBooking
	if s.opts.PruneToWindow || s.opts.Lookahead.Enabled {
		contextBookings, err = s.bookings.ContextBookings(ctx, booking.RestaurantID, booking.BookingDate)
		if err != nil {
			return QuoteResult{}, wrapError(CodeAssignmentRepository, "loading day context", err)
		}
		liveHolds, err := s.holds.LiveHoldsForDate(ctx, booking.RestaurantID, booking.BookingDate, s.clock())
		if err != nil {
			return QuoteResult{}, wrapError(CodeAssignmentRepository, "loading live holds", err)
		}
		index = BuildAvailabilityIndex(AvailabilityParams{
			TargetBookingID: booking.ID,
			Bookings:        contextBookings,
			Holds:           liveHolds,
			Policy:          pol,
			Now:             s.clock(),
			TargetWindow:    &win,
			PruneToWindow:   s.opts.PruneToWindow,
			PrunePadding:    s.opts.PrunePadding,
		})
	}

	candidates, filterReason, filterRelaxed := s.filterTables(inv.Tables, booking, req.ZoneID, win, index)
	if filterRelaxed {
		result.Relaxations = append(result.Relaxations, RelaxMinParty)
	}
	if len(candidates) == 0 {
		result.Reason = filterReason
		s.observeQuoteFailure(ctx, booking.ID, result.Reason)
		return result, nil
	}

	plans, usedStrategy, diags := s.runRelaxationLadder(candidates, booking.PartySize, graph, pol, inv.Tables)
	result.Diagnostics = diags
	// The filter stage may already have recorded the min-party
	// relaxation; don't list the same step twice.
	if usedStrategy != RelaxStrict && !(filterRelaxed && usedStrategy == RelaxMinParty) {
		result.Relaxations = append(result.Relaxations, usedStrategy)
	}
	if len(plans) == 0 {
		result.Reason = ReasonNoSuitableTables
		s.observeQuoteFailure(ctx, booking.ID, result.Reason)
		return result, nil
	}

	plans, result.Lookahead = ApplyLookahead(plans, LookaheadInput{
		Config:          s.opts.Lookahead,
		CurrentWindow:   win,
		ContextBookings: contextBookings,
		Policy:          pol,
		Tables:          inv.Tables,
		Index:           index,
		Graph:           graph,
		Clock:           s.clock,
	})
	if len(plans) == 0 {
		result.Reason = ReasonNoSuitableTables
		s.observeQuoteFailure(ctx, booking.ID, result.Reason)
		return result, nil
	}

	requireAdjacency := usedStrategy == RelaxStrict
	for i, plan := range plans {
		if ctx.Err() != nil {
			return QuoteResult{}, ctx.Err()
		}
		hold, conflicted, err := s.tryHoldPlan(ctx, booking, plan, win, graph, requireAdjacency, policyVersion, req.RequestedBy)
		if err != nil {
			return QuoteResult{}, err
		}
		if conflicted {
			result.HoldConflicts++
			continue
		}
		result.Hold = &hold
		result.Candidate = plan
		for j := i + 1; j < len(plans) && len(result.Alternates) < 3; j++ {
			result.Alternates = append(result.Alternates, plans[j])
		}
		s.observe(ctx, ObservabilityEvent{
			Source:    "quote",
			EventType: "quote.completed",
			Severity:  "info",
			Context: map[string]any{
				"bookingId": booking.ID,
				"holdId":    hold.ID,
				"planKey":   plan.Key,
				"strategy":  usedStrategy,
			},
		})
		return result, nil
	}

	if result.HoldConflicts > 0 {
		result.Reason = ReasonHoldConflicts
	} else {
		result.Reason = ReasonNoSuitableTables
	}
	s.observeQuoteFailure(ctx, booking.ID, result.Reason)
	return result, nil
}

// tryHoldPlan attempts to secure one plan with a hold, honoring
// the configured conflict strategy.  It returns conflicted=true
// when the plan lost a race and the walk should continue.
func (s *Service) tryHoldPlan(ctx context.Context, booking model.Booking, plan *Plan, win BookingWindow, graph *AdjacencyGraph, requireAdjacency bool, policyVersion, requestedBy string) (model.Hold, bool, error) {
	if s.opts.ConflictStrategy == CheckThenInsert {
		conflicts, err := s.holds.HoldConflicts(ctx, booking.RestaurantID, plan.TableIDs, win.BlockStart, win.BlockEnd, "", s.clock())
		if err != nil {
			return model.Hold{}, false, wrapError(CodeAssignmentRepository, "checking hold conflicts", err)
		}
		if len(conflicts) > 0 {
			return model.Hold{}, true, nil
		}
	}

	summary := model.SelectionSummary{
		TotalCapacity: plan.TotalCapacity,
		TableCount:    len(plan.Tables),
		Score:         plan.Score,
	}
	hold, err := s.createHold(ctx, booking, plan.Tables, win, graph, requireAdjacency, policyVersion, summary, requestedBy)
	if err != nil {
		return model.Hold{}, false, wrapError(CodeAssignmentRepository, "creating hold", err)
	}

	if s.opts.StrictConflicts || s.opts.ConflictStrategy == InsertThenVerify {
		conflicts, err := s.holds.HoldConflicts(ctx, booking.RestaurantID, plan.TableIDs, win.BlockStart, win.BlockEnd, hold.ID, s.clock())
		if err != nil {
			_ = s.releaseHold(ctx, hold.ID)
			return model.Hold{}, false, wrapError(CodeAssignmentRepository, "verifying hold conflicts", err)
		}
		if len(conflicts) > 0 {
			_ = s.releaseHold(ctx, hold.ID)
			return model.Hold{}, true, nil
		}
	}
	return hold, false, nil
}

// filterTables applies the static filters (active, zone, capacity
// plausibility, min covers) and the time filter.  When min-covers
// filtering empties the pool, it retries once with violations
// allowed and accepts the relaxed pool only if it can seat the
// party at all.
func (s *Service) filterTables(tables []model.Table, booking model.Booking, zoneID string, win BookingWindow, index *AvailabilityIndex) ([]model.Table, string, bool) {
	var pool []model.Table
	for _, t := range tables {
		if !t.Active {
			continue
		}
		if zoneID != "" && t.ZoneID != zoneID {
			continue
		}
		pool = append(pool, t)
	}
	if len(pool) == 0 {
		return nil, ReasonInsufficientGlobal, false
	}

	strict := pool[:0:0]
	for _, t := range pool {
		if t.MinCovers > 0 && booking.PartySize < t.MinCovers {
			continue
		}
		strict = append(strict, t)
	}
	relaxed := false
	if len(strict) == 0 {
		total := 0
		for _, t := range pool {
			total += t.Capacity
		}
		if total < booking.PartySize {
			return nil, ReasonInsufficientFiltered, false
		}
		strict = pool
		relaxed = true
	}

	mode := FilterApprox
	if index != nil {
		mode = FilterStrict
	}
	free := index.TimeFilter(strict, win, mode)
	if len(free) == 0 {
		return nil, ReasonNoTablesForWindow, relaxed
	}
	return free, "", relaxed
}

// runRelaxationLadder tries the planner under progressively
// looser constraints and reports which strategy produced plans.
// The order is fixed: strict, then without adjacency, then
// allowing min-covers violations, then allowing capacity
// overflow.
func (s *Service) runRelaxationLadder(candidates []model.Table, partySize int, graph *AdjacencyGraph, pol policy.VenuePolicy, inventory []model.Table) ([]*Plan, string, PlannerDiagnostics) {
	scarcity := scarcityScores(inventory)
	steps := []struct {
		name             string
		requireAdjacency bool
		allowMinCover    bool
		allowOverflow    bool
	}{
		{RelaxStrict, true, false, false},
		{RelaxNoAdjacency, false, false, false},
		{RelaxMinParty, false, true, false},
		{RelaxCapacityOverflow, false, true, true},
	}
	var lastDiags PlannerDiagnostics
	for _, step := range steps {
		res := BuildPlans(PlannerInput{
			Tables:                 candidates,
			PartySize:              partySize,
			Graph:                  graph,
			Weights:                pol.Weights,
			RequireAdjacency:       step.requireAdjacency,
			AllowCapacityOverflow:  step.allowOverflow,
			AllowMinCoverViolation: step.allowMinCover,
			EnableCombinations:     s.opts.EnableCombinations,
			KMax:                   s.kMax(pol),
			MaxPlansPerSlack:       s.opts.MaxPlansPerSlack,
			MaxEvaluations:         s.opts.MaxEvaluations,
			TimeBudget:             s.opts.EnumerationBudget,
			DemandMultiplier:       s.opts.DemandMultiplier,
			ScarcityScores:         scarcity,
			Clock:                  s.clock,
		})
		lastDiags = res.Diagnostics
		if len(res.Plans) > 0 {
			return res.Plans, step.name, res.Diagnostics
		}
	}
	return nil, RelaxCapacityOverflow, lastDiags
}

func (s *Service) kMax(pol policy.VenuePolicy) int {
	if pol.MaxMergeTables > 0 {
		return pol.MaxMergeTables
	}
	return s.opts.KMax
}

// scarcityScores rates each table by how replaceable it is: a
// table whose capacity few others can match scores higher, so
// plans prefer to burn common tables first.
func scarcityScores(inventory []model.Table) map[string]float64 {
	scores := make(map[string]float64, len(inventory))
	for _, t := range inventory {
		peers := 0
		for _, o := range inventory {
			if o.Active && o.Capacity >= t.Capacity {
				peers++
			}
		}
		if peers == 0 {
			peers = 1
		}
		scores[t.ID] = 1 / float64(peers)
	}
	return scores
}

func (s *Service) observeQuoteFailure(ctx context.Context, bookingID, reason string) {
	s.observe(ctx, ObservabilityEvent{
		Source:    "quote",
		EventType: "quote.exhausted",
		Severity:  "info",
		Context:   map[string]any{"bookingId": bookingID, "reason": reason},
	})
}

// loadInventory fetches tables and adjacency, going through the
// cache when one is wired.
func (s *Service) loadInventory(ctx context.Context, restaurantID string) (*CachedInventory, error) {
	if s.cache != nil {
		if inv, ok := s.cache.Inventory(ctx, restaurantID); ok {
			return inv, nil
		}
	}
	tables, err := s.tables.ActiveTables(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	edges, err := s.tables.AdjacencyEdges(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	inv := &CachedInventory{Tables: tables, Edges: edges}
	if s.cache != nil {
		s.cache.StoreInventory(ctx, restaurantID, inv)
	}
	return inv, nil
}
