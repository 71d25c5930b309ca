package allocator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/seatwise/table-allocation/internal/model"
)

// ManualSelectionRequest is a staff-chosen table set for a
// booking, bypassing the planner.
type ManualSelectionRequest struct {
	BookingID        string
	TableIDs         []string
	RequireAdjacency bool
	ActorID          string
}

// ManualEvaluation is the structured verdict on a manual
// selection.  Hold is set only by CreateManualHold and only when
// every check passed.
type ManualEvaluation struct {
	Result SelectionResult `json:"result"`
	Window BookingWindow   `json:"window"`
	Tables []model.Table   `json:"tables"`
	Hold   *model.Hold     `json:"hold,omitempty"`
}

// EvaluateManualSelection runs the named checks over a staff
// selection without creating anything.
func (s *Service) EvaluateManualSelection(ctx context.Context, req ManualSelectionRequest) (ManualEvaluation, error) {
	eval, _, _, _, err := s.evaluateManual(ctx, req)
	return eval, err
}

// CreateManualHold evaluates the selection and, when it passes,
// persists a hold exactly as the quote path would.
func (s *Service) CreateManualHold(ctx context.Context, req ManualSelectionRequest) (ManualEvaluation, error) {
	eval, booking, graph, policyVersion, err := s.evaluateManual(ctx, req)
	if err != nil {
		return eval, err
	}
	if !eval.Result.OK {
		return eval, nil
	}
	total := 0
	for _, t := range eval.Tables {
		total += t.Capacity
	}
	hold, err := s.createHold(ctx, booking, eval.Tables, eval.Window, graph, req.RequireAdjacency, policyVersion, model.SelectionSummary{
		TotalCapacity: total,
		TableCount:    len(eval.Tables),
	}, req.ActorID)
	if err != nil {
		return eval, wrapError(CodeAssignmentRepository, "creating manual hold", err)
	}
	eval.Hold = &hold
	s.observe(ctx, ObservabilityEvent{
		Source:    "manual",
		EventType: "manual.hold_created",
		Severity:  "info",
		Context:   map[string]any{"bookingId": booking.ID, "holdId": hold.ID, "actor": req.ActorID},
	})
	return eval, nil
}

func (s *Service) evaluateManual(ctx context.Context, req ManualSelectionRequest) (ManualEvaluation, model.Booking, *AdjacencyGraph, string, error) {
	if len(req.TableIDs) == 0 {
		return ManualEvaluation{}, model.Booking{}, nil, "", newError(CodeInvalidInput, "no tables selected")
	}
	booking, err := s.bookings.Booking(ctx, req.BookingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ManualEvaluation{}, model.Booking{}, nil, "", newError(CodeBookingNotFound, fmt.Sprintf("booking %s not found", req.BookingID))
		}
		return ManualEvaluation{}, model.Booking{}, nil, "", wrapError(CodeAssignmentRepository, "loading booking", err)
	}
	pol, err := s.policies.VenuePolicy(ctx, booking.RestaurantID)
	if err != nil {
		return ManualEvaluation{}, model.Booking{}, nil, "", wrapError(CodeAssignmentRepository, "loading venue policy", err)
	}
	win, _, _, err := ComputeWindowWithFallback(WindowRequest{
		StartAt:     booking.StartAt,
		BookingDate: booking.BookingDate,
		StartTime:   booking.StartTime,
		PartySize:   booking.PartySize,
		ServiceHint: booking.ServiceHint,
		FailHard:    s.opts.FailHardWindows,
	}, pol)
	if err != nil {
		return ManualEvaluation{}, model.Booking{}, nil, "", err
	}

	ids := NormalizeTableIDs(req.TableIDs)
	tables, err := s.tables.TablesByIDs(ctx, booking.RestaurantID, ids)
	if err != nil {
		return ManualEvaluation{}, model.Booking{}, nil, "", wrapError(CodeAssignmentRepository, "loading selected tables", err)
	}
	if len(tables) != len(ids) {
		return ManualEvaluation{}, model.Booking{}, nil, "", newError(CodeInvalidInput, "selection names unknown tables").
			withDetails(map[string]any{"requested": ids, "found": len(tables)})
	}
	edges, err := s.tables.AdjacencyEdges(ctx, booking.RestaurantID)
	if err != nil {
		return ManualEvaluation{}, model.Booking{}, nil, "", wrapError(CodeAssignmentRepository, "loading adjacency", err)
	}
	graph := NewAdjacencyGraph(edges, pol.UndirectedAdjacency)

	contextBookings, err := s.bookings.ContextBookings(ctx, booking.RestaurantID, booking.BookingDate)
	if err != nil {
		return ManualEvaluation{}, model.Booking{}, nil, "", wrapError(CodeAssignmentRepository, "loading day context", err)
	}
	index := BuildAvailabilityIndex(AvailabilityParams{
		TargetBookingID: booking.ID,
		Bookings:        contextBookings,
		Policy:          pol,
		Now:             s.clock(),
		TargetWindow:    &win,
	})
	// Hold conflicts come from the store so an expired row can
	// never fail the check.
	holdConflicts, err := s.holds.HoldConflicts(ctx, booking.RestaurantID, ids, win.BlockStart, win.BlockEnd, "", s.clock())
	if err != nil {
		return ManualEvaluation{}, model.Booking{}, nil, "", wrapError(CodeAssignmentRepository, "checking hold conflicts", err)
	}

	result := validateSelection(selectionContext{
		tables:           tables,
		partySize:        booking.PartySize,
		window:           win,
		graph:            graph,
		index:            index,
		requireAdjacency: req.RequireAdjacency,
		holdConflicts:    holdConflicts,
	})
	return ManualEvaluation{Result: result, Window: win, Tables: tables}, booking, graph, pol.VersionHash(), nil
}

// ManualContext is the floor-plan view for staff assignment: the
// inventory, live holds, busy intervals and a version hash for
// optimistic refresh.
type ManualContext struct {
	Window         BookingWindow            `json:"window"`
	Tables         []model.Table            `json:"tables"`
	Holds          []model.Hold             `json:"holds"`
	Busy           map[string][]BusyWindow  `json:"busy"`
	Assignments    []model.AssignmentMember `json:"assignments"`
	Versions       map[string]string        `json:"versions"`
	ContextVersion string                   `json:"contextVersion"`
}

// ManualAssignmentContext assembles everything a staff client
// needs to render table assignment for a booking.  The context
// version is composed from per-component checksums so a client
// can detect exactly which part of the world moved under it.
func (s *Service) ManualAssignmentContext(ctx context.Context, bookingID string) (ManualContext, error) {
	booking, err := s.bookings.Booking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ManualContext{}, newError(CodeBookingNotFound, fmt.Sprintf("booking %s not found", bookingID))
		}
		return ManualContext{}, wrapError(CodeAssignmentRepository, "loading booking", err)
	}
	pol, err := s.policies.VenuePolicy(ctx, booking.RestaurantID)
	if err != nil {
		return ManualContext{}, wrapError(CodeAssignmentRepository, "loading venue policy", err)
	}
	win, _, _, err := ComputeWindowWithFallback(WindowRequest{
		StartAt:     booking.StartAt,
		BookingDate: booking.BookingDate,
		StartTime:   booking.StartTime,
		PartySize:   booking.PartySize,
		ServiceHint: booking.ServiceHint,
	}, pol)
	if err != nil {
		return ManualContext{}, err
	}

	inv, err := s.loadInventory(ctx, booking.RestaurantID)
	if err != nil {
		return ManualContext{}, wrapError(CodeAssignmentRepository, "loading inventory", err)
	}
	contextBookings, err := s.bookings.ContextBookings(ctx, booking.RestaurantID, booking.BookingDate)
	if err != nil {
		return ManualContext{}, wrapError(CodeAssignmentRepository, "loading day context", err)
	}
	liveHolds, err := s.holds.LiveHoldsForDate(ctx, booking.RestaurantID, booking.BookingDate, s.clock())
	if err != nil {
		return ManualContext{}, wrapError(CodeAssignmentRepository, "loading live holds", err)
	}
	assignments, err := s.assignments.AssignmentsForBooking(ctx, bookingID)
	if err != nil {
		return ManualContext{}, wrapError(CodeAssignmentRepository, "loading assignments", err)
	}

	index := BuildAvailabilityIndex(AvailabilityParams{
		TargetBookingID: booking.ID,
		Bookings:        contextBookings,
		Holds:           liveHolds,
		Policy:          pol,
		Now:             s.clock(),
		TargetWindow:    &win,
	})
	graph := NewAdjacencyGraph(inv.Edges, pol.UndirectedAdjacency)

	allIDs := make([]string, 0, len(inv.Tables))
	tableParts := make([]string, 0, len(inv.Tables))
	for _, t := range inv.Tables {
		allIDs = append(allIDs, t.ID)
		tableParts = append(tableParts, fmt.Sprintf("%s:%d:%s:%t:%t", t.ID, t.Capacity, t.ZoneID, t.Movable, t.Active))
	}
	sort.Strings(tableParts)

	holdParts := make([]string, 0, len(liveHolds))
	for _, h := range liveHolds {
		holdParts = append(holdParts, h.ID+":"+h.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	sort.Strings(holdParts)

	assignParts := make([]string, 0, len(assignments))
	for _, a := range assignments {
		assignParts = append(assignParts, a.BookingID+":"+a.TableID)
	}
	sort.Strings(assignParts)

	versions := map[string]string{
		"policy":      Checksum(pol.VersionHash()),
		"window":      Checksum(win.BlockStart.Format("2006-01-02T15:04:05Z"), win.BlockEnd.Format("2006-01-02T15:04:05Z"), win.Service),
		"tables":      Checksum(strings.Join(tableParts, ";")),
		"adjacency":   Checksum(graph.SnapshotFor(allIDs).Hash),
		"holds":       Checksum(strings.Join(holdParts, ";")),
		"assignments": Checksum(strings.Join(assignParts, ";")),
	}
	componentKeys := make([]string, 0, len(versions))
	for k := range versions {
		componentKeys = append(componentKeys, k)
	}
	sort.Strings(componentKeys)
	composed := make([]string, 0, len(componentKeys))
	for _, k := range componentKeys {
		composed = append(composed, k+"="+versions[k])
	}

	return ManualContext{
		Window:         win,
		Tables:         inv.Tables,
		Holds:          liveHolds,
		Busy:           index.BusyWindows(),
		Assignments:    assignments,
		Versions:       versions,
		ContextVersion: Checksum(composed...),
	}, nil
}
