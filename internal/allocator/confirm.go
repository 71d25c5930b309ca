package allocator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/seatwise/table-allocation/internal/model"
)

// ConfirmRequest turns a live hold into committed assignments.
// IdempotencyKey is optional; when empty the deterministic key is
// derived from the payload.
type ConfirmRequest struct {
	HoldID         string
	BookingID      string
	IdempotencyKey string
	TargetStatus   string // booking status after commit, default confirmed
	ActorID        string
}

// ConfirmHoldAssignment validates the hold's frozen snapshot
// against the live world, then commits the plan atomically.
// Validation order is fixed: hold presence, emptiness, metadata
// completeness, booking binding, policy version, topology
// snapshot, idempotency ledger, commit.  Hold release and event
// emission after a successful commit are best-effort.
func (s *Service) ConfirmHoldAssignment(ctx context.Context, req ConfirmRequest) ([]model.AssignmentMember, error) {
	hold, err := s.holds.Hold(ctx, req.HoldID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(CodeHoldNotFound, fmt.Sprintf("hold %s not found", req.HoldID))
		}
		return nil, wrapError(CodeAssignmentRepository, "loading hold", err)
	}
	if hold.Expired(s.clock()) {
		return nil, newError(CodeHoldNotFound, fmt.Sprintf("hold %s has expired", req.HoldID))
	}
	if len(hold.TableIDs) == 0 {
		return nil, newError(CodeHoldEmpty, "hold covers no tables")
	}
	if missing := hold.Metadata.MissingFields(); len(missing) > 0 {
		return nil, newError(CodeHoldMetadataIncomplete, "hold metadata snapshot is incomplete").
			withDetails(map[string]any{"missing": missing})
	}
	if hold.BookingID != req.BookingID {
		return nil, newError(CodeHoldBookingMismatch,
			fmt.Sprintf("hold belongs to booking %s, not %s", hold.BookingID, req.BookingID))
	}

	booking, err := s.bookings.Booking(ctx, req.BookingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(CodeBookingNotFound, fmt.Sprintf("booking %s not found", req.BookingID))
		}
		return nil, wrapError(CodeAssignmentRepository, "loading booking", err)
	}
	pol, err := s.policies.VenuePolicy(ctx, booking.RestaurantID)
	if err != nil {
		return nil, wrapError(CodeAssignmentRepository, "loading venue policy", err)
	}
	currentVersion := pol.VersionHash()
	if currentVersion != hold.Metadata.PolicyVersion {
		s.publishDrift(ctx, hold, "policy-version", map[string]any{
			"expected": hold.Metadata.PolicyVersion,
			"actual":   currentVersion,
		})
		return nil, newError(CodePolicyChanged, "venue policy changed since the hold was quoted").
			withDetails(map[string]any{
				"expectedPolicyVersion": hold.Metadata.PolicyVersion,
				"actualPolicyVersion":   currentVersion,
			})
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
		return nil, err
	}

	if err := s.checkTopologyDrift(ctx, booking.RestaurantID, hold, pol.UndirectedAdjacency); err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = ConfirmIdempotencyKey(booking.RestaurantID, booking.ID, hold.TableIDs, win.BlockStart, win.BlockEnd, currentVersion)
	}
	if entry, err := s.assignments.LedgerEntry(ctx, booking.ID, key); err != nil {
		return nil, wrapError(CodeAssignmentRepository, "checking idempotency ledger", err)
	} else if entry != nil {
		if !SameTableSet(entry.TableIDs, hold.TableIDs) {
			return nil, newError(CodeRPCValidation, "idempotency key was already used with a different table set").
				withDetails(map[string]any{
					"ledgerTableIds": entry.TableIDs,
					"holdTableIds":   hold.TableIDs,
				})
		}
		// Cached confirmation: the commit already happened.
		rows, err := s.assignments.AssignmentsForBooking(ctx, booking.ID)
		if err != nil {
			return nil, wrapError(CodeAssignmentRepository, "loading committed assignments", err)
		}
		s.finishConfirm(ctx, booking, hold, rows, win, key, true)
		return rows, nil
	}

	mergeGroup := ""
	if len(hold.TableIDs) > 1 {
		mergeGroup = uuid.NewString()
	}
	status := req.TargetStatus
	if status == "" {
		status = model.BookingStatusConfirmed
	}
	res, err := s.assignments.CommitPlan(ctx, CommitPlanRequest{
		RestaurantID:   booking.RestaurantID,
		BookingID:      booking.ID,
		TableIDs:       hold.TableIDs,
		StartAt:        win.BlockStart,
		EndAt:          win.BlockEnd,
		MergeGroupID:   mergeGroup,
		IdempotencyKey: key,
		PolicyVersion:  currentVersion,
		TargetStatus:   status,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrCommitConflict):
			// Another booking won the race between hold and commit.
			_ = s.releaseHold(ctx, hold.ID)
			return nil, wrapError(CodeAssignmentConflict, "tables were taken before the commit completed", err)
		case errors.Is(err, ErrCommitValidation):
			return nil, wrapError(CodeAssignmentValidation, "commit rejected the plan", err)
		default:
			return nil, wrapError(CodeAssignmentRepository, "committing plan", err)
		}
	}

	s.finishConfirm(ctx, booking, hold, res.Assignments, win, key, res.Replayed)
	return res.Assignments, nil
}

// checkTopologyDrift recomputes the zone set and adjacency edge
// hash for the held tables and compares them to the hold's frozen
// snapshot.
func (s *Service) checkTopologyDrift(ctx context.Context, restaurantID string, hold model.Hold, undirected bool) error {
	tables, err := s.tables.TablesByIDs(ctx, restaurantID, hold.TableIDs)
	if err != nil {
		return wrapError(CodeAssignmentRepository, "loading held tables", err)
	}
	if len(tables) != len(hold.TableIDs) {
		return newError(CodePolicyChanged, "held tables no longer exist").
			withDetails(map[string]any{"expectedTables": hold.TableIDs, "actualCount": len(tables)})
	}
	edges, err := s.tables.AdjacencyEdges(ctx, restaurantID)
	if err != nil {
		return wrapError(CodeAssignmentRepository, "loading adjacency", err)
	}
	graph := NewAdjacencyGraph(edges, undirected)
	snapshot := graph.SnapshotFor(hold.TableIDs)
	zones := ZoneIDsFor(tables)

	frozen := hold.Metadata
	zonesMatch := fmt.Sprint(frozen.ZoneIDs) == fmt.Sprint(zones)
	if zonesMatch && snapshot.Hash == frozen.Adjacency.Hash {
		return nil
	}
	details := map[string]any{
		"expectedZones": frozen.ZoneIDs,
		"actualZones":   zones,
		"expectedEdges": frozen.Adjacency.Edges,
		"actualEdges":   snapshot.Edges,
		"expectedHash":  frozen.Adjacency.Hash,
		"actualHash":    snapshot.Hash,
	}
	s.publishDrift(ctx, hold, "topology", details)
	return newError(CodePolicyChanged, "table topology changed since the hold was quoted").withDetails(details)
}

// finishConfirm runs the best-effort tail of a successful (or
// replayed) confirmation: hold release, window sync, events.
// Nothing here can fail the confirm.
func (s *Service) finishConfirm(ctx context.Context, booking model.Booking, hold model.Hold, rows []model.AssignmentMember, win BookingWindow, key string, replayed bool) {
	if err := s.releaseHold(ctx, hold.ID); err != nil {
		log.Printf("[confirm] hold %s release failed (sweeper will reap it): %v", hold.ID, err)
	}
	for _, row := range rows {
		if !row.StartAt.Equal(win.BlockStart) || !row.EndAt.Equal(win.BlockEnd) {
			if err := s.assignments.SyncAssignmentWindow(ctx, booking.ID, win.BlockStart, win.BlockEnd); err != nil {
				log.Printf("[confirm] window sync failed for booking %s: %v", booking.ID, err)
			} else {
				s.publish(ctx, Event{
					Type:      EventAssignmentSync,
					DedupeKey: key + ":sync",
					Payload: map[string]any{
						"bookingId": booking.ID,
						"startAt":   win.BlockStart,
						"endAt":     win.BlockEnd,
					},
				})
			}
			break
		}
	}
	s.publish(ctx, Event{
		Type:      EventHoldConfirmed,
		DedupeKey: key,
		Payload: map[string]any{
			"bookingId":    booking.ID,
			"restaurantId": booking.RestaurantID,
			"holdId":       hold.ID,
			"tableIds":     hold.TableIDs,
			"replayed":     replayed,
		},
	})
	s.observe(ctx, ObservabilityEvent{
		Source:    "confirm",
		EventType: "assignment.committed",
		Severity:  "info",
		Context: map[string]any{
			"bookingId": booking.ID,
			"holdId":    hold.ID,
			"tables":    len(hold.TableIDs),
			"replayed":  replayed,
		},
	})
}

func (s *Service) publishDrift(ctx context.Context, hold model.Hold, kind string, details map[string]any) {
	s.publish(ctx, Event{
		Type:      EventPolicyDrift,
		DedupeKey: hold.ID + ":" + kind,
		Payload: map[string]any{
			"holdId":    hold.ID,
			"bookingId": hold.BookingID,
			"kind":      kind,
			"details":   details,
		},
	})
	s.observe(ctx, ObservabilityEvent{
		Source:    "confirm",
		EventType: "policy.drift",
		Severity:  "warning",
		Context:   map[string]any{"holdId": hold.ID, "kind": kind},
	})
}

// AtomicConfirmRequest drives the confirm-with-retry wrapper.
type AtomicConfirmRequest struct {
	BookingID      string
	HoldID         string
	IdempotencyKey string
	TargetStatus   string
	ActorID        string
}

// AtomicConfirmAndTransition wraps ConfirmHoldAssignment with
// pre/post state snapshots, a bounded policy-drift retry loop
// (release the stale hold, re-quote, retry), and a reconciliation
// pass that rolls the booking back when the post-state does not
// show the expected committed status.
func (s *Service) AtomicConfirmAndTransition(ctx context.Context, req AtomicConfirmRequest) ([]model.AssignmentMember, error) {
	pre, err := s.bookings.BookingState(ctx, req.BookingID)
	if err != nil {
		return nil, wrapError(CodeAssignmentRepository, "loading pre-confirm state", err)
	}
	s.observe(ctx, ObservabilityEvent{
		Source:    "confirm",
		EventType: "confirm.started",
		Severity:  "info",
		Context:   map[string]any{"bookingId": req.BookingID, "preStatus": pre.Status, "preAssignments": pre.AssignmentCount},
	})

	holdID := req.HoldID
	var rows []model.AssignmentMember
	attempts := s.opts.DriftRetryAttempts
	for attempt := 0; ; attempt++ {
		rows, err = s.ConfirmHoldAssignment(ctx, ConfirmRequest{
			HoldID:         holdID,
			BookingID:      req.BookingID,
			IdempotencyKey: req.IdempotencyKey,
			TargetStatus:   req.TargetStatus,
			ActorID:        req.ActorID,
		})
		if err == nil {
			break
		}
		if !HasCode(err, CodePolicyChanged) || attempt >= attempts {
			return nil, err
		}
		// The hold is stale against the live policy: drop it,
		// re-quote under the current rules and try again.
		_ = s.releaseHold(ctx, holdID)
		quote, qerr := s.QuoteTablesForBooking(ctx, QuoteRequest{BookingID: req.BookingID, RequestedBy: req.ActorID})
		if qerr != nil || quote.Hold == nil {
			return nil, err
		}
		holdID = quote.Hold.ID
	}

	expected := req.TargetStatus
	if expected == "" {
		expected = model.BookingStatusConfirmed
	}
	post, err := s.bookings.BookingState(ctx, req.BookingID)
	if err != nil {
		return nil, wrapError(CodeAssignmentRepository, "loading post-confirm state", err)
	}
	if post.Status != expected || post.AssignmentCount == 0 {
		if rerr := s.reconcile(ctx, req.BookingID, holdID); rerr != nil {
			return nil, wrapError(CodeStateReconciliationFail, "post-confirm state mismatch and rollback failed", rerr).
				withDetails(map[string]any{"expectedStatus": expected, "actualStatus": post.Status})
		}
		return nil, newError(CodeAssignmentValidation, "post-confirm state mismatch, assignment rolled back").
			withDetails(map[string]any{"expectedStatus": expected, "actualStatus": post.Status, "assignments": post.AssignmentCount})
	}

	s.observe(ctx, ObservabilityEvent{
		Source:    "confirm",
		EventType: "confirm.completed",
		Severity:  "info",
		Context:   map[string]any{"bookingId": req.BookingID, "postStatus": post.Status, "postAssignments": post.AssignmentCount},
	})
	return rows, nil
}

// reconcile unwinds a half-applied confirm: drop assignments and
// release the hold.
func (s *Service) reconcile(ctx context.Context, bookingID, holdID string) error {
	if err := s.assignments.UnassignBooking(ctx, bookingID); err != nil {
		return err
	}
	_ = s.releaseHold(ctx, holdID)
	return nil
}
