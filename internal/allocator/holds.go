package allocator

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seatwise/table-allocation/internal/model"
)

// Check statuses for selection validation.
const (
	CheckOK      = "ok"
	CheckWarning = "warning"
	CheckError   = "error"
)

// SelectionCheck is one named validation with a human-readable
// outcome.  The same structure is surfaced to staff-driven manual
// assignment flows.
type SelectionCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SelectionResult is the overall verdict plus every individual
// check.  Warnings do not fail the selection; errors do.
type SelectionResult struct {
	OK     bool             `json:"ok"`
	Checks []SelectionCheck `json:"checks"`
}

type selectionContext struct {
	tables           []model.Table
	partySize        int
	window           BookingWindow
	graph            *AdjacencyGraph
	index            *AvailabilityIndex
	requireAdjacency bool
	holdConflicts    []model.Hold
}

// validateSelection runs the named checks (capacity, zone,
// movable, adjacency, conflict, holds) over a concrete table
// selection.
func validateSelection(sel selectionContext) SelectionResult {
	var checks []SelectionCheck
	add := func(name, status, message string) {
		checks = append(checks, SelectionCheck{Name: name, Status: status, Message: message})
	}

	total := 0
	for _, t := range sel.tables {
		total += t.Capacity
	}
	if total < sel.partySize {
		add("capacity", CheckError, fmt.Sprintf("selected tables seat %d of %d covers", total, sel.partySize))
	} else {
		add("capacity", CheckOK, fmt.Sprintf("seats %d covers", total))
	}

	slackBudget := sel.partySize
	if slackBudget < 4 {
		slackBudget = 4
	}
	if slack := total - sel.partySize; slack > slackBudget {
		add("slack", CheckWarning, fmt.Sprintf("%d spare covers for a party of %d", slack, sel.partySize))
	} else if slack >= 0 {
		add("slack", CheckOK, fmt.Sprintf("%d spare covers", slack))
	} else {
		add("slack", CheckOK, "no spare covers")
	}

	zones := ZoneIDsFor(sel.tables)
	if len(zones) > 1 {
		add("zone", CheckWarning, fmt.Sprintf("selection spans %d zones (%s)", len(zones), strings.Join(zones, ", ")))
	} else {
		add("zone", CheckOK, "single zone")
	}

	if len(sel.tables) > 1 {
		var fixed []string
		for _, t := range sel.tables {
			if !t.Movable {
				fixed = append(fixed, t.Number)
			}
		}
		if len(fixed) > 0 {
			add("movable", CheckError, fmt.Sprintf("tables %s cannot be merged", strings.Join(fixed, ", ")))
		} else {
			add("movable", CheckOK, "all tables movable")
		}
	} else {
		add("movable", CheckOK, "single table")
	}

	if sel.requireAdjacency && len(sel.tables) > 1 {
		ids := make([]string, len(sel.tables))
		uncertified := false
		for i, t := range sel.tables {
			ids[i] = t.ID
			if sel.graph == nil || !sel.graph.HasEntry(t.ID) {
				uncertified = true
			}
		}
		switch {
		case uncertified:
			add("adjacency", CheckError, "adjacency cannot be certified for all selected tables")
		case !sel.graph.Connected(ids):
			add("adjacency", CheckError, "selected tables are not adjacent")
		default:
			add("adjacency", CheckOK, "tables form a connected group")
		}
	} else {
		add("adjacency", CheckOK, "adjacency not required")
	}

	if sel.index != nil {
		ids := make([]string, len(sel.tables))
		for i, t := range sel.tables {
			ids[i] = t.ID
		}
		conflicts := sel.index.ConflictsFor(ids, sel.window.BlockStart, sel.window.BlockEnd)
		bookingConflicts := 0
		for _, c := range conflicts {
			if c.Source == SourceBooking {
				bookingConflicts++
			}
		}
		if bookingConflicts > 0 {
			add("conflict", CheckError, fmt.Sprintf("%d overlapping booking(s) in the window", bookingConflicts))
		} else {
			add("conflict", CheckOK, "no booking conflicts")
		}
	} else {
		add("conflict", CheckOK, "no booking context loaded")
	}

	if len(sel.holdConflicts) > 0 {
		add("holds", CheckError, fmt.Sprintf("%d live hold(s) cover the selection", len(sel.holdConflicts)))
	} else {
		add("holds", CheckOK, "no live holds")
	}

	ok := true
	for _, c := range checks {
		if c.Status == CheckError {
			ok = false
		}
	}
	return SelectionResult{OK: ok, Checks: checks}
}

// createHold persists a hold for the selected tables with the
// frozen metadata snapshot confirmation will validate against.
// Callers own selection validity: the quote path only holds plans
// the planner and conflict walk already vetted, and the manual
// path runs validateSelection first.  Nothing is re-checked here.
func (s *Service) createHold(ctx context.Context, booking model.Booking, tables []model.Table, win BookingWindow, graph *AdjacencyGraph, requireAdjacency bool, policyVersion string, summary model.SelectionSummary, createdBy string) (model.Hold, error) {
	ids := make([]string, len(tables))
	for i, t := range tables {
		ids[i] = t.ID
	}
	ids = NormalizeTableIDs(ids)
	now := s.clock()
	// ServiceDate is the venue-local booking date, not the UTC date
	// of BlockStart: an evening booking east of UTC starts on the
	// next UTC day and would otherwise vanish from day-scoped reads.
	hold := model.Hold{
		ID:           uuid.NewString(),
		BookingID:    booking.ID,
		RestaurantID: booking.RestaurantID,
		TableIDs:     ids,
		ServiceDate:  booking.BookingDate,
		StartAt:      win.BlockStart,
		EndAt:        win.BlockEnd,
		ExpiresAt:    now.Add(s.opts.HoldTTL),
		CreatedBy:    createdBy,
		CreatedAt:    now,
		Metadata: &model.HoldMetadata{
			RequireAdjacency: requireAdjacency,
			PolicyVersion:    policyVersion,
			Selection: model.SelectionSnapshot{
				TableIDs: ids,
				Summary:  summary,
			},
			ZoneIDs:   ZoneIDsFor(tables),
			Adjacency: graph.SnapshotFor(ids),
		},
	}
	return s.holds.CreateHold(ctx, hold)
}

// releaseHold deletes a hold with bounded backoff and jitter.
// Release failures never block the caller's critical path; the
// expired-hold sweeper is the fallback cleanup.  The returned
// error is informational.
func (s *Service) releaseHold(ctx context.Context, holdID string) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		if err = s.holds.ReleaseHold(ctx, holdID); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		backoff := time.Duration(50*(1<<uint(i)))*time.Millisecond + time.Duration(rand.Intn(40))*time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Printf("[holds] release failed for %s after %d attempts: %v", holdID, attempts, err)
	return err
}

// SweepExpiredHolds removes lapsed hold rows in one batch and
// returns how many were deleted.
func (s *Service) SweepExpiredHolds(ctx context.Context, limit int) (int64, error) {
	return s.holds.DeleteExpiredHolds(ctx, s.clock(), limit)
}

// RunHoldSweeper periodically removes expired holds until the
// context is cancelled.  Intended to run in its own goroutine.
func (s *Service) RunHoldSweeper(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpiredHolds(ctx, batch)
			if err != nil {
				log.Printf("[holds] sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[holds] swept %d expired hold(s)", n)
			}
		}
	}
}
