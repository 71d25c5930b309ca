package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seatwise/table-allocation/internal/allocator"
	"github.com/seatwise/table-allocation/internal/model"
)

// AssignmentRepo provides data access to booking_table_assignments
// and the assignment_ledger. CommitPlan is the single atomic write
// path for confirmations: assignment rows, ledger entry and
// booking transition either all land or none do.
type AssignmentRepo struct {
	db *sql.DB
}

// NewAssignmentRepo returns a new AssignmentRepo bound to the provided database.
func NewAssignmentRepo(db *sql.DB) *AssignmentRepo { return &AssignmentRepo{db: db} }

// CommitPlan applies a confirmed plan inside one transaction:
//
//  1. lock and check the idempotency ledger; a replay with the
//     same table set returns the previously committed rows,
//  2. lock overlapping assignment rows on the target tables and
//     reject the commit if any blocking booking already owns one,
//  3. insert the assignment rows and the ledger entry,
//  4. transition the booking when a target status was given,
//  5. re-run the overlap check before committing; a conflict that
//     slipped in between rolls the whole transaction back.
//
// Conflicts surface as allocator.ErrCommitConflict and malformed
// requests as allocator.ErrCommitValidation.
func (r *AssignmentRepo) CommitPlan(ctx context.Context, req allocator.CommitPlanRequest) (allocator.CommitPlanResult, error) {
	if req.BookingID == "" || len(req.TableIDs) == 0 || !req.EndAt.After(req.StartAt) {
		return allocator.CommitPlanResult{}, fmt.Errorf("%w: booking, tables and a positive window are required", allocator.ErrCommitValidation)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return allocator.CommitPlanResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	// Ledger pre-check under lock.
	var ledgerTables []byte
	err = tx.QueryRowContext(ctx,
		`SELECT table_ids FROM assignment_ledger WHERE booking_id = ? AND idempotency_key = ? FOR UPDATE`,
		req.BookingID, req.IdempotencyKey,
	).Scan(&ledgerTables)
	switch {
	case err == nil:
		var tableIDs []string
		if err := json.Unmarshal(ledgerTables, &tableIDs); err != nil {
			return allocator.CommitPlanResult{}, err
		}
		if !allocator.SameTableSet(tableIDs, req.TableIDs) {
			return allocator.CommitPlanResult{}, fmt.Errorf("%w: idempotency key reused with a different table set", allocator.ErrCommitValidation)
		}
		rows, err := assignmentsForBookingTx(ctx, tx, req.BookingID)
		if err != nil {
			return allocator.CommitPlanResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return allocator.CommitPlanResult{}, err
		}
		committed = true
		return allocator.CommitPlanResult{Assignments: rows, Replayed: true}, nil
	case err != sql.ErrNoRows:
		return allocator.CommitPlanResult{}, err
	}

	if err := r.conflictCheckTx(ctx, tx, req, true); err != nil {
		return allocator.CommitPlanResult{}, err
	}

	now := time.Now().UTC()
	assignments := make([]model.AssignmentMember, 0, len(req.TableIDs))
	for _, tableID := range req.TableIDs {
		row := model.AssignmentMember{
			ID:           uuid.NewString(),
			BookingID:    req.BookingID,
			RestaurantID: req.RestaurantID,
			TableID:      tableID,
			StartAt:      req.StartAt.UTC(),
			EndAt:        req.EndAt.UTC(),
			MergeGroupID: req.MergeGroupID,
			CreatedAt:    now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO booking_table_assignments (id, booking_id, restaurant_id, table_id, start_at, end_at, merge_group_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, row.BookingID, row.RestaurantID, row.TableID, row.StartAt, row.EndAt,
			sql.NullString{String: row.MergeGroupID, Valid: row.MergeGroupID != ""}, row.CreatedAt,
		); err != nil {
			return allocator.CommitPlanResult{}, err
		}
		assignments = append(assignments, row)
	}

	tableJSON, err := json.Marshal(allocator.NormalizeTableIDs(req.TableIDs))
	if err != nil {
		return allocator.CommitPlanResult{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO assignment_ledger (booking_id, idempotency_key, table_ids, start_at, end_at, policy_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.BookingID, req.IdempotencyKey, tableJSON, req.StartAt.UTC(), req.EndAt.UTC(), req.PolicyVersion, now,
	); err != nil {
		return allocator.CommitPlanResult{}, err
	}

	if req.TargetStatus != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
			req.TargetStatus, now, req.BookingID,
		); err != nil {
			return allocator.CommitPlanResult{}, err
		}
	}

	// Post-insert re-check catches a concurrent insert that beat
	// us to the same tables without touching the locked rows.
	if err := r.conflictCheckTx(ctx, tx, req, false); err != nil {
		return allocator.CommitPlanResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return allocator.CommitPlanResult{}, err
	}
	committed = true
	return allocator.CommitPlanResult{Assignments: assignments}, nil
}

// conflictCheckTx counts overlapping assignment rows on the target
// tables owned by other bookings that still block inventory.
func (r *AssignmentRepo) conflictCheckTx(ctx context.Context, tx *sql.Tx, req allocator.CommitPlanRequest, lock bool) error {
	placeholders := strings.Repeat("?,", len(req.TableIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{req.BookingID, req.EndAt.UTC(), req.StartAt.UTC()}
	for _, id := range req.TableIDs {
		args = append(args, id)
	}
	query := `SELECT COUNT(*)
	          FROM booking_table_assignments a
	          JOIN bookings b ON b.id = a.booking_id
	          WHERE a.booking_id <> ? AND a.start_at < ? AND a.end_at > ?
	            AND a.table_id IN (` + placeholders + `)
	            AND b.status IN ('pending', 'confirmed', 'seated')`
	if lock {
		query += ` FOR UPDATE`
	}
	var overlapping int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&overlapping); err != nil {
		return err
	}
	if overlapping > 0 {
		return fmt.Errorf("%w: %d overlapping assignment(s)", allocator.ErrCommitConflict, overlapping)
	}
	return nil
}

const assignmentColumns = `id, booking_id, restaurant_id, table_id, start_at, end_at, merge_group_id, created_at`

func scanAssignment(row interface{ Scan(...any) error }) (model.AssignmentMember, error) {
	var a model.AssignmentMember
	var mergeGroup sql.NullString
	err := row.Scan(&a.ID, &a.BookingID, &a.RestaurantID, &a.TableID, &a.StartAt, &a.EndAt, &mergeGroup, &a.CreatedAt)
	if err != nil {
		return model.AssignmentMember{}, err
	}
	a.MergeGroupID = mergeGroup.String
	return a, nil
}

func assignmentsForBookingTx(ctx context.Context, tx *sql.Tx, bookingID string) ([]model.AssignmentMember, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM booking_table_assignments WHERE booking_id = ? ORDER BY table_id`,
		bookingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AssignmentMember
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AssignmentsForBooking lists the committed assignment rows of a
// booking ordered by table id.
func (r *AssignmentRepo) AssignmentsForBooking(ctx context.Context, bookingID string) ([]model.AssignmentMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM booking_table_assignments WHERE booking_id = ? ORDER BY table_id`,
		bookingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AssignmentMember
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LedgerEntry fetches the ledger row for (booking, key), or nil
// when none exists.
func (r *AssignmentRepo) LedgerEntry(ctx context.Context, bookingID, key string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	var tableJSON []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT booking_id, idempotency_key, table_ids, start_at, end_at, policy_version, created_at
		 FROM assignment_ledger WHERE booking_id = ? AND idempotency_key = ?`,
		bookingID, key,
	).Scan(&entry.BookingID, &entry.IdempotencyKey, &tableJSON, &entry.StartAt, &entry.EndAt, &entry.PolicyVersion, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tableJSON, &entry.TableIDs); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UnassignBooking removes every assignment row of a booking. Used
// by reconciliation after a failed confirm.
func (r *AssignmentRepo) UnassignBooking(ctx context.Context, bookingID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM booking_table_assignments WHERE booking_id = ?`, bookingID)
	return err
}

// SyncAssignmentWindow rewrites the window on every assignment row
// of a booking, keeping replayed confirmations aligned with the
// freshly computed window.
func (r *AssignmentRepo) SyncAssignmentWindow(ctx context.Context, bookingID string, start, end time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE booking_table_assignments SET start_at = ?, end_at = ? WHERE booking_id = ?`,
		start.UTC(), end.UTC(), bookingID,
	)
	return err
}
