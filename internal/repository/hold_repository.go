package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/seatwise/table-allocation/internal/model"
)

// HoldRepo provides data access to table_holds and
// table_hold_members. A hold past its expires_at timestamp is
// treated as released by every query here even before the sweeper
// physically removes the row.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a new HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

// CreateHold inserts the hold row, its member rows and the frozen
// metadata snapshot in one transaction.
func (r *HoldRepo) CreateHold(ctx context.Context, hold model.Hold) (model.Hold, error) {
	metadata, err := json.Marshal(hold.Metadata)
	if err != nil {
		return model.Hold{}, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Hold{}, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO table_holds (id, booking_id, restaurant_id, service_date, start_at, end_at, expires_at, created_by, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hold.ID, hold.BookingID, hold.RestaurantID, hold.ServiceDate,
		hold.StartAt.UTC(), hold.EndAt.UTC(), hold.ExpiresAt.UTC(),
		hold.CreatedBy, metadata, hold.CreatedAt.UTC(),
	); err != nil {
		return model.Hold{}, err
	}
	for _, tableID := range hold.TableIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO table_hold_members (hold_id, table_id) VALUES (?, ?)`,
			hold.ID, tableID,
		); err != nil {
			return model.Hold{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Hold{}, err
	}
	committed = true
	return hold, nil
}

// Hold retrieves a hold with its members and metadata.
func (r *HoldRepo) Hold(ctx context.Context, id string) (model.Hold, error) {
	var h model.Hold
	var metadata []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, booking_id, restaurant_id, service_date, start_at, end_at, expires_at, created_by, metadata, created_at
		 FROM table_holds WHERE id = ?`, id,
	).Scan(&h.ID, &h.BookingID, &h.RestaurantID, &h.ServiceDate, &h.StartAt, &h.EndAt, &h.ExpiresAt, &h.CreatedBy, &metadata, &h.CreatedAt)
	if err != nil {
		return model.Hold{}, notFound(err)
	}
	if len(metadata) > 0 {
		var m model.HoldMetadata
		if err := json.Unmarshal(metadata, &m); err == nil {
			h.Metadata = &m
		}
	}
	rows, err := r.db.QueryContext(ctx, `SELECT table_id FROM table_hold_members WHERE hold_id = ?`, id)
	if err != nil {
		return model.Hold{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var tableID string
		if err := rows.Scan(&tableID); err != nil {
			return model.Hold{}, err
		}
		h.TableIDs = append(h.TableIDs, tableID)
	}
	if err := rows.Err(); err != nil {
		return model.Hold{}, err
	}
	sort.Strings(h.TableIDs)
	return h, nil
}

// ReleaseHold deletes a hold and its members. Releasing a hold
// that no longer exists is a no-op, which makes retries and the
// sweeper race-free.
func (r *HoldRepo) ReleaseHold(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM table_hold_members WHERE hold_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM table_holds WHERE id = ?`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// LiveHoldsForDate lists every unexpired hold on the given
// venue-local service date.  Matching on the stored service_date
// rather than DATE(start_at) keeps evening holds on the right day
// for venues whose local date differs from the UTC date.
func (r *HoldRepo) LiveHoldsForDate(ctx context.Context, restaurantID, date string, now time.Time) ([]model.Hold, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT h.id, h.booking_id, h.restaurant_id, h.service_date, h.start_at, h.end_at, h.expires_at, h.created_by, h.metadata, h.created_at, m.table_id
		 FROM table_holds h
		 JOIN table_hold_members m ON m.hold_id = h.id
		 WHERE h.restaurant_id = ? AND h.service_date = ? AND h.expires_at > ?
		 ORDER BY h.id, m.table_id`,
		restaurantID, date, now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHolds(rows)
}

// HoldConflicts lists unexpired holds, other than excludeHoldID,
// covering any of the given tables with a window overlapping
// [start, end).
func (r *HoldRepo) HoldConflicts(ctx context.Context, restaurantID string, tableIDs []string, start, end time.Time, excludeHoldID string, now time.Time) ([]model.Hold, error) {
	if len(tableIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(tableIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{restaurantID, now.UTC(), start.UTC(), end.UTC()}
	for _, id := range tableIDs {
		args = append(args, id)
	}
	query := `SELECT DISTINCT h.id, h.booking_id, h.restaurant_id, h.service_date, h.start_at, h.end_at, h.expires_at, h.created_by, h.metadata, h.created_at, m.table_id
	          FROM table_holds h
	          JOIN table_hold_members m ON m.hold_id = h.id
	          WHERE h.restaurant_id = ? AND h.expires_at > ? AND h.end_at > ? AND h.start_at < ?
	            AND m.table_id IN (` + placeholders + `)`
	if excludeHoldID != "" {
		query += ` AND h.id <> ?`
		args = append(args, excludeHoldID)
	}
	query += ` ORDER BY h.id, m.table_id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHolds(rows)
}

// DeleteExpiredHolds removes up to limit lapsed holds and their
// members. The sweeper calls this on an interval.
func (r *HoldRepo) DeleteExpiredHolds(ctx context.Context, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM table_holds WHERE expires_at <= ? LIMIT ?`, now.UTC(), limit,
	)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			rows.Close()
			return 0, scanErr
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	var deleted int64
	for _, id := range ids {
		if err := r.ReleaseHold(ctx, id); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// collectHolds folds hold+member join rows into hold values.
func collectHolds(rows *sql.Rows) ([]model.Hold, error) {
	var out []model.Hold
	index := make(map[string]int)
	for rows.Next() {
		var h model.Hold
		var metadata []byte
		var tableID string
		if err := rows.Scan(&h.ID, &h.BookingID, &h.RestaurantID, &h.ServiceDate, &h.StartAt, &h.EndAt, &h.ExpiresAt, &h.CreatedBy, &metadata, &h.CreatedAt, &tableID); err != nil {
			return nil, err
		}
		if i, ok := index[h.ID]; ok {
			out[i].TableIDs = append(out[i].TableIDs, tableID)
			continue
		}
		if len(metadata) > 0 {
			var m model.HoldMetadata
			if err := json.Unmarshal(metadata, &m); err == nil {
				h.Metadata = &m
			}
		}
		h.TableIDs = []string{tableID}
		index[h.ID] = len(out)
		out = append(out, h)
	}
	return out, rows.Err()
}
