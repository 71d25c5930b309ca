package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/seatwise/table-allocation/internal/allocator"
	"github.com/seatwise/table-allocation/internal/model"
)

// BookingRepo provides data access to the bookings table. All
// timestamps are stored and compared in UTC; the DSN must set
// parseTime=true and loc=UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, restaurant_id, party_size, status, booking_date, start_time, start_at, service_hint, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var b model.Booking
	var startAt sql.NullTime
	var hint sql.NullString
	err := row.Scan(&b.ID, &b.RestaurantID, &b.PartySize, &b.Status, &b.BookingDate, &b.StartTime, &startAt, &hint, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	if startAt.Valid {
		t := startAt.Time.UTC()
		b.StartAt = &t
	}
	b.ServiceHint = hint.String
	return b, nil
}

// Booking retrieves a single booking by id.
func (r *BookingRepo) Booking(ctx context.Context, id string) (model.Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		return model.Booking{}, notFound(err)
	}
	return b, nil
}

// ContextBookings loads every booking of a restaurant on a service
// date together with its currently assigned table ids. The result
// is the raw material for the availability index; filtering by
// blocking status happens in the allocator.
func (r *BookingRepo) ContextBookings(ctx context.Context, restaurantID, date string) ([]model.ContextBooking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE restaurant_id = ? AND booking_date = ?`,
		restaurantID, date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ContextBooking
	index := make(map[string]int)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		index[b.ID] = len(out)
		out = append(out, model.ContextBooking{Booking: b})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	assignRows, err := r.db.QueryContext(ctx,
		`SELECT a.booking_id, a.table_id
		 FROM booking_table_assignments a
		 JOIN bookings b ON b.id = a.booking_id
		 WHERE b.restaurant_id = ? AND b.booking_date = ?`,
		restaurantID, date,
	)
	if err != nil {
		return nil, err
	}
	defer assignRows.Close()
	for assignRows.Next() {
		var bookingID, tableID string
		if err := assignRows.Scan(&bookingID, &tableID); err != nil {
			return nil, err
		}
		if i, ok := index[bookingID]; ok {
			out[i].AssignedTableIDs = append(out[i].AssignedTableIDs, tableID)
		}
	}
	return out, assignRows.Err()
}

// UpdateBookingStatus transitions a booking to the given status.
func (r *BookingRepo) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), bookingID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return allocator.ErrNotFound
	}
	return nil
}

// BookingState returns the status and assignment count snapshot
// used by the confirm wrapper for pre/post comparison.
func (r *BookingRepo) BookingState(ctx context.Context, bookingID string) (allocator.BookingState, error) {
	var state allocator.BookingState
	err := r.db.QueryRowContext(ctx,
		`SELECT b.status, COUNT(a.id)
		 FROM bookings b
		 LEFT JOIN booking_table_assignments a ON a.booking_id = b.id
		 WHERE b.id = ?
		 GROUP BY b.status`,
		bookingID,
	).Scan(&state.Status, &state.AssignmentCount)
	if err != nil {
		return allocator.BookingState{}, notFound(err)
	}
	return state, nil
}
