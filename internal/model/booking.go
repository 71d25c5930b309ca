package model

import "time"

// Booking statuses that block table inventory.  A booking in any
// other state (cancelled, no-show, completed) frees its tables.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusSeated    = "seated"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
	BookingStatusNoShow    = "no_show"
)

// BlocksInventory reports whether a booking in the given status
// still occupies its assigned tables.
func BlocksInventory(status string) bool {
	switch status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusSeated:
		return true
	}
	return false
}

// Booking is a reservation request for a party at a restaurant.
// StartAt is the authoritative start instant when present; the
// date and time strings are kept as the guest-entered local
// values and are used to derive the start when StartAt is null.
//
// Fields:
//  ID           – primary key identifier.
//  RestaurantID – restaurant the booking belongs to.
//  PartySize    – number of covers.
//  Status       – lifecycle state (pending, confirmed, seated, ...).
//  BookingDate  – local service date, formatted YYYY-MM-DD.
//  StartTime    – local start time, formatted HH:MM.
//  StartAt      – absolute start instant (nullable).
//  ServiceHint  – requested service period key, if the guest picked one.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type Booking struct {
	ID           string     // bookings.id
	RestaurantID string     // bookings.restaurant_id
	PartySize    int        // bookings.party_size
	Status       string     // bookings.status
	BookingDate  string     // bookings.booking_date
	StartTime    string     // bookings.start_time
	StartAt      *time.Time // bookings.start_at (nullable)
	ServiceHint  string     // bookings.service_hint (empty if none)
	CreatedAt    time.Time  // bookings.created_at
	UpdatedAt    time.Time  // bookings.updated_at
}

// ContextBooking is a booking enriched with the tables currently
// assigned to it.  The availability index is built from a day's
// worth of these.
type ContextBooking struct {
	Booking
	AssignedTableIDs []string // table ids from booking_table_assignments
}
