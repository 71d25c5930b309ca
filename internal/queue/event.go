// Package queue defines message payloads exchanged over the message broker.
package queue

// AssignmentSyncEvent is published when assignment timing metadata
// was rewritten to match a freshly computed booking window, so
// downstream calendars and pacing views can refresh.
type AssignmentSyncEvent struct {
	BookingID    string   `json:"booking_id"`
	RestaurantID string   `json:"restaurant_id"`
	TableIDs     []string `json:"table_ids"`
	StartAt      string   `json:"start_at"`
	EndAt        string   `json:"end_at"`
	SyncedAt     string   `json:"synced_at"`
}

// HoldConfirmedEvent is published when a hold is successfully
// converted into committed table assignments. It contains enough
// information for downstream consumers to notify, log or trigger
// analytics without querying the primary database.
type HoldConfirmedEvent struct {
	BookingID    string   `json:"booking_id"`
	RestaurantID string   `json:"restaurant_id"`
	HoldID       string   `json:"hold_id"`
	TableIDs     []string `json:"table_ids"`
	StartAt      string   `json:"start_at"`
	EndAt        string   `json:"end_at"`
	Replayed     bool     `json:"replayed"`
	ConfirmedAt  string   `json:"confirmed_at"`
}

// PolicyDriftEvent is published when a confirmation found the live
// policy or table topology diverged from a hold's frozen snapshot.
type PolicyDriftEvent struct {
	BookingID  string         `json:"booking_id"`
	HoldID     string         `json:"hold_id"`
	Kind       string         `json:"kind"` // policy-version or topology
	Details    map[string]any `json:"details,omitempty"`
	DetectedAt string         `json:"detected_at"`
}
