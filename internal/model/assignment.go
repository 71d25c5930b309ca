package model

import "time"

// AssignmentMember is one table assigned to a booking for a
// blocking window.  Multi-table plans share a merge group id so
// the whole party placement can be reasoned about as a unit.
//
// Fields:
//  ID           – primary key identifier.
//  BookingID    – booking the table is assigned to.
//  RestaurantID – restaurant the table belongs to.
//  TableID      – assigned table.
//  StartAt      – blocking window start (buffers included).
//  EndAt        – blocking window end (buffers included).
//  MergeGroupID – shared id across tables of one plan (empty for singles).
//  CreatedAt    – creation timestamp.
type AssignmentMember struct {
	ID           string    // booking_table_assignments.id
	BookingID    string    // booking_table_assignments.booking_id
	RestaurantID string    // booking_table_assignments.restaurant_id
	TableID      string    // booking_table_assignments.table_id
	StartAt      time.Time // booking_table_assignments.start_at
	EndAt        time.Time // booking_table_assignments.end_at
	MergeGroupID string    // booking_table_assignments.merge_group_id
	CreatedAt    time.Time // booking_table_assignments.created_at
}

// LedgerEntry records a completed confirmation under its
// deterministic idempotency key.  Replays with the same key and
// payload return the recorded outcome; replays with the same key
// but a different payload are rejected.
//
// Fields:
//  BookingID      – booking the confirmation belonged to.
//  IdempotencyKey – deterministic key of the confirmation payload.
//  TableIDs       – tables committed under this key.
//  StartAt        – committed window start.
//  EndAt          – committed window end.
//  PolicyVersion  – policy version hash at commit time.
//  CreatedAt      – creation timestamp.
type LedgerEntry struct {
	BookingID      string    // assignment_ledger.booking_id
	IdempotencyKey string    // assignment_ledger.idempotency_key
	TableIDs       []string  // assignment_ledger.table_ids
	StartAt        time.Time // assignment_ledger.start_at
	EndAt          time.Time // assignment_ledger.end_at
	PolicyVersion  string    // assignment_ledger.policy_version
	CreatedAt      time.Time // assignment_ledger.created_at
}
