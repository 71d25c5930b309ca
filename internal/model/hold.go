package model

import "time"

// Hold is a short-lived soft lock on a set of tables while a
// quote is awaiting confirmation.  Holds carry a frozen snapshot
// of the selection and the policy version that produced it so
// that confirmation can detect drift.  Expired holds are treated
// as released everywhere and are physically removed by a sweeper.
//
// Fields:
//  ID           – primary key identifier.
//  BookingID    – booking the hold was quoted for.
//  RestaurantID – restaurant the held tables belong to.
//  TableIDs     – tables covered by the hold.
//  ServiceDate  – venue-local service date the hold belongs to.
//  StartAt      – blocking window start (buffers included).
//  EndAt        – blocking window end (buffers included).
//  ExpiresAt    – instant after which the hold no longer blocks.
//  CreatedBy    – actor that created the hold.
//  Metadata     – frozen selection snapshot (nullable on legacy rows).
//  CreatedAt    – creation timestamp.
type Hold struct {
	ID           string        // table_holds.id
	BookingID    string        // table_holds.booking_id
	RestaurantID string        // table_holds.restaurant_id
	TableIDs     []string      // table_holds.table_ids
	ServiceDate  string        // table_holds.service_date (venue-local YYYY-MM-DD)
	StartAt      time.Time     // table_holds.start_at
	EndAt        time.Time     // table_holds.end_at
	ExpiresAt    time.Time     // table_holds.expires_at
	CreatedBy    string        // table_holds.created_by
	Metadata     *HoldMetadata // table_holds.metadata (nullable)
	CreatedAt    time.Time     // table_holds.created_at
}

// Expired reports whether the hold has lapsed as of now.
func (h Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// HoldMetadata is the frozen context captured when a hold is
// created.  Confirmation validates the live world against this
// snapshot rather than against whatever produced the quote.
type HoldMetadata struct {
	RequireAdjacency bool              `json:"requireAdjacency"`
	PolicyVersion    string            `json:"policyVersion"`
	Selection        SelectionSnapshot `json:"selection"`
	ZoneIDs          []string          `json:"zoneIds"`
	Adjacency        AdjacencySnapshot `json:"adjacency"`
}

// SelectionSnapshot freezes which tables were chosen and the
// headline numbers of the winning plan.
type SelectionSnapshot struct {
	TableIDs []string         `json:"tableIds"`
	Summary  SelectionSummary `json:"summary"`
}

// SelectionSummary carries the plan figures shown back to the
// operator alongside a quote.
type SelectionSummary struct {
	TotalCapacity int     `json:"totalCapacity"`
	TableCount    int     `json:"tableCount"`
	Score         float64 `json:"score"`
}

// AdjacencySnapshot freezes the adjacency edges among the
// selected tables at quote time, plus a hash for cheap drift
// comparison.
type AdjacencySnapshot struct {
	Undirected bool     `json:"undirected"`
	Edges      []string `json:"edges"`
	Hash       string   `json:"hash"`
}

// MissingFields returns the dotted paths of required metadata
// fields that are absent.  An empty result means the snapshot is
// complete enough to confirm against.
func (m *HoldMetadata) MissingFields() []string {
	if m == nil {
		return []string{"metadata"}
	}
	var missing []string
	if len(m.Selection.TableIDs) == 0 {
		missing = append(missing, "selection.tableIds")
	}
	if m.ZoneIDs == nil {
		missing = append(missing, "zoneIds")
	}
	if m.Adjacency.Hash == "" {
		missing = append(missing, "adjacency.hash")
	}
	if m.PolicyVersion == "" {
		missing = append(missing, "policyVersion")
	}
	return missing
}
