package model

import "time"

// Table describes a physical dining table in a restaurant.
// Tables carry a seating capacity plus an optional minimum
// covers threshold that single-table plans must respect, and a
// mobility flag used by merge rules (only movable tables may be
// joined into multi-table plans).
//
// Fields:
//  ID           – primary key identifier.
//  RestaurantID – restaurant to which this table belongs.
//  Number       – human-facing table number or label.
//  Capacity     – maximum covers the table seats.
//  MinCovers    – minimum covers required to book the table alone.
//  ZoneID       – dining zone the table sits in (empty if unzoned).
//  Movable      – whether the table may participate in merges.
//  Active       – whether the table is bookable at all.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type Table struct {
	ID           string    // tables.id
	RestaurantID string    // tables.restaurant_id
	Number       string    // tables.number
	Capacity     int       // tables.capacity
	MinCovers    int       // tables.min_covers
	ZoneID       string    // tables.zone_id (empty if unzoned)
	Movable      bool      // tables.movable
	Active       bool      // tables.active
	CreatedAt    time.Time // tables.created_at
	UpdatedAt    time.Time // tables.updated_at
}

// AdjacencyEdge records that one table is physically adjacent to
// another.  Edges are stored directed; callers decide whether to
// symmetrize them when building a graph.
//
// Fields:
//  RestaurantID – restaurant the edge belongs to.
//  TableID      – source table of the edge.
//  AdjacentID   – table considered adjacent to the source.
type AdjacencyEdge struct {
	RestaurantID string // table_adjacency.restaurant_id
	TableID      string // table_adjacency.table_id
	AdjacentID   string // table_adjacency.adjacent_table_id
}
