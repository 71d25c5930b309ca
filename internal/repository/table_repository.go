package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/seatwise/table-allocation/internal/model"
)

// TableRepo provides data access to the tables and
// table_adjacency tables.
type TableRepo struct {
	db *sql.DB
}

// NewTableRepo returns a new TableRepo bound to the provided database.
func NewTableRepo(db *sql.DB) *TableRepo { return &TableRepo{db: db} }

const tableColumns = `id, restaurant_id, number, capacity, min_covers, zone_id, movable, active, created_at, updated_at`

func scanTable(row interface{ Scan(...any) error }) (model.Table, error) {
	var t model.Table
	var zone sql.NullString
	err := row.Scan(&t.ID, &t.RestaurantID, &t.Number, &t.Capacity, &t.MinCovers, &zone, &t.Movable, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Table{}, err
	}
	t.ZoneID = zone.String
	return t, nil
}

// ActiveTables lists every active table of a restaurant ordered
// by table number for stable iteration.
func (r *TableRepo) ActiveTables(ctx context.Context, restaurantID string) ([]model.Table, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tableColumns+` FROM tables WHERE restaurant_id = ? AND active = 1 ORDER BY number, id`,
		restaurantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TablesByIDs loads the named tables of a restaurant. Missing ids
// are simply absent from the result; callers compare lengths when
// they need all of them.
func (r *TableRepo) TablesByIDs(ctx context.Context, restaurantID string, ids []string) ([]model.Table, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, restaurantID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tableColumns+` FROM tables WHERE restaurant_id = ? AND id IN (`+placeholders+`) ORDER BY number, id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AdjacencyEdges loads the raw directed adjacency list of a
// restaurant. Symmetrization is a policy decision made by the
// allocator, not here.
func (r *TableRepo) AdjacencyEdges(ctx context.Context, restaurantID string) ([]model.AdjacencyEdge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT restaurant_id, table_id, adjacent_table_id FROM table_adjacency WHERE restaurant_id = ?`,
		restaurantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AdjacencyEdge
	for rows.Next() {
		var e model.AdjacencyEdge
		if err := rows.Scan(&e.RestaurantID, &e.TableID, &e.AdjacentID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
