package allocator

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/seatwise/table-allocation/internal/model"
)

// AdjacencyGraph is a restaurant's table adjacency, loaded as a
// directed adjacency list and optionally symmetrized.  A table
// that appears in no edge at all is "unknown" to the graph, which
// planners treat as uncertifiable rather than isolated.
type AdjacencyGraph struct {
	undirected bool
	neighbors  map[string]map[string]bool
	known      map[string]bool
}

// NewAdjacencyGraph builds the graph from raw edges.  With
// undirected set, every edge is mirrored.
func NewAdjacencyGraph(edges []model.AdjacencyEdge, undirected bool) *AdjacencyGraph {
	g := &AdjacencyGraph{
		undirected: undirected,
		neighbors:  make(map[string]map[string]bool),
		known:      make(map[string]bool),
	}
	add := func(from, to string) {
		set := g.neighbors[from]
		if set == nil {
			set = make(map[string]bool)
			g.neighbors[from] = set
		}
		set[to] = true
	}
	for _, e := range edges {
		if e.TableID == "" || e.AdjacentID == "" || e.TableID == e.AdjacentID {
			continue
		}
		g.known[e.TableID] = true
		g.known[e.AdjacentID] = true
		add(e.TableID, e.AdjacentID)
		if undirected {
			add(e.AdjacentID, e.TableID)
		}
	}
	return g
}

// Undirected reports the symmetrization mode the graph was built with.
func (g *AdjacencyGraph) Undirected() bool { return g.undirected }

// HasEntry reports whether the table participates in any edge.
func (g *AdjacencyGraph) HasEntry(tableID string) bool { return g.known[tableID] }

// Connected reports whether the table set forms a single
// connected component using only edges whose endpoints are both
// in the set.  Empty and single-table sets are connected.
func (g *AdjacencyGraph) Connected(tableIDs []string) bool {
	if len(tableIDs) <= 1 {
		return true
	}
	inSet := make(map[string]bool, len(tableIDs))
	for _, id := range tableIDs {
		inSet[id] = true
	}
	visited := map[string]bool{tableIDs[0]: true}
	queue := []string{tableIDs[0]}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.neighbors[cur] {
			if inSet[next] && !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return len(visited) == len(inSet)
}

// SnapshotFor freezes the edges among the given tables into the
// shape stored on holds: a sorted, canonical edge list plus a
// hash for cheap drift comparison.  Undirected edges are
// canonicalized with the lesser id first so the hash does not
// depend on load order.
func (g *AdjacencyGraph) SnapshotFor(tableIDs []string) model.AdjacencySnapshot {
	inSet := make(map[string]bool, len(tableIDs))
	for _, id := range tableIDs {
		inSet[id] = true
	}
	seen := make(map[string]bool)
	var edges []string
	for from, tos := range g.neighbors {
		if !inSet[from] {
			continue
		}
		for to := range tos {
			if !inSet[to] {
				continue
			}
			key := from + ">" + to
			if g.undirected && from > to {
				key = to + ">" + from
			}
			if !seen[key] {
				seen[key] = true
				edges = append(edges, key)
			}
		}
	}
	sort.Strings(edges)
	return model.AdjacencySnapshot{
		Undirected: g.undirected,
		Edges:      edges,
		Hash:       hashAdjacency(g.undirected, edges),
	}
}

func hashAdjacency(undirected bool, edges []string) string {
	mode := "directed"
	if undirected {
		mode = "undirected"
	}
	sum := sha256.Sum256([]byte(mode + "|" + strings.Join(edges, ",")))
	return hex.EncodeToString(sum[:])
}

// ZoneIDsFor returns the sorted distinct zone ids of the tables.
// Unzoned tables contribute nothing.
func ZoneIDsFor(tables []model.Table) []string {
	seen := make(map[string]bool)
	var zones []string
	for _, t := range tables {
		if t.ZoneID != "" && !seen[t.ZoneID] {
			seen[t.ZoneID] = true
			zones = append(zones, t.ZoneID)
		}
	}
	sort.Strings(zones)
	return zones
}
