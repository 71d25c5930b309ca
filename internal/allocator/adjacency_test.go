package allocator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seatwise/table-allocation/internal/model"
)

func edge(from, to string) model.AdjacencyEdge {
	return model.AdjacencyEdge{RestaurantID: "r1", TableID: from, AdjacentID: to}
}

func TestAdjacencyGraphConnected(t *testing.T) {
	g := NewAdjacencyGraph([]model.AdjacencyEdge{
		edge("t1", "t2"),
		edge("t2", "t3"),
		edge("t4", "t5"),
	}, true)

	require.True(t, g.Connected(nil))
	require.True(t, g.Connected([]string{"t1"}))
	require.True(t, g.Connected([]string{"t1", "t2"}))
	require.True(t, g.Connected([]string{"t1", "t2", "t3"}))
	// t1-t3 without t2: the connecting table is outside the set.
	require.False(t, g.Connected([]string{"t1", "t3"}))
	require.False(t, g.Connected([]string{"t1", "t4"}))
}

func TestAdjacencyGraphDirected(t *testing.T) {
	g := NewAdjacencyGraph([]model.AdjacencyEdge{edge("t1", "t2")}, false)
	require.False(t, g.Undirected())
	// BFS from t2 cannot reach t1 over a one-way edge.
	require.False(t, g.Connected([]string{"t2", "t1"}))
	require.True(t, g.Connected([]string{"t1", "t2"}))
}

func TestAdjacencyGraphIgnoresDegenerateEdges(t *testing.T) {
	g := NewAdjacencyGraph([]model.AdjacencyEdge{
		edge("t1", "t1"),
		edge("", "t2"),
		edge("t3", ""),
	}, true)
	require.False(t, g.HasEntry("t1"))
	require.False(t, g.HasEntry("t2"))
	require.False(t, g.HasEntry("t3"))
}

func TestAdjacencyGraphHasEntry(t *testing.T) {
	g := NewAdjacencyGraph([]model.AdjacencyEdge{edge("t1", "t2")}, true)
	require.True(t, g.HasEntry("t1"))
	require.True(t, g.HasEntry("t2"))
	require.False(t, g.HasEntry("t3"))
}

func TestSnapshotForCanonicalization(t *testing.T) {
	// Same physical adjacency loaded in opposite edge directions
	// must freeze to identical snapshots when undirected.
	a := NewAdjacencyGraph([]model.AdjacencyEdge{edge("t1", "t2")}, true)
	b := NewAdjacencyGraph([]model.AdjacencyEdge{edge("t2", "t1")}, true)

	snapA := a.SnapshotFor([]string{"t1", "t2"})
	snapB := b.SnapshotFor([]string{"t1", "t2"})
	require.Equal(t, []string{"t1>t2"}, snapA.Edges)
	require.Equal(t, snapA.Edges, snapB.Edges)
	require.Equal(t, snapA.Hash, snapB.Hash)
	require.True(t, snapA.Undirected)
}

func TestSnapshotForDirectedKeepsOrientation(t *testing.T) {
	g := NewAdjacencyGraph([]model.AdjacencyEdge{edge("t2", "t1")}, false)
	snap := g.SnapshotFor([]string{"t1", "t2"})
	require.Equal(t, []string{"t2>t1"}, snap.Edges)
	require.False(t, snap.Undirected)

	und := NewAdjacencyGraph([]model.AdjacencyEdge{edge("t2", "t1")}, true)
	require.NotEqual(t, snap.Hash, und.SnapshotFor([]string{"t1", "t2"}).Hash)
}

func TestSnapshotForRestrictsToSelection(t *testing.T) {
	g := NewAdjacencyGraph([]model.AdjacencyEdge{
		edge("t1", "t2"),
		edge("t2", "t3"),
	}, true)
	snap := g.SnapshotFor([]string{"t1", "t2"})
	require.Equal(t, []string{"t1>t2"}, snap.Edges)
}

func TestZoneIDsFor(t *testing.T) {
	zones := ZoneIDsFor([]model.Table{
		{ID: "t1", ZoneID: "terrace"},
		{ID: "t2", ZoneID: "main"},
		{ID: "t3", ZoneID: "main"},
		{ID: "t4"}, // unzoned
	})
	require.Equal(t, []string{"main", "terrace"}, zones)
}
