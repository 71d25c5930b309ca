package allocator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seatwise/table-allocation/internal/model"
	"github.com/seatwise/table-allocation/internal/policy"
)

func checkByName(t *testing.T, res SelectionResult, name string) SelectionCheck {
	t.Helper()
	for _, c := range res.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found in %+v", name, res.Checks)
	return SelectionCheck{}
}

func TestValidateSelectionCapacity(t *testing.T) {
	win := dinnerWindow(t, 6, "19:00")
	res := validateSelection(selectionContext{
		tables:    []model.Table{{ID: "t1", Number: "1", Capacity: 4}},
		partySize: 6,
		window:    win,
	})
	require.False(t, res.OK)
	require.Equal(t, CheckError, checkByName(t, res, "capacity").Status)
}

func TestValidateSelectionSlackWarning(t *testing.T) {
	win := dinnerWindow(t, 2, "19:00")
	res := validateSelection(selectionContext{
		tables:    []model.Table{{ID: "t1", Number: "1", Capacity: 10}},
		partySize: 2,
		window:    win,
	})
	// Eight spare covers for a deuce is worth flagging, but a
	// warning never fails the selection.
	require.True(t, res.OK)
	require.Equal(t, CheckWarning, checkByName(t, res, "slack").Status)

	res = validateSelection(selectionContext{
		tables:    []model.Table{{ID: "t1", Number: "1", Capacity: 4}},
		partySize: 2,
		window:    win,
	})
	require.Equal(t, CheckOK, checkByName(t, res, "slack").Status)
}

func TestValidateSelectionZoneWarning(t *testing.T) {
	win := dinnerWindow(t, 4, "19:00")
	res := validateSelection(selectionContext{
		tables: []model.Table{
			{ID: "t1", Number: "1", Capacity: 2, ZoneID: "main", Movable: true},
			{ID: "t2", Number: "2", Capacity: 2, ZoneID: "terrace", Movable: true},
		},
		partySize: 4,
		window:    win,
	})
	require.True(t, res.OK)
	require.Equal(t, CheckWarning, checkByName(t, res, "zone").Status)
}

func TestValidateSelectionMovable(t *testing.T) {
	win := dinnerWindow(t, 4, "19:00")
	res := validateSelection(selectionContext{
		tables: []model.Table{
			{ID: "t1", Number: "1", Capacity: 2, Movable: true},
			{ID: "t2", Number: "2", Capacity: 2, Movable: false},
		},
		partySize: 4,
		window:    win,
	})
	require.False(t, res.OK)
	require.Equal(t, CheckError, checkByName(t, res, "movable").Status)

	// A single fixed table is fine on its own.
	res = validateSelection(selectionContext{
		tables:    []model.Table{{ID: "t2", Number: "2", Capacity: 4, Movable: false}},
		partySize: 4,
		window:    win,
	})
	require.Equal(t, CheckOK, checkByName(t, res, "movable").Status)
}

func TestValidateSelectionAdjacency(t *testing.T) {
	win := dinnerWindow(t, 4, "19:00")
	graph := NewAdjacencyGraph(fixtureEdges(), true)
	pair := []model.Table{
		{ID: "t1", Number: "1", Capacity: 2, Movable: true},
		{ID: "t2", Number: "2", Capacity: 2, Movable: true},
	}

	res := validateSelection(selectionContext{
		tables: pair, partySize: 4, window: win,
		graph: graph, requireAdjacency: true,
	})
	require.Equal(t, CheckOK, checkByName(t, res, "adjacency").Status)

	// A table with no adjacency entry cannot be certified.
	uncertified := append(append([]model.Table(nil), pair...),
		model.Table{ID: "t9", Number: "9", Capacity: 2, Movable: true})
	res = validateSelection(selectionContext{
		tables: uncertified, partySize: 4, window: win,
		graph: graph, requireAdjacency: true,
	})
	require.Equal(t, CheckError, checkByName(t, res, "adjacency").Status)

	// Not required: always passes.
	res = validateSelection(selectionContext{
		tables: uncertified, partySize: 4, window: win, graph: graph,
	})
	require.Equal(t, CheckOK, checkByName(t, res, "adjacency").Status)
}

func TestValidateSelectionConflictsAndHolds(t *testing.T) {
	win := dinnerWindow(t, 2, "19:00")
	idx := BuildAvailabilityIndex(AvailabilityParams{
		Bookings: []model.ContextBooking{
			contextBooking("b2", model.BookingStatusConfirmed, "19:00", 2, "t1"),
		},
		Policy:       policy.Default(),
		Now:          testNow,
		TargetWindow: &win,
	})

	res := validateSelection(selectionContext{
		tables:    []model.Table{{ID: "t1", Number: "1", Capacity: 2}},
		partySize: 2,
		window:    win,
		index:     idx,
	})
	require.False(t, res.OK)
	require.Equal(t, CheckError, checkByName(t, res, "conflict").Status)

	res = validateSelection(selectionContext{
		tables:        []model.Table{{ID: "t2", Number: "2", Capacity: 2}},
		partySize:     2,
		window:        win,
		index:         idx,
		holdConflicts: []model.Hold{{ID: "h1"}},
	})
	require.False(t, res.OK)
	require.Equal(t, CheckError, checkByName(t, res, "holds").Status)
}

func TestCreateHoldSnapshot(t *testing.T) {
	f := newFakeStores()
	f.bookings["b1"] = fixtureBooking()
	f.tables = fixtureTables()
	f.edges = fixtureEdges()
	svc, _, _ := newTestService(t, f)

	win := dinnerWindow(t, 4, "19:00")
	graph := NewAdjacencyGraph(fixtureEdges(), true)
	tables, err := f.TablesByIDs(context.Background(), "r1", []string{"t1", "t2"})
	require.NoError(t, err)

	hold, err := svc.createHold(context.Background(), fixtureBooking(), tables, win, graph, true, "v1",
		model.SelectionSummary{TotalCapacity: 4, TableCount: 2}, "staff-7")
	require.NoError(t, err)

	require.NotEmpty(t, hold.ID)
	require.Equal(t, []string{"t1", "t2"}, hold.TableIDs)
	require.Equal(t, win.BlockStart, hold.StartAt)
	require.Equal(t, win.BlockEnd, hold.EndAt)
	require.Equal(t, testNow.Add(DefaultOptions().HoldTTL), hold.ExpiresAt)
	require.Equal(t, "staff-7", hold.CreatedBy)

	require.NotNil(t, hold.Metadata)
	require.Empty(t, hold.Metadata.MissingFields())
	require.True(t, hold.Metadata.RequireAdjacency)
	require.Equal(t, "v1", hold.Metadata.PolicyVersion)
	require.Equal(t, []string{"main"}, hold.Metadata.ZoneIDs)
	require.Equal(t, []string{"t1>t2"}, hold.Metadata.Adjacency.Edges)
}

func TestHoldServiceDateCrossesUTCMidnight(t *testing.T) {
	f := newFakeStores()
	booking := fixtureBooking()
	booking.PartySize = 2
	booking.StartTime = "21:00"
	booking.ServiceHint = ""
	f.bookings["b1"] = booking
	f.tables = fixtureTables()
	f.edges = fixtureEdges()

	pol := policy.Default()
	pol.Timezone = "America/New_York"
	pub := &capturePublisher{}
	sink := &captureSink{}
	svc, err := NewService(Config{
		Bookings:    f,
		Tables:      f,
		Holds:       f,
		Assignments: f,
		Policies:    policy.Static{Policy: pol},
		Events:      pub,
		Observer:    sink,
		Options:     DefaultOptions(),
		Clock:       func() time.Time { return testNow },
	})
	require.NoError(t, err)

	res, err := svc.QuoteTablesForBooking(context.Background(), QuoteRequest{BookingID: "b1"})
	require.NoError(t, err)
	require.NotNil(t, res.Hold)

	// A 21:00 New York dinner blocks tables from 00:50Z the next
	// UTC day; the hold must still file under the local date so
	// day-scoped reads keep seeing it.
	require.Equal(t, "2026-03-15", res.Hold.StartAt.UTC().Format("2006-01-02"))
	require.Equal(t, "2026-03-14", res.Hold.ServiceDate)

	live, err := f.LiveHoldsForDate(context.Background(), "r1", "2026-03-14", testNow)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, res.Hold.ID, live[0].ID)
}

func TestSweepExpiredHolds(t *testing.T) {
	f := newFakeStores()
	f.bookings["b1"] = fixtureBooking()
	f.tables = fixtureTables()
	svc, _, _ := newTestService(t, f)

	f.holds["live"] = model.Hold{ID: "live", ExpiresAt: testNow.Add(time.Minute)}
	f.holds["dead1"] = model.Hold{ID: "dead1", ExpiresAt: testNow.Add(-time.Minute)}
	f.holds["dead2"] = model.Hold{ID: "dead2", ExpiresAt: testNow}

	n, err := svc.SweepExpiredHolds(context.Background(), 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	_, ok := f.holds["live"]
	require.True(t, ok)
}

func TestReleaseHoldRetries(t *testing.T) {
	f := newFakeStores()
	f.bookings["b1"] = fixtureBooking()
	f.tables = fixtureTables()
	svc, _, _ := newTestService(t, f)

	f.holds["h1"] = model.Hold{ID: "h1", ExpiresAt: testNow.Add(time.Minute)}
	f.releaseFailures = 2

	require.NoError(t, svc.releaseHold(context.Background(), "h1"))
	_, ok := f.holds["h1"]
	require.False(t, ok)
}
