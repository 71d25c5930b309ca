package allocator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seatwise/table-allocation/internal/model"
)

func TestEvaluateManualSelection(t *testing.T) {
	svc, _, _, _ := quoteFixture(t)

	t.Run("passing selection", func(t *testing.T) {
		eval, err := svc.EvaluateManualSelection(context.Background(), ManualSelectionRequest{
			BookingID:        "b1",
			TableIDs:         []string{"t1", "t2"},
			RequireAdjacency: true,
		})
		require.NoError(t, err)
		require.True(t, eval.Result.OK)
		require.Nil(t, eval.Hold) // evaluation never creates holds
		require.Len(t, eval.Tables, 2)
		require.Equal(t, "dinner", eval.Window.Service)
	})

	t.Run("undersized selection fails", func(t *testing.T) {
		eval, err := svc.EvaluateManualSelection(context.Background(), ManualSelectionRequest{
			BookingID: "b1",
			TableIDs:  []string{"t1"},
		})
		require.NoError(t, err)
		require.False(t, eval.Result.OK)
		require.Equal(t, CheckError, checkByName(t, eval.Result, "capacity").Status)
	})

	t.Run("empty selection", func(t *testing.T) {
		_, err := svc.EvaluateManualSelection(context.Background(), ManualSelectionRequest{BookingID: "b1"})
		require.True(t, HasCode(err, CodeInvalidInput))
	})

	t.Run("unknown tables", func(t *testing.T) {
		_, err := svc.EvaluateManualSelection(context.Background(), ManualSelectionRequest{
			BookingID: "b1",
			TableIDs:  []string{"t1", "t99"},
		})
		require.True(t, HasCode(err, CodeInvalidInput))
	})
}

func TestEvaluateManualSelectionSeesBookedTables(t *testing.T) {
	svc, f, _, _ := quoteFixture(t)
	f.contextBookings = []model.ContextBooking{
		contextBooking("b2", model.BookingStatusConfirmed, "19:00", 2, "t1"),
	}

	eval, err := svc.EvaluateManualSelection(context.Background(), ManualSelectionRequest{
		BookingID: "b1",
		TableIDs:  []string{"t1", "t2"},
	})
	require.NoError(t, err)
	require.False(t, eval.Result.OK)
	require.Equal(t, CheckError, checkByName(t, eval.Result, "conflict").Status)
}

func TestCreateManualHold(t *testing.T) {
	svc, f, _, sink := quoteFixture(t)

	eval, err := svc.CreateManualHold(context.Background(), ManualSelectionRequest{
		BookingID:        "b1",
		TableIDs:         []string{"t1", "t2"},
		RequireAdjacency: true,
		ActorID:          "staff-7",
	})
	require.NoError(t, err)
	require.True(t, eval.Result.OK)
	require.NotNil(t, eval.Hold)
	require.Equal(t, []string{"t1", "t2"}, eval.Hold.TableIDs)
	require.Equal(t, "staff-7", eval.Hold.CreatedBy)
	require.Empty(t, eval.Hold.Metadata.MissingFields())

	_, stored := f.holds[eval.Hold.ID]
	require.True(t, stored)

	var created bool
	for _, e := range sink.events {
		if e.EventType == "manual.hold_created" {
			created = true
		}
	}
	require.True(t, created)
}

func TestCreateManualHoldRefusesFailingSelection(t *testing.T) {
	svc, f, _, _ := quoteFixture(t)

	eval, err := svc.CreateManualHold(context.Background(), ManualSelectionRequest{
		BookingID: "b1",
		TableIDs:  []string{"t1"}, // two covers for a party of four
	})
	require.NoError(t, err)
	require.False(t, eval.Result.OK)
	require.Nil(t, eval.Hold)
	require.Empty(t, f.holds)
}

func TestManualHoldBlocksQuotes(t *testing.T) {
	svc, f, _, _ := quoteFixture(t)

	eval, err := svc.CreateManualHold(context.Background(), ManualSelectionRequest{
		BookingID: "b1",
		TableIDs:  []string{"t1", "t2"},
		ActorID:   "staff-7",
	})
	require.NoError(t, err)
	require.NotNil(t, eval.Hold)

	// A later quote for another booking the same evening cannot use
	// the held deuces.
	other := fixtureBooking()
	other.ID = "b2"
	f.bookings["b2"] = other

	res, err := svc.QuoteTablesForBooking(context.Background(), QuoteRequest{BookingID: "b2"})
	require.NoError(t, err)
	require.NotNil(t, res.Candidate)
	require.Equal(t, "3", res.Candidate.Key)
}

func TestManualAssignmentContext(t *testing.T) {
	svc, f, _, _ := quoteFixture(t)

	ctx1, err := svc.ManualAssignmentContext(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, ctx1.Tables, 3)
	require.NotEmpty(t, ctx1.ContextVersion)
	for _, component := range []string{"policy", "window", "tables", "adjacency", "holds", "assignments"} {
		require.Contains(t, ctx1.Versions, component)
	}

	// Nothing moved: the version is stable.
	ctx2, err := svc.ManualAssignmentContext(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, ctx1.ContextVersion, ctx2.ContextVersion)

	// A capacity change moves exactly the tables component.
	f.tables[0].Capacity = 8
	ctx3, err := svc.ManualAssignmentContext(context.Background(), "b1")
	require.NoError(t, err)
	require.NotEqual(t, ctx1.ContextVersion, ctx3.ContextVersion)
	require.NotEqual(t, ctx1.Versions["tables"], ctx3.Versions["tables"])
	require.Equal(t, ctx1.Versions["policy"], ctx3.Versions["policy"])
	require.Equal(t, ctx1.Versions["window"], ctx3.Versions["window"])

	// A new hold moves the holds component.
	win := dinnerWindow(t, 4, "19:00")
	f.holds["h1"] = model.Hold{
		ID:          "h1",
		BookingID:   "b9",
		TableIDs:    []string{"t3"},
		ServiceDate: "2026-03-14",
		StartAt:     win.BlockStart,
		EndAt:       win.BlockEnd,
		ExpiresAt:   testNow.Add(time.Minute),
	}
	ctx4, err := svc.ManualAssignmentContext(context.Background(), "b1")
	require.NoError(t, err)
	require.NotEqual(t, ctx3.Versions["holds"], ctx4.Versions["holds"])
	require.Len(t, ctx4.Holds, 1)
	require.NotEmpty(t, ctx4.Busy["t3"])
}

func TestManualAssignmentContextBookingNotFound(t *testing.T) {
	svc, _, _, _ := quoteFixture(t)
	_, err := svc.ManualAssignmentContext(context.Background(), "missing")
	require.True(t, HasCode(err, CodeBookingNotFound))
}
