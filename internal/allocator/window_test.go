package allocator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seatwise/table-allocation/internal/policy"
)

func TestComputeWindowServiceResolution(t *testing.T) {
	pol := policy.Default()

	t.Run("explicit hint wins", func(t *testing.T) {
		win, err := ComputeWindow(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "19:00",
			PartySize:   2,
			ServiceHint: "dinner",
		}, pol)
		require.NoError(t, err)
		require.Equal(t, "dinner", win.Service)
		require.Equal(t, 90*time.Minute, win.Duration)
		require.Equal(t, time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC), win.DiningStart)
		require.Equal(t, time.Date(2026, 3, 14, 20, 30, 0, 0, time.UTC), win.DiningEnd)
		require.Equal(t, time.Date(2026, 3, 14, 18, 50, 0, 0, time.UTC), win.BlockStart)
		require.Equal(t, time.Date(2026, 3, 14, 20, 45, 0, 0, time.UTC), win.BlockEnd)
		require.False(t, win.Clamped)
	})

	t.Run("time of day lookup without hint", func(t *testing.T) {
		win, err := ComputeWindow(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "13:00",
			PartySize:   2,
		}, pol)
		require.NoError(t, err)
		require.Equal(t, "lunch", win.Service)
	})

	t.Run("unknown hint falls through to time of day", func(t *testing.T) {
		win, err := ComputeWindow(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "13:00",
			PartySize:   2,
			ServiceHint: "brunch",
		}, pol)
		require.NoError(t, err)
		require.Equal(t, "lunch", win.Service)
	})

	t.Run("no service covers the start", func(t *testing.T) {
		_, err := ComputeWindow(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "16:00",
			PartySize:   2,
		}, pol)
		require.Error(t, err)
		require.True(t, HasCode(err, CodeServiceNotFound))
	})

	t.Run("explicit instant overrides date and time strings", func(t *testing.T) {
		at := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
		win, err := ComputeWindow(WindowRequest{
			StartAt:     &at,
			BookingDate: "2026-03-14",
			StartTime:   "13:00",
			PartySize:   2,
		}, pol)
		require.NoError(t, err)
		require.Equal(t, "dinner", win.Service)
	})
}

func TestComputeWindowDurationBands(t *testing.T) {
	pol := policy.Default()
	cases := []struct {
		party int
		want  time.Duration
	}{
		{1, 90 * time.Minute},
		{2, 90 * time.Minute},
		{4, 105 * time.Minute},
		{6, 120 * time.Minute},
		{10, 150 * time.Minute},
		{30, 150 * time.Minute}, // beyond the last band ceiling
	}
	for _, tc := range cases {
		win, err := ComputeWindow(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "18:00",
			PartySize:   tc.party,
		}, pol)
		require.NoError(t, err)
		require.Equal(t, tc.want, win.Duration, "party of %d", tc.party)
	}
}

func TestComputeWindowClampAndOverrun(t *testing.T) {
	pol := policy.Default()

	t.Run("late booking is clamped to service close", func(t *testing.T) {
		win, err := ComputeWindow(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "22:30",
			PartySize:   2,
		}, pol)
		require.NoError(t, err)
		require.True(t, win.Clamped)
		require.Equal(t, time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC), win.BlockEnd)
		require.Equal(t, time.Date(2026, 3, 14, 22, 45, 0, 0, time.UTC), win.DiningEnd)
		require.Equal(t, 15*time.Minute, win.Duration)
	})

	t.Run("clamp that erases the dining interval is an overrun", func(t *testing.T) {
		_, err := ComputeWindow(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "22:50",
			PartySize:   2,
		}, pol)
		require.Error(t, err)
		require.True(t, HasCode(err, CodeServiceOverrun))
	})

	t.Run("overrun-permitting service is not clamped", func(t *testing.T) {
		loose := policy.Default()
		for i := range loose.Services {
			loose.Services[i].AllowOverrun = true
		}
		win, err := ComputeWindow(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "22:30",
			PartySize:   2,
		}, loose)
		require.NoError(t, err)
		require.False(t, win.Clamped)
		require.Equal(t, time.Date(2026, 3, 15, 0, 15, 0, 0, time.UTC), win.BlockEnd)
	})
}

func TestComputeWindowInvalidInput(t *testing.T) {
	pol := policy.Default()

	_, err := ComputeWindow(WindowRequest{PartySize: 2}, pol)
	require.True(t, HasCode(err, CodeInvalidInput))

	_, err = ComputeWindow(WindowRequest{BookingDate: "not-a-date", StartTime: "19:00", PartySize: 2}, pol)
	require.True(t, HasCode(err, CodeInvalidInput))
}

func TestComputeWindowWithFallback(t *testing.T) {
	pol := policy.Default()

	t.Run("no fallback when the window resolves", func(t *testing.T) {
		win, used, key, err := ComputeWindowWithFallback(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "19:00",
			PartySize:   2,
		}, pol)
		require.NoError(t, err)
		require.False(t, used)
		require.Empty(t, key)
		require.Equal(t, "dinner", win.Service)
	})

	t.Run("gap start borrows the first service", func(t *testing.T) {
		win, used, key, err := ComputeWindowWithFallback(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "11:00",
			PartySize:   2,
		}, pol)
		require.NoError(t, err)
		require.True(t, used)
		require.Equal(t, "lunch", key)
		require.Equal(t, "lunch", win.Service)
	})

	t.Run("gap start past the borrowed close overruns", func(t *testing.T) {
		// 16:00 falls in the afternoon gap; borrowing lunch still
		// clamps to its 15:00 close, which erases the dining
		// interval entirely.
		_, _, _, err := ComputeWindowWithFallback(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "16:00",
			PartySize:   2,
		}, pol)
		require.Error(t, err)
		require.True(t, HasCode(err, CodeServiceOverrun))
	})

	t.Run("valid hint resolves without the fallback", func(t *testing.T) {
		win, used, _, err := ComputeWindowWithFallback(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "16:00",
			PartySize:   2,
			ServiceHint: "dinner",
		}, pol)
		require.NoError(t, err)
		require.False(t, used)
		require.Equal(t, "dinner", win.Service)
	})

	t.Run("fail-hard disables the fallback", func(t *testing.T) {
		_, _, _, err := ComputeWindowWithFallback(WindowRequest{
			BookingDate: "2026-03-14",
			StartTime:   "16:00",
			PartySize:   2,
			FailHard:    true,
		}, pol)
		require.Error(t, err)
		require.True(t, HasCode(err, CodeServiceNotFound))
	})
}

func TestBookingWindowOverlaps(t *testing.T) {
	win := BookingWindow{
		BlockStart: time.Date(2026, 3, 14, 18, 50, 0, 0, time.UTC),
		BlockEnd:   time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC),
	}
	require.True(t, win.Overlaps(
		time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC)))
	// Touching intervals do not overlap.
	require.False(t, win.Overlaps(
		time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC)))
}
