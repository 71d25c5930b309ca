package allocator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTableIDs(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		[]string{"t1", "t2", "t3"},
		NormalizeTableIDs([]string{" T2 ", "t1", "t3", "T1", ""}))
	require.Empty(t, NormalizeTableIDs(nil))
}

func TestSameTableSet(t *testing.T) {
	t.Parallel()

	require.True(t, SameTableSet([]string{"t1", "t2"}, []string{"T2", "t1"}))
	require.True(t, SameTableSet([]string{"t1", "t1"}, []string{"t1"}))
	require.False(t, SameTableSet([]string{"t1"}, []string{"t1", "t2"}))
	require.False(t, SameTableSet([]string{"t1"}, []string{"t2"}))
}

func TestConfirmIdempotencyKey(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 14, 18, 50, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	key := ConfirmIdempotencyKey("r1", "b1", []string{"t1", "t2"}, start, end, "v1")
	require.Regexp(t, `^cfm_[0-9a-f]{32}$`, key)

	// The key only depends on the normalized payload.
	require.Equal(t, key, ConfirmIdempotencyKey("r1", "b1", []string{"T2", "t1"}, start, end, "v1"))

	require.NotEqual(t, key, ConfirmIdempotencyKey("r1", "b1", []string{"t1"}, start, end, "v1"))
	require.NotEqual(t, key, ConfirmIdempotencyKey("r1", "b1", []string{"t1", "t2"}, start.Add(time.Minute), end, "v1"))
	require.NotEqual(t, key, ConfirmIdempotencyKey("r1", "b1", []string{"t1", "t2"}, start, end, "v2"))
	require.NotEqual(t, key, ConfirmIdempotencyKey("r1", "b2", []string{"t1", "t2"}, start, end, "v1"))
}

func TestChecksum(t *testing.T) {
	t.Parallel()

	require.Equal(t, Checksum("a", "b"), Checksum("a", "b"))
	require.NotEqual(t, Checksum("a", "b"), Checksum("b", "a"))
	require.Len(t, Checksum("a"), 16)
}
