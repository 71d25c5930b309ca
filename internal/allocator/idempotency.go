package allocator

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// NormalizeTableIDs lowercases, de-duplicates and sorts table ids
// so every representation of the same set hashes identically.
func NormalizeTableIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SameTableSet reports whether two id lists name the same set of
// tables after normalization.
func SameTableSet(a, b []string) bool {
	na, nb := NormalizeTableIDs(a), NormalizeTableIDs(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

// ConfirmIdempotencyKey derives the deterministic key for one
// confirmation payload.  Two calls committing the same tables for
// the same booking over the same window under the same policy
// version produce the same key, making the confirm replay-safe.
func ConfirmIdempotencyKey(restaurantID, bookingID string, tableIDs []string, start, end time.Time, policyVersion string) string {
	parts := []string{
		restaurantID,
		bookingID,
		strings.Join(NormalizeTableIDs(tableIDs), ","),
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		policyVersion,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "cfm_" + hex.EncodeToString(sum[:16])
}

// Checksum hashes an ordered list of component strings.  Manual
// assignment contexts compose several of these into a context
// version for optimistic-refresh detection.
func Checksum(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}
