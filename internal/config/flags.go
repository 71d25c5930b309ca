package config

import (
	"os"
	"strconv"
	"time"

	"github.com/seatwise/table-allocation/internal/allocator"
)

// LoadAllocatorOptions builds the allocation pipeline tunables
// from environment variables, falling back to the allocator's
// production defaults.  Every knob is optional; an unset or
// unparseable value keeps the default so a misconfigured flag can
// never take the service down.
func LoadAllocatorOptions() allocator.Options {
	opts := allocator.DefaultOptions()

	opts.HoldTTL = parseDur(getenv("HOLD_TTL", ""), opts.HoldTTL)
	opts.EnableCombinations = parseBool(getenv("PLANNER_COMBINATIONS", ""), opts.EnableCombinations)
	opts.KMax = parseInt(getenv("PLANNER_KMAX", ""), opts.KMax)
	opts.MaxPlansPerSlack = parseInt(getenv("PLANNER_MAX_PLANS_PER_SLACK", ""), opts.MaxPlansPerSlack)
	opts.MaxEvaluations = parseInt(getenv("PLANNER_MAX_EVALUATIONS", ""), opts.MaxEvaluations)
	opts.EnumerationBudget = parseDur(getenv("PLANNER_TIME_BUDGET", ""), opts.EnumerationBudget)
	opts.PruneToWindow = parseBool(getenv("AVAILABILITY_PRUNE", ""), opts.PruneToWindow)
	opts.PrunePadding = parseDur(getenv("AVAILABILITY_PRUNE_PADDING", ""), opts.PrunePadding)

	opts.Lookahead.Enabled = parseBool(getenv("LOOKAHEAD_ENABLED", ""), opts.Lookahead.Enabled)
	opts.Lookahead.Window = parseDur(getenv("LOOKAHEAD_WINDOW", ""), opts.Lookahead.Window)
	opts.Lookahead.Penalty = parseFloat(getenv("LOOKAHEAD_PENALTY", ""), opts.Lookahead.Penalty)
	opts.Lookahead.BlockThreshold = parseFloat(getenv("LOOKAHEAD_BLOCK_THRESHOLD", ""), opts.Lookahead.BlockThreshold)
	opts.Lookahead.MaxPlans = parseInt(getenv("LOOKAHEAD_MAX_PLANS", ""), opts.Lookahead.MaxPlans)
	opts.Lookahead.TimeBudget = parseDur(getenv("LOOKAHEAD_TIME_BUDGET", ""), opts.Lookahead.TimeBudget)

	if getenv("HOLD_CONFLICT_STRATEGY", "") == string(allocator.InsertThenVerify) {
		opts.ConflictStrategy = allocator.InsertThenVerify
	}
	opts.StrictConflicts = parseBool(getenv("HOLD_STRICT_CONFLICTS", ""), opts.StrictConflicts)
	opts.FailHardWindows = parseBool(getenv("WINDOW_FAIL_HARD", ""), opts.FailHardWindows)
	opts.DriftRetryAttempts = parseInt(getenv("CONFIRM_DRIFT_RETRIES", ""), opts.DriftRetryAttempts)
	opts.DemandMultiplier = parseFloat(getenv("SCORING_DEMAND_MULTIPLIER", ""), opts.DemandMultiplier)

	return opts
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func parseDur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
