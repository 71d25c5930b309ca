package allocator

import (
	"sort"
	"strings"
	"time"

	"github.com/seatwise/table-allocation/internal/model"
	"github.com/seatwise/table-allocation/internal/policy"
)

// PlannerInput drives one planning pass.  Relaxation switches
// (adjacency, capacity overflow, min-covers violation) are always
// explicit caller decisions; the planner never infers them.
type PlannerInput struct {
	Tables    []model.Table
	PartySize int
	Graph     *AdjacencyGraph
	Weights   policy.Weights

	RequireAdjacency       bool
	AllowCapacityOverflow  bool
	AllowMinCoverViolation bool

	EnableCombinations bool
	KMax               int           // max tables per combination
	MaxPlansPerSlack   int           // plans retained per slack bucket
	MaxEvaluations     int           // combination scoring cap
	TimeBudget         time.Duration // enumeration wall-clock budget

	DemandMultiplier float64
	ScarcityScores   map[string]float64

	Clock func() time.Time
}

// Plan is one scored candidate assignment: a single table or a
// merged combination.
type Plan struct {
	Tables        []model.Table      `json:"tables"`
	TableIDs      []string           `json:"tableIds"` // sorted
	Key           string             `json:"key"`      // sorted table numbers joined with "+"
	TotalCapacity int                `json:"totalCapacity"`
	Overage       int                `json:"overage"`
	Fragmentation float64            `json:"fragmentation"`
	AdjacencyCost float64            `json:"adjacencyCost"`
	AdjacencyOK   bool               `json:"adjacencyOk"`
	ZoneIDs       []string           `json:"zoneIds"`
	Score         float64            `json:"score"`
	Breakdown     map[string]float64 `json:"breakdown"`
}

// PlannerDiagnostics counts what the enumeration did and skipped,
// for quote metadata and tuning.
type PlannerDiagnostics struct {
	SinglesConsidered      int  `json:"singlesConsidered"`
	CombinationsEvaluated  int  `json:"combinationsEvaluated"`
	SkippedByBucketCap     int  `json:"skippedByBucketCap"`
	StoppedByEvaluationCap bool `json:"stoppedByEvaluationCap"`
	StoppedByTimeBudget    bool `json:"stoppedByTimeBudget"`
}

// PlannerResult is the ranked plan list plus diagnostics.  An
// empty list is an expected outcome, not an error.
type PlannerResult struct {
	Plans       []*Plan
	Diagnostics PlannerDiagnostics
}

// BuildPlans enumerates and ranks candidate plans.  Every
// qualifying single table is always considered; combinations up
// to KMax tables are enumerated depth-first over capacity-sorted
// movable tables, bucketed by slack, until the evaluation cap or
// time budget halts the search.  Hitting a limit keeps the plans
// found so far.
func BuildPlans(in PlannerInput) PlannerResult {
	var res PlannerResult
	if in.PartySize <= 0 || len(in.Tables) == 0 {
		return res
	}
	clock := in.Clock
	if clock == nil {
		clock = time.Now
	}

	for _, t := range in.Tables {
		res.Diagnostics.SinglesConsidered++
		if t.Capacity < in.PartySize && !in.AllowCapacityOverflow {
			continue
		}
		if t.MinCovers > 0 && in.PartySize < t.MinCovers && !in.AllowMinCoverViolation {
			continue
		}
		res.Plans = append(res.Plans, scorePlan([]model.Table{t}, in))
	}

	if in.EnableCombinations && in.KMax >= 2 {
		enumerateCombinations(&res, in, clock)
	}

	sortPlans(res.Plans)
	return res
}

func enumerateCombinations(res *PlannerResult, in PlannerInput, clock func() time.Time) {
	pool := make([]model.Table, 0, len(in.Tables))
	for _, t := range in.Tables {
		if !t.Movable {
			continue
		}
		// No adjacency entry means adjacency cannot be certified,
		// so the table is excluded from merges under enforcement.
		if in.RequireAdjacency && in.Graph != nil && !in.Graph.HasEntry(t.ID) {
			continue
		}
		pool = append(pool, t)
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].Capacity != pool[j].Capacity {
			return pool[i].Capacity < pool[j].Capacity
		}
		return pool[i].ID < pool[j].ID
	})

	deadline := time.Time{}
	if in.TimeBudget > 0 {
		deadline = clock().Add(in.TimeBudget)
	}
	bucketCounts := make(map[int]int)
	combo := make([]model.Table, 0, in.KMax)
	halted := false

	var walk func(start, capacity int)
	walk = func(start, capacity int) {
		if halted {
			return
		}
		if !deadline.IsZero() && clock().After(deadline) {
			res.Diagnostics.StoppedByTimeBudget = true
			halted = true
			return
		}
		if len(combo) >= 2 && (capacity >= in.PartySize || in.AllowCapacityOverflow) {
			if in.MaxEvaluations > 0 && res.Diagnostics.CombinationsEvaluated >= in.MaxEvaluations {
				res.Diagnostics.StoppedByEvaluationCap = true
				halted = true
				return
			}
			res.Diagnostics.CombinationsEvaluated++
			slack := capacity - in.PartySize
			if slack < 0 {
				slack = 0
			}
			if in.MaxPlansPerSlack > 0 && bucketCounts[slack] >= in.MaxPlansPerSlack {
				res.Diagnostics.SkippedByBucketCap++
			} else {
				bucketCounts[slack]++
				res.Plans = append(res.Plans, scorePlan(append([]model.Table(nil), combo...), in))
			}
		}
		if len(combo) == in.KMax {
			return
		}
		for i := start; i < len(pool); i++ {
			combo = append(combo, pool[i])
			walk(i+1, capacity+pool[i].Capacity)
			combo = combo[:len(combo)-1]
			if halted {
				return
			}
		}
	}
	walk(0, 0)
}

func scorePlan(tables []model.Table, in PlannerInput) *Plan {
	n := len(tables)
	capacity := 0
	for _, t := range tables {
		capacity += t.Capacity
	}
	overage := capacity - in.PartySize
	if overage < 0 {
		overage = 0
	}

	// Fragmentation is the population variance of table sizes:
	// uneven merges read worse on the floor than equal halves.
	fragmentation := 0.0
	if n > 1 {
		mean := float64(capacity) / float64(n)
		for _, t := range tables {
			d := float64(t.Capacity) - mean
			fragmentation += d * d
		}
		fragmentation /= float64(n)
	}

	ids := make([]string, n)
	keys := make([]string, n)
	for i, t := range tables {
		ids[i] = t.ID
		if t.Number != "" {
			keys[i] = t.Number
		} else {
			keys[i] = t.ID
		}
	}
	sort.Strings(ids)
	sort.Strings(keys)

	zones := ZoneIDsFor(tables)
	zonePenalty := 0.0
	if len(zones) > 1 {
		zonePenalty = float64(len(zones) - 1)
	}

	adjacencyOK := true
	adjacencyCost := 0.0
	if n > 1 && in.Graph != nil {
		adjacencyOK = in.Graph.Connected(ids)
		if !adjacencyOK && in.RequireAdjacency {
			adjacencyCost = 50 + 10*float64(n-1)
		}
	}

	scarcity := 0.0
	for _, t := range tables {
		scarcity += in.ScarcityScores[t.ID]
	}
	demand := in.DemandMultiplier
	if demand <= 0 {
		demand = 1
	}
	scarcity *= demand

	w := in.Weights
	breakdown := map[string]float64{
		"overage":       w.Overage * float64(overage),
		"tableCount":    w.TableCount * float64(n-1),
		"fragmentation": w.Fragmentation * fragmentation,
		"zoneBalance":   w.ZoneBalance * zonePenalty,
		"adjacencyCost": w.AdjacencyCost * adjacencyCost,
		"scarcity":      w.Scarcity * scarcity,
	}
	score := 0.0
	for _, v := range breakdown {
		score += v
	}

	return &Plan{
		Tables:        tables,
		TableIDs:      ids,
		Key:           strings.Join(keys, "+"),
		TotalCapacity: capacity,
		Overage:       overage,
		Fragmentation: fragmentation,
		AdjacencyCost: adjacencyCost,
		AdjacencyOK:   adjacencyOK,
		ZoneIDs:       zones,
		Score:         score,
		Breakdown:     breakdown,
	}
}

// sortPlans orders plans best-first with a fully deterministic
// tie-break chain ending in the lexicographic table key.
func sortPlans(plans []*Plan) {
	sort.SliceStable(plans, func(i, j int) bool {
		a, b := plans[i], plans[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if a.Overage != b.Overage {
			return a.Overage < b.Overage
		}
		if len(a.Tables) != len(b.Tables) {
			return len(a.Tables) < len(b.Tables)
		}
		if a.TotalCapacity != b.TotalCapacity {
			return a.TotalCapacity < b.TotalCapacity
		}
		if a.Fragmentation != b.Fragmentation {
			return a.Fragmentation < b.Fragmentation
		}
		if a.AdjacencyCost != b.AdjacencyCost {
			return a.AdjacencyCost < b.AdjacencyCost
		}
		return a.Key < b.Key
	})
}
