// Package policy defines the per-venue configuration that drives table
// allocation: service periods, dining-duration bands, buffers, adjacency
// mode and scoring weights.  A policy is treated as a pure value; every
// planning pass recomputes derived data (windows, hashes) from it rather
// than caching across requests.
package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ServiceDefinition describes one service period of the venue day.
// Start and End are minutes since local midnight; End is exclusive.
//
// Fields:
//  Key          – stable identifier (e.g. "lunch", "dinner").
//  Label        – human-facing name.
//  StartMinute  – service opening, minutes since midnight.
//  EndMinute    – service close, minutes since midnight (exclusive).
//  AllowOverrun – whether block intervals may extend past close.
type ServiceDefinition struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	StartMinute  int    `json:"startMinute"`
	EndMinute    int    `json:"endMinute"`
	AllowOverrun bool   `json:"allowOverrun"`
}

// TurnBand maps a party-size ceiling to a dining duration.
// Bands are evaluated in ascending MaxParty order; the first band
// whose ceiling covers the party applies.
type TurnBand struct {
	MaxParty int `json:"maxParty"`
	Minutes  int `json:"minutes"`
}

// Buffers are the padding applied around the dining interval to
// form the block interval during which tables are occupied.
type Buffers struct {
	PreMinutes  int `json:"preMinutes"`
	PostMinutes int `json:"postMinutes"`
}

// Weights are the scoring coefficients the planner applies to a
// candidate plan's metrics.  Lower total score ranks better.
type Weights struct {
	Overage       float64 `json:"overage"`
	TableCount    float64 `json:"tableCount"`
	Fragmentation float64 `json:"fragmentation"`
	ZoneBalance   float64 `json:"zoneBalance"`
	AdjacencyCost float64 `json:"adjacencyCost"`
	Scarcity      float64 `json:"scarcity"`
}

// VenuePolicy is everything the allocator needs to know about a
// restaurant's operating rules.  Services are kept in day order.
type VenuePolicy struct {
	Timezone            string              `json:"timezone"`
	Services            []ServiceDefinition `json:"services"`
	TurnBands           []TurnBand          `json:"turnBands"`
	Buffers             Buffers             `json:"buffers"`
	UndirectedAdjacency bool                `json:"undirectedAdjacency"`
	Weights             Weights             `json:"weights"`
	MaxMergeTables      int                 `json:"maxMergeTables"`
}

// Provider supplies the current policy for a restaurant.  It is a
// pure lookup; implementations must not mutate returned values.
type Provider interface {
	VenuePolicy(ctx context.Context, restaurantID string) (VenuePolicy, error)
}

// DefaultWeights are the scoring coefficients used when a venue
// has not tuned its own.
func DefaultWeights() Weights {
	return Weights{
		Overage:       5,
		TableCount:    3,
		Fragmentation: 2,
		ZoneBalance:   4,
		AdjacencyCost: 1,
		Scarcity:      1,
	}
}

// Default returns a sensible baseline policy: lunch and dinner
// services, duration bands that lengthen with party size, and
// modest pre/post buffers.
func Default() VenuePolicy {
	return VenuePolicy{
		Timezone: "UTC",
		Services: []ServiceDefinition{
			{Key: "lunch", Label: "Lunch", StartMinute: 12 * 60, EndMinute: 15 * 60},
			{Key: "dinner", Label: "Dinner", StartMinute: 17 * 60, EndMinute: 23 * 60},
		},
		TurnBands: []TurnBand{
			{MaxParty: 2, Minutes: 90},
			{MaxParty: 4, Minutes: 105},
			{MaxParty: 6, Minutes: 120},
			{MaxParty: 12, Minutes: 150},
		},
		Buffers:             Buffers{PreMinutes: 10, PostMinutes: 15},
		UndirectedAdjacency: true,
		Weights:             DefaultWeights(),
		MaxMergeTables:      3,
	}
}

// Static is a Provider that always returns the same policy.  Used
// for venues without a stored override and throughout tests.
type Static struct {
	Policy VenuePolicy
}

// VenuePolicy implements Provider.
func (s Static) VenuePolicy(_ context.Context, _ string) (VenuePolicy, error) {
	return s.Policy, nil
}

// Service returns the definition with the given key, if present.
func (p VenuePolicy) Service(key string) (ServiceDefinition, bool) {
	for _, svc := range p.Services {
		if svc.Key == key {
			return svc, true
		}
	}
	return ServiceDefinition{}, false
}

// ServiceAt finds the service period containing the given local
// time of day, expressed as minutes since midnight.
func (p VenuePolicy) ServiceAt(minuteOfDay int) (ServiceDefinition, bool) {
	for _, svc := range p.Services {
		if minuteOfDay >= svc.StartMinute && minuteOfDay < svc.EndMinute {
			return svc, true
		}
	}
	return ServiceDefinition{}, false
}

// DurationFor resolves the dining duration for a party size from
// the turn bands.  Party sizes beyond the last ceiling use the
// last band's duration.
func (p VenuePolicy) DurationFor(partySize int) time.Duration {
	bands := make([]TurnBand, len(p.TurnBands))
	copy(bands, p.TurnBands)
	sort.Slice(bands, func(i, j int) bool { return bands[i].MaxParty < bands[j].MaxParty })
	for _, b := range bands {
		if partySize <= b.MaxParty {
			return time.Duration(b.Minutes) * time.Minute
		}
	}
	if len(bands) > 0 {
		return time.Duration(bands[len(bands)-1].Minutes) * time.Minute
	}
	return 2 * time.Hour
}

// Location resolves the venue timezone, falling back to UTC when
// the name is empty or unknown.
func (p VenuePolicy) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// VersionHash returns a stable hash of the policy contents.  Two
// policies with identical rules hash identically regardless of
// how they were loaded, which is what hold drift detection
// compares against.
func (p VenuePolicy) VersionHash() string {
	raw, err := json.Marshal(p)
	if err != nil {
		// Marshalling a plain value struct cannot fail in practice.
		return fmt.Sprintf("unhashable:%v", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
