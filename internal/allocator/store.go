package allocator

import (
	"context"
	"errors"
	"time"

	"github.com/seatwise/table-allocation/internal/model"
	"github.com/seatwise/table-allocation/internal/policy"
)

// Sentinel errors the storage collaborators return.  The
// orchestrators map them onto the coded taxonomy before they
// reach callers.
var (
	ErrNotFound         = errors.New("not found")
	ErrCommitConflict   = errors.New("assignment conflict")
	ErrCommitValidation = errors.New("assignment validation failed")
)

// BookingState is the minimal status snapshot taken before and
// after a confirm for observability and reconciliation.
type BookingState struct {
	Status          string `json:"status"`
	AssignmentCount int    `json:"assignmentCount"`
}

// BookingStore loads and transitions bookings.
type BookingStore interface {
	Booking(ctx context.Context, id string) (model.Booking, error)
	ContextBookings(ctx context.Context, restaurantID, date string) ([]model.ContextBooking, error)
	UpdateBookingStatus(ctx context.Context, bookingID, status string) error
	BookingState(ctx context.Context, bookingID string) (BookingState, error)
}

// TableStore loads the physical inventory and its adjacency.
type TableStore interface {
	ActiveTables(ctx context.Context, restaurantID string) ([]model.Table, error)
	TablesByIDs(ctx context.Context, restaurantID string, ids []string) ([]model.Table, error)
	AdjacencyEdges(ctx context.Context, restaurantID string) ([]model.AdjacencyEdge, error)
}

// HoldStore persists soft locks.  Expired holds must never be
// returned as live.
type HoldStore interface {
	CreateHold(ctx context.Context, hold model.Hold) (model.Hold, error)
	Hold(ctx context.Context, id string) (model.Hold, error)
	ReleaseHold(ctx context.Context, id string) error
	LiveHoldsForDate(ctx context.Context, restaurantID, date string, now time.Time) ([]model.Hold, error)
	HoldConflicts(ctx context.Context, restaurantID string, tableIDs []string, start, end time.Time, excludeHoldID string, now time.Time) ([]model.Hold, error)
	DeleteExpiredHolds(ctx context.Context, now time.Time, limit int) (int64, error)
}

// CommitPlanRequest is the single atomic commit operation: insert
// assignment rows, write the ledger entry and transition the
// booking, all or nothing.
type CommitPlanRequest struct {
	RestaurantID   string
	BookingID      string
	TableIDs       []string
	StartAt        time.Time
	EndAt          time.Time
	MergeGroupID   string // shared across rows of a multi-table plan
	IdempotencyKey string
	PolicyVersion  string
	TargetStatus   string // booking status to set; empty leaves it alone
}

// CommitPlanResult reports what the commit did.  Replayed means
// the ledger already held this key with the same table set and
// the previously committed rows were returned untouched.
type CommitPlanResult struct {
	Assignments []model.AssignmentMember
	Replayed    bool
}

// AssignmentStore persists committed assignments and the
// idempotency ledger.
type AssignmentStore interface {
	CommitPlan(ctx context.Context, req CommitPlanRequest) (CommitPlanResult, error)
	AssignmentsForBooking(ctx context.Context, bookingID string) ([]model.AssignmentMember, error)
	LedgerEntry(ctx context.Context, bookingID, key string) (*model.LedgerEntry, error)
	UnassignBooking(ctx context.Context, bookingID string) error
	SyncAssignmentWindow(ctx context.Context, bookingID string, start, end time.Time) error
}

// Integration event types emitted after successful operations.
const (
	EventAssignmentSync = "assignment.sync"
	EventHoldConfirmed  = "hold.confirmed"
	EventPolicyDrift    = "policy.drift"
)

// Event is a fire-and-forget integration event.  DedupeKey gives
// downstream consumers at-least-once semantics.
type Event struct {
	Type      string `json:"type"`
	DedupeKey string `json:"dedupeKey"`
	Payload   any    `json:"payload"`
}

// EventPublisher delivers integration events.  Implementations
// log failures internally; publishing never fails the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

// ObservabilityEvent is a structured record for the side channel.
type ObservabilityEvent struct {
	Source    string         `json:"source"`
	EventType string         `json:"eventType"`
	Severity  string         `json:"severity"`
	Context   map[string]any `json:"context"`
}

// ObservabilitySink records events best-effort; it never fails
// the core operation.
type ObservabilitySink interface {
	Record(ctx context.Context, event ObservabilityEvent)
}

// CachedInventory is the read-mostly slice of the world the quote
// path caches per restaurant.
type CachedInventory struct {
	Tables []model.Table         `json:"tables"`
	Edges  []model.AdjacencyEdge `json:"edges"`
}

// InventoryCache caches table inventory and adjacency per
// restaurant with explicit invalidation on write.
type InventoryCache interface {
	Inventory(ctx context.Context, restaurantID string) (*CachedInventory, bool)
	StoreInventory(ctx context.Context, restaurantID string, inv *CachedInventory)
	Invalidate(ctx context.Context, restaurantID string)
}

// ConflictStrategy selects when hold conflicts are checked
// relative to hold insertion.
type ConflictStrategy string

const (
	// CheckThenInsert queries for conflicts before creating the
	// hold.  This is the default: it avoids churning hold rows
	// under contention.
	CheckThenInsert ConflictStrategy = "check-then-insert"
	// InsertThenVerify creates the hold optimistically and relies
	// on the post-insert verification to catch races.
	InsertThenVerify ConflictStrategy = "insert-then-verify"
)

// Options are the tunables of the allocation pipeline.
type Options struct {
	HoldTTL            time.Duration
	EnableCombinations bool
	KMax               int
	MaxPlansPerSlack   int
	MaxEvaluations     int
	EnumerationBudget  time.Duration
	PruneToWindow      bool
	PrunePadding       time.Duration
	Lookahead          LookaheadConfig
	ConflictStrategy   ConflictStrategy
	StrictConflicts    bool // re-check conflicts right after hold insert
	FailHardWindows    bool // disable fallback service substitution
	DriftRetryAttempts int  // confirm retries after POLICY_CHANGED
	DemandMultiplier   float64
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		HoldTTL:            180 * time.Second,
		EnableCombinations: true,
		KMax:               3,
		MaxPlansPerSlack:   4,
		MaxEvaluations:     2000,
		EnumerationBudget:  50 * time.Millisecond,
		PruneToWindow:      true,
		PrunePadding:       2 * time.Hour,
		Lookahead: LookaheadConfig{
			Enabled:        true,
			Window:         2 * time.Hour,
			Penalty:        25,
			BlockThreshold: 50,
			MaxPlans:       20,
			TimeBudget:     100 * time.Millisecond,
		},
		ConflictStrategy:   CheckThenInsert,
		StrictConflicts:    true,
		DriftRetryAttempts: 2,
		DemandMultiplier:   1,
	}
}

// Config wires a Service.  Bookings, Tables, Holds, Assignments
// and Policies are required; the rest degrade gracefully when nil.
type Config struct {
	Bookings    BookingStore
	Tables      TableStore
	Holds       HoldStore
	Assignments AssignmentStore
	Policies    policy.Provider
	Events      EventPublisher
	Observer    ObservabilitySink
	Cache       InventoryCache
	Options     Options
	Clock       func() time.Time
}

// Service is the table-allocation engine: quoting, holds,
// confirmation and manual staff flows.  It is safe for
// concurrent use; all mutable state lives in the stores.
type Service struct {
	bookings    BookingStore
	tables      TableStore
	holds       HoldStore
	assignments AssignmentStore
	policies    policy.Provider
	events      EventPublisher
	observer    ObservabilitySink
	cache       InventoryCache
	opts        Options
	clock       func() time.Time
}

// NewService validates the wiring and returns a ready Service.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.Bookings == nil:
		return nil, errors.New("allocator: booking store is required")
	case cfg.Tables == nil:
		return nil, errors.New("allocator: table store is required")
	case cfg.Holds == nil:
		return nil, errors.New("allocator: hold store is required")
	case cfg.Assignments == nil:
		return nil, errors.New("allocator: assignment store is required")
	case cfg.Policies == nil:
		return nil, errors.New("allocator: policy provider is required")
	}
	opts := cfg.Options
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = DefaultOptions().HoldTTL
	}
	if opts.ConflictStrategy == "" {
		opts.ConflictStrategy = CheckThenInsert
	}
	if opts.DriftRetryAttempts <= 0 {
		opts.DriftRetryAttempts = DefaultOptions().DriftRetryAttempts
	}
	if opts.DemandMultiplier <= 0 {
		opts.DemandMultiplier = 1
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		bookings:    cfg.Bookings,
		tables:      cfg.Tables,
		holds:       cfg.Holds,
		assignments: cfg.Assignments,
		policies:    cfg.Policies,
		events:      cfg.Events,
		observer:    cfg.Observer,
		cache:       cfg.Cache,
		opts:        opts,
		clock:       clock,
	}, nil
}

// publish sends an integration event when a publisher is wired.
func (s *Service) publish(ctx context.Context, event Event) {
	if s.events != nil {
		s.events.Publish(ctx, event)
	}
}

// observe records a side-channel event when a sink is wired.
func (s *Service) observe(ctx context.Context, event ObservabilityEvent) {
	if s.observer != nil {
		s.observer.Record(ctx, event)
	}
}
