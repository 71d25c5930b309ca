package allocator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seatwise/table-allocation/internal/model"
	"github.com/seatwise/table-allocation/internal/policy"
)

// fakeStores is an in-memory implementation of every store
// interface, shared by one test service.  Conflict detection in
// CommitPlan mirrors what the MySQL repository does so commit
// races can be exercised without a database.
type fakeStores struct {
	mu sync.Mutex

	bookings        map[string]model.Booking
	contextBookings []model.ContextBooking
	tables          []model.Table
	edges           []model.AdjacencyEdge
	holds           map[string]model.Hold
	assignments     map[string][]model.AssignmentMember
	ledger          map[string]model.LedgerEntry

	skipStatusUpdate bool // simulate a commit whose status write was lost
	releaseFailures  int  // fail this many ReleaseHold calls before succeeding
	hideLiveHolds    bool // day-context reads miss holds, as under replication lag
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		bookings:    make(map[string]model.Booking),
		holds:       make(map[string]model.Hold),
		assignments: make(map[string][]model.AssignmentMember),
		ledger:      make(map[string]model.LedgerEntry),
	}
}

func (f *fakeStores) Booking(_ context.Context, id string) (model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return model.Booking{}, ErrNotFound
	}
	return b, nil
}

func (f *fakeStores) ContextBookings(_ context.Context, _, _ string) ([]model.ContextBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ContextBooking(nil), f.contextBookings...), nil
}

func (f *fakeStores) UpdateBookingStatus(_ context.Context, bookingID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	f.bookings[bookingID] = b
	return nil
}

func (f *fakeStores) BookingState(_ context.Context, bookingID string) (BookingState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return BookingState{}, ErrNotFound
	}
	return BookingState{Status: b.Status, AssignmentCount: len(f.assignments[bookingID])}, nil
}

func (f *fakeStores) ActiveTables(_ context.Context, _ string) ([]model.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Table
	for _, t := range f.tables {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStores) TablesByIDs(_ context.Context, _ string, ids []string) ([]model.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Table
	for _, t := range f.tables {
		if want[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStores) AdjacencyEdges(_ context.Context, _ string) ([]model.AdjacencyEdge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AdjacencyEdge(nil), f.edges...), nil
}

func (f *fakeStores) CreateHold(_ context.Context, hold model.Hold) (model.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds[hold.ID] = hold
	return hold, nil
}

func (f *fakeStores) Hold(_ context.Context, id string) (model.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[id]
	if !ok {
		return model.Hold{}, ErrNotFound
	}
	return h, nil
}

func (f *fakeStores) ReleaseHold(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseFailures > 0 {
		f.releaseFailures--
		return fmt.Errorf("simulated release failure")
	}
	delete(f.holds, id)
	return nil
}

func (f *fakeStores) LiveHoldsForDate(_ context.Context, _, date string, now time.Time) ([]model.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideLiveHolds {
		return nil, nil
	}
	var out []model.Hold
	for _, h := range f.holds {
		if h.ServiceDate == date && h.ExpiresAt.After(now) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStores) HoldConflicts(_ context.Context, _ string, tableIDs []string, start, end time.Time, excludeHoldID string, now time.Time) ([]model.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(tableIDs))
	for _, id := range tableIDs {
		want[id] = true
	}
	var out []model.Hold
	for _, h := range f.holds {
		if h.ID == excludeHoldID || !h.ExpiresAt.After(now) {
			continue
		}
		if !h.StartAt.Before(end) || !start.Before(h.EndAt) {
			continue
		}
		for _, id := range h.TableIDs {
			if want[id] {
				out = append(out, h)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStores) DeleteExpiredHolds(_ context.Context, now time.Time, limit int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, h := range f.holds {
		if limit > 0 && deleted >= int64(limit) {
			break
		}
		if !h.ExpiresAt.After(now) {
			delete(f.holds, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStores) CommitPlan(_ context.Context, req CommitPlanRequest) (CommitPlanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.BookingID == "" || len(req.TableIDs) == 0 || !req.EndAt.After(req.StartAt) {
		return CommitPlanResult{}, ErrCommitValidation
	}
	lk := req.BookingID + "|" + req.IdempotencyKey
	if entry, ok := f.ledger[lk]; ok {
		if !SameTableSet(entry.TableIDs, req.TableIDs) {
			return CommitPlanResult{}, ErrCommitValidation
		}
		return CommitPlanResult{
			Assignments: append([]model.AssignmentMember(nil), f.assignments[req.BookingID]...),
			Replayed:    true,
		}, nil
	}

	want := make(map[string]bool, len(req.TableIDs))
	for _, id := range req.TableIDs {
		want[id] = true
	}
	for bid, rows := range f.assignments {
		if bid == req.BookingID {
			continue
		}
		other, ok := f.bookings[bid]
		if ok && !model.BlocksInventory(other.Status) {
			continue
		}
		for _, r := range rows {
			if want[r.TableID] && r.StartAt.Before(req.EndAt) && req.StartAt.Before(r.EndAt) {
				return CommitPlanResult{}, ErrCommitConflict
			}
		}
	}

	rows := make([]model.AssignmentMember, 0, len(req.TableIDs))
	for i, id := range req.TableIDs {
		rows = append(rows, model.AssignmentMember{
			ID:           fmt.Sprintf("asg-%s-%d", req.BookingID, i),
			BookingID:    req.BookingID,
			RestaurantID: req.RestaurantID,
			TableID:      id,
			StartAt:      req.StartAt,
			EndAt:        req.EndAt,
			MergeGroupID: req.MergeGroupID,
		})
	}
	f.assignments[req.BookingID] = rows
	f.ledger[lk] = model.LedgerEntry{
		BookingID:      req.BookingID,
		IdempotencyKey: req.IdempotencyKey,
		TableIDs:       append([]string(nil), req.TableIDs...),
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		PolicyVersion:  req.PolicyVersion,
	}
	if req.TargetStatus != "" && !f.skipStatusUpdate {
		if b, ok := f.bookings[req.BookingID]; ok {
			b.Status = req.TargetStatus
			f.bookings[req.BookingID] = b
		}
	}
	return CommitPlanResult{Assignments: rows}, nil
}

func (f *fakeStores) AssignmentsForBooking(_ context.Context, bookingID string) ([]model.AssignmentMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AssignmentMember(nil), f.assignments[bookingID]...), nil
}

func (f *fakeStores) LedgerEntry(_ context.Context, bookingID, key string) (*model.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.ledger[bookingID+"|"+key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (f *fakeStores) UnassignBooking(_ context.Context, bookingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.assignments, bookingID)
	return nil
}

func (f *fakeStores) SyncAssignmentWindow(_ context.Context, bookingID string, start, end time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.assignments[bookingID]
	for i := range rows {
		rows[i].StartAt = start
		rows[i].EndAt = end
	}
	return nil
}

// capturePublisher records every published event.
type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePublisher) Publish(_ context.Context, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) byType(eventType string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// captureSink records every observability event.
type captureSink struct {
	mu     sync.Mutex
	events []ObservabilityEvent
}

func (s *captureSink) Record(_ context.Context, event ObservabilityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

// fixtureTables is the standard three-table floor used across the
// service tests: two adjacent deuces and one six-top.
func fixtureTables() []model.Table {
	return []model.Table{
		{ID: "t1", RestaurantID: "r1", Number: "1", Capacity: 2, ZoneID: "main", Movable: true, Active: true},
		{ID: "t2", RestaurantID: "r1", Number: "2", Capacity: 2, ZoneID: "main", Movable: true, Active: true},
		{ID: "t3", RestaurantID: "r1", Number: "3", Capacity: 6, ZoneID: "main", Movable: true, Active: true},
	}
}

func fixtureEdges() []model.AdjacencyEdge {
	return []model.AdjacencyEdge{
		{RestaurantID: "r1", TableID: "t1", AdjacentID: "t2"},
	}
}

func fixtureBooking() model.Booking {
	return model.Booking{
		ID:           "b1",
		RestaurantID: "r1",
		PartySize:    4,
		Status:       model.BookingStatusPending,
		BookingDate:  "2026-03-14",
		StartTime:    "19:00",
		ServiceHint:  "dinner",
	}
}

func newTestService(t interface{ Fatalf(string, ...any) }, f *fakeStores) (*Service, *capturePublisher, *captureSink) {
	pub := &capturePublisher{}
	sink := &captureSink{}
	svc, err := NewService(Config{
		Bookings:    f,
		Tables:      f,
		Holds:       f,
		Assignments: f,
		Policies:    policy.Static{Policy: policy.Default()},
		Events:      pub,
		Observer:    sink,
		Options:     DefaultOptions(),
		Clock:       func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("building test service: %v", err)
	}
	return svc, pub, sink
}
