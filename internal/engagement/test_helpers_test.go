package engagement

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/agentstore/internal/identity"
	"github.com/MarcoPoloResearchLab/agentstore/internal/records"
)

// fakeRecords is an in-memory records.Store with per-operation failure
// injection and optional gates that hold reads or mutations in flight.
type fakeRecords struct {
	mu        sync.Mutex
	votes     map[string]map[string]bool
	comments  []records.Record
	nextID    int
	clock     time.Time
	calls     map[string]int
	countErr  error
	existsErr error
	listErr   error
	insertErr error
	deleteErr error
	gate      chan struct{}
	entered   chan struct{}
	readGate  chan struct{}
	readsIn   chan struct{}
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		votes: make(map[string]map[string]bool),
		clock: time.Unix(1700000000, 0).UTC(),
		calls: make(map[string]int),
	}
}

func (f *fakeRecords) holdMutations() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 8)
}

func (f *fakeRecords) releaseMutations() {
	f.mu.Lock()
	gate := f.gate
	f.gate = nil
	f.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (f *fakeRecords) holdReads() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readGate = make(chan struct{})
	f.readsIn = make(chan struct{}, 8)
}

func (f *fakeRecords) releaseReads() {
	f.mu.Lock()
	gate := f.readGate
	f.readGate = nil
	f.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (f *fakeRecords) seedVote(itemID, viewerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.votes[itemID] == nil {
		f.votes[itemID] = make(map[string]bool)
	}
	f.votes[itemID][viewerID] = true
}

func (f *fakeRecords) seedComment(itemID, viewerID, body string, offset time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.comments = append(f.comments, records.Record{
		ID:         fmt.Sprintf("comment-%d", f.nextID),
		ItemID:     itemID,
		ViewerID:   viewerID,
		AuthorName: viewerID,
		Body:       body,
		CreatedAt:  f.clock.Add(offset),
	})
}

func (f *fakeRecords) callCount(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[operation]
}

func (f *fakeRecords) setError(target *error, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*target = err
}

func (f *fakeRecords) wait(ctx context.Context) error {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	return block(ctx, gate, entered)
}

func (f *fakeRecords) waitRead(ctx context.Context) error {
	f.mu.Lock()
	gate, entered := f.readGate, f.readsIn
	f.mu.Unlock()
	return block(ctx, gate, entered)
}

func block(ctx context.Context, gate, entered chan struct{}) error {
	if gate == nil {
		return nil
	}
	entered <- struct{}{}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRecords) Count(ctx context.Context, table records.Table, filter records.Filter) (int64, error) {
	if err := f.waitRead(ctx); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["count"]++
	if f.countErr != nil {
		return 0, f.countErr
	}
	if table == records.TableVotes {
		return int64(len(f.votes[filter.ItemID])), nil
	}
	var total int64
	for _, row := range f.comments {
		if row.ItemID == filter.ItemID {
			total++
		}
	}
	return total, nil
}

func (f *fakeRecords) Exists(ctx context.Context, table records.Table, filter records.Filter) (bool, error) {
	if err := f.waitRead(ctx); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["exists"]++
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.votes[filter.ItemID][filter.ViewerID], nil
}

func (f *fakeRecords) List(ctx context.Context, table records.Table, filter records.Filter, order records.Order) ([]records.Record, error) {
	if err := f.waitRead(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	if f.listErr != nil {
		return nil, f.listErr
	}
	result := make([]records.Record, 0)
	for index := len(f.comments) - 1; index >= 0; index-- {
		if f.comments[index].ItemID == filter.ItemID {
			result = append(result, f.comments[index])
		}
	}
	return result, nil
}

func (f *fakeRecords) Insert(ctx context.Context, table records.Table, record records.Record) (records.Record, error) {
	if err := f.wait(ctx); err != nil {
		return records.Record{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["insert"]++
	if f.insertErr != nil {
		return records.Record{}, f.insertErr
	}
	f.nextID++
	record.ID = fmt.Sprintf("record-%d", f.nextID)
	record.CreatedAt = f.clock.Add(time.Duration(f.nextID) * time.Second)
	if table == records.TableVotes {
		if f.votes[record.ItemID][record.ViewerID] {
			return records.Record{}, fmt.Errorf("insert: %w", records.ErrDuplicate)
		}
		if f.votes[record.ItemID] == nil {
			f.votes[record.ItemID] = make(map[string]bool)
		}
		f.votes[record.ItemID][record.ViewerID] = true
		return record, nil
	}
	f.comments = append(f.comments, record)
	return record, nil
}

func (f *fakeRecords) Delete(ctx context.Context, table records.Table, filter records.Filter) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if !f.votes[filter.ItemID][filter.ViewerID] {
		return fmt.Errorf("delete: %w", records.ErrNotFound)
	}
	delete(f.votes[filter.ItemID], filter.ViewerID)
	return nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) RecordEngagementEvent(event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) count(event Event) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, recorded := range o.events {
		if recorded == event {
			total++
		}
	}
	return total
}

type fakeSource struct {
	current identity.Viewer
	stream  chan identity.Viewer
}

func (s *fakeSource) CurrentViewer() identity.Viewer {
	return s.current
}

func (s *fakeSource) Subscribe(ctx context.Context) (<-chan identity.Viewer, func()) {
	var once sync.Once
	cleanup := func() {}
	go func() {
		<-ctx.Done()
		once.Do(func() { close(s.stream) })
	}()
	return s.stream, cleanup
}

func mustItemID(t *testing.T, value string) ItemID {
	t.Helper()
	id, err := NewItemID(value)
	if err != nil {
		t.Fatalf("unexpected item id error: %v", err)
	}
	return id
}

func mustViewer(t *testing.T, id string) identity.Viewer {
	t.Helper()
	viewer, err := identity.SignedIn(id, "")
	if err != nil {
		t.Fatalf("unexpected viewer error: %v", err)
	}
	return viewer
}

func mustController(t *testing.T, store records.Store, cfg ControllerConfig) *Controller {
	t.Helper()
	cfg.Records = store
	controller, err := NewController(cfg)
	if err != nil {
		t.Fatalf("unexpected controller error: %v", err)
	}
	return controller
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
