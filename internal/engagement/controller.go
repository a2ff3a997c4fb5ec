package engagement

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/agentstore/internal/identity"
	"github.com/MarcoPoloResearchLab/agentstore/internal/records"
	"go.uber.org/zap"
)

// ControllerConfig describes the dependencies of a Controller.
type ControllerConfig struct {
	Records records.Store
	Logger  *zap.Logger
	// Observer receives outcome events; nil disables reporting.
	Observer Observer
	// RemoteTimeout bounds every remote call. A vote that times out is rolled
	// back like any other failure. Zero disables the bound.
	RemoteTimeout time.Duration
}

// Controller binds a Store to one item and one viewer, sequences hydration and
// user mutations, and owns the optimistic update and rollback protocol.
type Controller struct {
	records  records.Store
	logger   *zap.Logger
	observer Observer
	timeout  time.Duration

	mu     sync.Mutex
	phase  Phase
	store  *Store
	viewer identity.Viewer
}

// NewController constructs an idle controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Records == nil {
		return nil, newError(ErrValidation, opNewController, "missing_records", errMissingRecords)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	timeout := cfg.RemoteTimeout
	if timeout < 0 {
		timeout = 0
	}
	return &Controller{
		records:  cfg.Records,
		logger:   logger,
		observer: observer,
		timeout:  timeout,
		phase:    PhaseIdle,
		viewer:   identity.NoViewer,
	}, nil
}

// Bind discards any previous binding, binds to (item, viewer) and hydrates.
// Hydration failures leave zero/empty state and are not returned; the only
// error is an invalid item.
func (c *Controller) Bind(ctx context.Context, item ItemID, viewer identity.Viewer) (Snapshot, error) {
	store, err := NewStore(StoreConfig{Records: c.records, ItemID: item, Logger: c.logger})
	if err != nil {
		return c.Snapshot(), newError(ErrValidation, opBind, "invalid_item", err)
	}
	store.tryAcquire()

	c.mu.Lock()
	c.store = store
	c.viewer = viewer
	c.phase = PhaseHydrating
	c.mu.Unlock()

	callCtx, cancel := c.withTimeout(ctx)
	votes, comments, fetchErr := store.fetch(callCtx, viewer)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	store.applyHydration(votes, comments)
	store.release()
	if fetchErr != nil {
		c.observer.RecordEngagementEvent(EventHydrationFailed)
	}
	if c.store == store {
		c.phase = PhaseReady
	}
	return c.snapshotLocked(), nil
}

// Rebind re-hydrates the current item for a new viewer.
func (c *Controller) Rebind(ctx context.Context, viewer identity.Viewer) (Snapshot, error) {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store == nil {
		return c.Snapshot(), ErrUnbound
	}
	return c.Bind(ctx, store.ItemID(), viewer)
}

// Unbind discards all state. Results of calls still in flight are dropped.
func (c *Controller) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = nil
	c.viewer = identity.NoViewer
	c.phase = PhaseUnbound
}

// Follow rebinds the current item whenever the source reports a viewer change.
// It blocks until ctx is done.
func (c *Controller) Follow(ctx context.Context, source identity.Source) {
	stream, cleanup := source.Subscribe(ctx)
	defer cleanup()
	for viewer := range stream {
		if _, err := c.Rebind(ctx, viewer); err != nil {
			c.logger.Debug("viewer change ignored", zap.Stringer("viewer", viewer), zap.Error(err))
		}
	}
}

// ToggleVote flips the viewer's vote optimistically and confirms it remotely.
// On remote failure the previous state is restored and a mutation error is
// returned. While another remote call is in flight the request is dropped
// with ErrBusy and state is left untouched.
func (c *Controller) ToggleVote(ctx context.Context) (VoteState, error) {
	c.mu.Lock()
	store, viewer := c.store, c.viewer
	if store == nil {
		c.mu.Unlock()
		return VoteState{}, ErrUnbound
	}
	if !viewer.Present() {
		c.mu.Unlock()
		return store.Votes(), newError(ErrPrecondition, opToggleVote, reasonNoViewer, ErrSignInRequired)
	}
	if !store.tryAcquire() {
		c.mu.Unlock()
		c.observer.RecordEngagementEvent(EventRequestDropped)
		return store.Votes(), ErrBusy
	}
	previous := store.Votes()
	store.setVotes(previous.flipped())
	c.phase = PhaseMutating
	c.mu.Unlock()

	callCtx, cancel := c.withTimeout(ctx)
	confirmed, err := store.pushVote(callCtx, viewer, previous)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.settle(store)
	if err != nil {
		store.setVotes(previous)
		c.observer.RecordEngagementEvent(EventVoteRolledBack)
		return previous, err
	}
	store.setVotes(confirmed)
	c.observer.RecordEngagementEvent(EventVoteConfirmed)
	return store.Votes(), nil
}

// SubmitComment validates the body, inserts it remotely and, once confirmed,
// places the comment at the front of the list.
func (c *Controller) SubmitComment(ctx context.Context, body string) (Comment, error) {
	c.mu.Lock()
	store, viewer := c.store, c.viewer
	if store == nil {
		c.mu.Unlock()
		return Comment{}, ErrUnbound
	}
	if !viewer.Present() {
		c.mu.Unlock()
		return Comment{}, newError(ErrValidation, opSubmitComment, reasonNoViewer, ErrSignInRequired)
	}
	trimmed, err := normalizeBody(body)
	if err != nil {
		c.mu.Unlock()
		return Comment{}, err
	}
	if !store.tryAcquire() {
		c.mu.Unlock()
		c.observer.RecordEngagementEvent(EventRequestDropped)
		return Comment{}, ErrBusy
	}
	c.phase = PhaseMutating
	c.mu.Unlock()

	callCtx, cancel := c.withTimeout(ctx)
	comment, err := store.insertComment(callCtx, viewer, trimmed)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.settle(store)
	if err != nil {
		c.observer.RecordEngagementEvent(EventCommentFailed)
		return Comment{}, err
	}
	store.prependComment(comment)
	c.observer.RecordEngagementEvent(EventCommentSubmitted)
	return comment, nil
}

// Snapshot returns a copy of the current binding's state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Phase returns the lifecycle phase of the current binding.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// settle clears the busy flag and, if store is still bound, returns to Ready.
// Callers hold c.mu.
func (c *Controller) settle(store *Store) {
	store.release()
	if c.store == store {
		c.phase = PhaseReady
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		Viewer:   c.viewer,
		Phase:    c.phase,
		Comments: CommentState{Comments: []Comment{}},
	}
	if c.store == nil {
		return snapshot
	}
	snapshot.ItemID = c.store.ItemID()
	snapshot.Votes = c.store.Votes()
	snapshot.Comments = c.store.Comments()
	snapshot.Busy = c.store.Busy()
	return snapshot
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
