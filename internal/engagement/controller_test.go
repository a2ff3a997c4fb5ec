package engagement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/agentstore/internal/identity"
	"github.com/MarcoPoloResearchLab/agentstore/internal/records"
)

func TestNewControllerRequiresRecords(t *testing.T) {
	if _, err := NewController(ControllerConfig{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBindHydratesSnapshot(t *testing.T) {
	fake := newFakeRecords()
	fake.seedVote("item-1", "viewer-a")
	fake.seedComment("item-1", "viewer-b", "hello", 0)
	controller := mustController(t, fake, ControllerConfig{})
	if controller.Phase() != PhaseIdle {
		t.Fatalf("expected idle controller, got %s", controller.Phase())
	}

	snapshot, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), mustViewer(t, "viewer-a"))
	if err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	if snapshot.Phase != PhaseReady || snapshot.Busy {
		t.Fatalf("expected ready snapshot, got %+v", snapshot)
	}
	if snapshot.Votes != (VoteState{Count: 1, ViewerHasVoted: true}) {
		t.Fatalf("unexpected votes: %+v", snapshot.Votes)
	}
	if len(snapshot.Comments.Comments) != 1 || snapshot.ItemID != "item-1" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestBindSwallowsHydrationFailure(t *testing.T) {
	fake := newFakeRecords()
	fake.seedVote("item-1", "viewer-a")
	fake.countErr = errors.New("offline")
	events := &recordingObserver{}
	controller := mustController(t, fake, ControllerConfig{Observer: events})

	snapshot, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), mustViewer(t, "viewer-a"))
	if err != nil {
		t.Fatalf("expected hydration failure to be swallowed, got %v", err)
	}
	if snapshot.Votes != (VoteState{}) || len(snapshot.Comments.Comments) != 0 {
		t.Fatalf("expected defaults, got %+v", snapshot)
	}
	if snapshot.Phase != PhaseReady {
		t.Fatalf("expected ready phase after failed hydration, got %s", snapshot.Phase)
	}
	if events.count(EventHydrationFailed) != 1 {
		t.Fatalf("expected hydration failure event")
	}
}

func TestToggleVoteIsOptimisticWhileInFlight(t *testing.T) {
	fake := newFakeRecords()
	fake.seedVote("item-1", "viewer-b")
	events := &recordingObserver{}
	controller := mustController(t, fake, ControllerConfig{Observer: events})
	if _, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), mustViewer(t, "viewer-a")); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	fake.holdMutations()

	type toggleResult struct {
		votes VoteState
		err   error
	}
	results := make(chan toggleResult, 1)
	go func() {
		votes, err := controller.ToggleVote(context.Background())
		results <- toggleResult{votes: votes, err: err}
	}()
	<-fake.entered

	inFlight := controller.Snapshot()
	if inFlight.Votes != (VoteState{Count: 2, ViewerHasVoted: true}) {
		t.Fatalf("expected optimistic state, got %+v", inFlight.Votes)
	}
	if !inFlight.Busy || inFlight.Phase != PhaseMutating {
		t.Fatalf("expected busy mutating snapshot, got %+v", inFlight)
	}

	dropped, err := controller.ToggleVote(context.Background())
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy drop, got %v", err)
	}
	if dropped != inFlight.Votes {
		t.Fatalf("expected dropped request to leave state untouched, got %+v", dropped)
	}
	if _, err := controller.SubmitComment(context.Background(), "hello"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected comment to be dropped while busy, got %v", err)
	}

	fake.releaseMutations()
	result := <-results
	if result.err != nil {
		t.Fatalf("unexpected toggle error: %v", result.err)
	}
	if result.votes != (VoteState{Count: 2, ViewerHasVoted: true}) {
		t.Fatalf("unexpected confirmed state: %+v", result.votes)
	}
	if controller.Snapshot().Busy || controller.Phase() != PhaseReady {
		t.Fatalf("expected ready controller after confirmation")
	}
	if fake.callCount("insert") != 1 {
		t.Fatalf("expected a single remote insert, got %d", fake.callCount("insert"))
	}
	if events.count(EventRequestDropped) != 2 || events.count(EventVoteConfirmed) != 1 {
		t.Fatalf("unexpected events: %+v", events.events)
	}
}

func TestToggleVoteRollsBackOnFailure(t *testing.T) {
	fake := newFakeRecords()
	fake.seedVote("item-1", "viewer-a")
	fake.seedVote("item-1", "viewer-b")
	events := &recordingObserver{}
	controller := mustController(t, fake, ControllerConfig{Observer: events})
	if _, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), mustViewer(t, "viewer-a")); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	fake.setError(&fake.deleteErr, errors.New("write rejected"))

	votes, err := controller.ToggleVote(context.Background())
	if !errors.Is(err, ErrMutation) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	var typed *Error
	if !errors.As(err, &typed) || typed.Code() != "engagement.toggle_vote.vote_delete_failed" {
		t.Fatalf("unexpected error code: %v", err)
	}
	expected := VoteState{Count: 2, ViewerHasVoted: true}
	if votes != expected || controller.Snapshot().Votes != expected {
		t.Fatalf("expected rollback to %+v, got %+v", expected, controller.Snapshot().Votes)
	}
	if events.count(EventVoteRolledBack) != 1 {
		t.Fatalf("expected rollback event")
	}

	fake.setError(&fake.deleteErr, nil)
	votes, err = controller.ToggleVote(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if votes != (VoteState{Count: 1, ViewerHasVoted: false}) {
		t.Fatalf("unexpected state after retry: %+v", votes)
	}
}

func TestToggleVoteRollsBackOnTimeout(t *testing.T) {
	fake := newFakeRecords()
	controller := mustController(t, fake, ControllerConfig{RemoteTimeout: 20 * time.Millisecond})
	if _, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), mustViewer(t, "viewer-a")); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	fake.holdMutations()
	defer fake.releaseMutations()

	votes, err := controller.ToggleVote(context.Background())
	if !errors.Is(err, ErrMutation) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timed out mutation, got %v", err)
	}
	if votes != (VoteState{}) || controller.Snapshot().Votes != (VoteState{}) {
		t.Fatalf("expected rollback to zero, got %+v", controller.Snapshot().Votes)
	}
	if controller.Snapshot().Busy {
		t.Fatalf("expected busy flag cleared after timeout")
	}
}

func TestToggleVoteWithoutViewerIsRejectedLocally(t *testing.T) {
	fake := newFakeRecords()
	fake.seedVote("item-1", "viewer-b")
	controller := mustController(t, fake, ControllerConfig{})
	if _, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), identity.NoViewer); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}

	votes, err := controller.ToggleVote(context.Background())
	if !errors.Is(err, ErrPrecondition) || !errors.Is(err, ErrSignInRequired) {
		t.Fatalf("expected sign-in precondition, got %v", err)
	}
	if votes != (VoteState{Count: 1}) {
		t.Fatalf("expected unchanged state, got %+v", votes)
	}
	if fake.callCount("insert") != 0 {
		t.Fatalf("expected no remote call")
	}
}

func TestSubmitCommentPrependsOnlyAfterConfirmation(t *testing.T) {
	fake := newFakeRecords()
	fake.seedComment("item-1", "viewer-b", "older", 0)
	events := &recordingObserver{}
	controller := mustController(t, fake, ControllerConfig{Observer: events})
	if _, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), mustViewer(t, "viewer-a")); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	fake.holdMutations()

	type submitResult struct {
		comment Comment
		err     error
	}
	results := make(chan submitResult, 1)
	go func() {
		comment, err := controller.SubmitComment(context.Background(), " new thoughts ")
		results <- submitResult{comment: comment, err: err}
	}()
	<-fake.entered
	if len(controller.Snapshot().Comments.Comments) != 1 {
		t.Fatalf("expected no optimistic comment")
	}
	fake.releaseMutations()

	result := <-results
	if result.err != nil {
		t.Fatalf("unexpected submit error: %v", result.err)
	}
	comments := controller.Snapshot().Comments.Comments
	if len(comments) != 2 || comments[0].ID != result.comment.ID || comments[0].Body != "new thoughts" {
		t.Fatalf("expected confirmed comment first, got %+v", comments)
	}
	if events.count(EventCommentSubmitted) != 1 {
		t.Fatalf("expected comment event")
	}
}

func TestSubmitCommentFailureLeavesListUnchanged(t *testing.T) {
	fake := newFakeRecords()
	fake.seedComment("item-1", "viewer-b", "older", 0)
	controller := mustController(t, fake, ControllerConfig{})
	if _, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), mustViewer(t, "viewer-a")); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	fake.setError(&fake.insertErr, errors.New("write rejected"))

	_, err := controller.SubmitComment(context.Background(), "hello")
	if !errors.Is(err, ErrMutation) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	if len(controller.Snapshot().Comments.Comments) != 1 {
		t.Fatalf("expected list unchanged")
	}

	_, err = controller.SubmitComment(context.Background(), "   ")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitCommentWithoutViewer(t *testing.T) {
	controller := mustController(t, newFakeRecords(), ControllerConfig{})
	if _, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), identity.NoViewer); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	_, err := controller.SubmitComment(context.Background(), "hello")
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrSignInRequired) {
		t.Fatalf("expected sign-in validation error, got %v", err)
	}
}

func TestUnbindDropsState(t *testing.T) {
	fake := newFakeRecords()
	fake.seedVote("item-1", "viewer-a")
	controller := mustController(t, fake, ControllerConfig{})
	if _, err := controller.ToggleVote(context.Background()); !errors.Is(err, ErrUnbound) {
		t.Fatalf("expected unbound error before bind, got %v", err)
	}
	if _, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), mustViewer(t, "viewer-a")); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}

	controller.Unbind()
	snapshot := controller.Snapshot()
	if snapshot.Phase != PhaseUnbound || snapshot.Viewer.Present() || snapshot.Votes != (VoteState{}) {
		t.Fatalf("unexpected snapshot after unbind: %+v", snapshot)
	}
	if _, err := controller.ToggleVote(context.Background()); !errors.Is(err, ErrUnbound) {
		t.Fatalf("expected unbound error, got %v", err)
	}
	if _, err := controller.SubmitComment(context.Background(), "hi"); !errors.Is(err, ErrUnbound) {
		t.Fatalf("expected unbound error, got %v", err)
	}
}

func TestUnbindDiscardsInFlightResult(t *testing.T) {
	fake := newFakeRecords()
	controller := mustController(t, fake, ControllerConfig{})
	if _, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), mustViewer(t, "viewer-a")); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	fake.holdMutations()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = controller.ToggleVote(context.Background())
	}()
	<-fake.entered
	controller.Unbind()
	fake.releaseMutations()
	<-done

	if controller.Phase() != PhaseUnbound {
		t.Fatalf("expected late result to leave controller unbound, got %s", controller.Phase())
	}
}

func TestFollowRebindsOnViewerChange(t *testing.T) {
	fake := newFakeRecords()
	fake.seedVote("item-1", "viewer-a")
	controller := mustController(t, fake, ControllerConfig{})
	if _, err := controller.Bind(context.Background(), mustItemID(t, "item-1"), identity.NoViewer); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	source := &fakeSource{stream: make(chan identity.Viewer, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Follow(ctx, source)

	source.stream <- mustViewer(t, "viewer-a")
	waitFor(t, func() bool {
		return controller.Snapshot().Viewer.ID() == "viewer-a"
	})
	waitFor(t, func() bool {
		return controller.Snapshot().Votes == VoteState{Count: 1, ViewerHasVoted: true}
	})

	source.stream <- identity.NoViewer
	waitFor(t, func() bool {
		snapshot := controller.Snapshot()
		return !snapshot.Viewer.Present() && snapshot.Votes == VoteState{Count: 1}
	})
}

func TestToggleVoteDroppedWhileHydrating(t *testing.T) {
	fake := newFakeRecords()
	fake.seedVote("item-1", "viewer-b")
	events := &recordingObserver{}
	controller := mustController(t, fake, ControllerConfig{Observer: events})
	item, viewer := mustItemID(t, "item-1"), mustViewer(t, "viewer-a")
	fake.holdReads()

	bound := make(chan Snapshot, 1)
	go func() {
		snapshot, _ := controller.Bind(context.Background(), item, viewer)
		bound <- snapshot
	}()
	<-fake.readsIn

	if controller.Phase() != PhaseHydrating || !controller.Snapshot().Busy {
		t.Fatalf("expected busy hydrating controller, got %+v", controller.Snapshot())
	}
	votes, err := controller.ToggleVote(context.Background())
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected toggle to be dropped during hydration, got %v", err)
	}
	if votes != (VoteState{}) {
		t.Fatalf("expected untouched state, got %+v", votes)
	}
	if _, err := controller.SubmitComment(context.Background(), "hello"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected comment to be dropped during hydration, got %v", err)
	}
	if fake.callCount("insert")+fake.callCount("delete") != 0 {
		t.Fatalf("expected no remote mutation while hydrating")
	}

	fake.releaseReads()
	snapshot := <-bound
	if snapshot.Phase != PhaseReady || snapshot.Votes != (VoteState{Count: 1}) {
		t.Fatalf("unexpected snapshot after hydration: %+v", snapshot)
	}
	if events.count(EventRequestDropped) != 2 {
		t.Fatalf("expected two dropped requests, got %d", events.count(EventRequestDropped))
	}
	if votes, err := controller.ToggleVote(context.Background()); err != nil || votes != (VoteState{Count: 2, ViewerHasVoted: true}) {
		t.Fatalf("expected toggle to work once ready, got %+v %v", votes, err)
	}
}

func TestToggleVoteRoundTripFromEmptyStore(t *testing.T) {
	fake := newFakeRecords()
	controller := mustController(t, fake, ControllerConfig{})

	snapshot, err := controller.Bind(context.Background(), mustItemID(t, "x"), mustViewer(t, "v1"))
	if err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	if snapshot.Votes != (VoteState{}) {
		t.Fatalf("expected empty votes, got %+v", snapshot.Votes)
	}

	on, err := controller.ToggleVote(context.Background())
	if err != nil || on != (VoteState{Count: 1, ViewerHasVoted: true}) {
		t.Fatalf("unexpected state after upvote: %+v %v", on, err)
	}
	off, err := controller.ToggleVote(context.Background())
	if err != nil || off != (VoteState{}) {
		t.Fatalf("unexpected state after removing upvote: %+v %v", off, err)
	}
	if fake.callCount("insert") != 1 || fake.callCount("delete") != 1 {
		t.Fatalf("expected one insert and one delete, got %d/%d", fake.callCount("insert"), fake.callCount("delete"))
	}
	if remaining, _ := fake.Count(context.Background(), records.TableVotes, records.Filter{ItemID: "x"}); remaining != 0 {
		t.Fatalf("expected no stored votes, got %d", remaining)
	}
}

func TestToggleVoteIdempotentAcrossRehydration(t *testing.T) {
	fake := newFakeRecords()
	fake.seedVote("item-1", "viewer-b")
	first := mustController(t, fake, ControllerConfig{})
	second := mustController(t, fake, ControllerConfig{})
	item := mustItemID(t, "item-1")
	viewer := mustViewer(t, "viewer-a")

	if _, err := first.Bind(context.Background(), item, viewer); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	if _, err := first.ToggleVote(context.Background()); err != nil {
		t.Fatalf("unexpected upvote error: %v", err)
	}

	snapshot, err := second.Bind(context.Background(), item, viewer)
	if err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	if snapshot.Votes != (VoteState{Count: 2, ViewerHasVoted: true}) {
		t.Fatalf("expected rehydrated vote, got %+v", snapshot.Votes)
	}
	if votes, err := second.ToggleVote(context.Background()); err != nil || votes != (VoteState{Count: 1}) {
		t.Fatalf("expected vote removed, got %+v %v", votes, err)
	}

	snapshot, err = first.Rebind(context.Background(), viewer)
	if err != nil {
		t.Fatalf("unexpected rebind error: %v", err)
	}
	if snapshot.Votes != (VoteState{Count: 1}) {
		t.Fatalf("expected original state after two toggles, got %+v", snapshot.Votes)
	}
}
