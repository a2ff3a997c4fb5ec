package engagement

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/agentstore/internal/identity"
	"github.com/MarcoPoloResearchLab/agentstore/internal/records"
	"go.uber.org/zap"
)

var (
	errMissingRecords = errors.New("records store is required")
	errMissingItemID  = errors.New("item id is required")
	noOpLogger        = zap.NewNop()
)

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Records records.Store
	ItemID  ItemID
	Logger  *zap.Logger
}

// Store holds the vote, comment and busy state of one item and performs the
// remote synchronization primitives for it.
type Store struct {
	records records.Store
	itemID  ItemID
	logger  *zap.Logger

	mu       sync.Mutex
	votes    VoteState
	comments CommentState
	busy     bool
}

// NewStore constructs a Store with zero votes and no comments.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Records == nil {
		return nil, newError(ErrValidation, opNewStore, "missing_records", errMissingRecords)
	}
	if cfg.ItemID == "" {
		return nil, newError(ErrValidation, opNewStore, "missing_item_id", errMissingItemID)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		records:  cfg.Records,
		itemID:   cfg.ItemID,
		logger:   logger,
		comments: CommentState{Comments: []Comment{}},
	}, nil
}

// ItemID returns the item the store is bound to.
func (s *Store) ItemID() ItemID {
	return s.itemID
}

// Votes returns the current vote state.
func (s *Store) Votes() VoteState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votes
}

// Comments returns a copy of the current comment list.
func (s *Store) Comments() CommentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments.clone()
}

// Busy reports whether a remote operation is in flight.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Hydrate replaces local state with the remote truth for viewer. On failure the
// local state is reset to zero/empty and the same defaults are returned with a
// sync error.
func (s *Store) Hydrate(ctx context.Context, viewer identity.Viewer) (VoteState, CommentState, error) {
	if !s.tryAcquire() {
		return s.Votes(), s.Comments(), ErrBusy
	}
	defer s.release()

	votes, comments, err := s.fetch(ctx, viewer)
	s.applyHydration(votes, comments)
	return votes, comments.clone(), err
}

// ToggleVote flips the viewer's vote remotely and applies the confirmed state.
func (s *Store) ToggleVote(ctx context.Context, viewer identity.Viewer) (VoteState, error) {
	if !viewer.Present() {
		return s.Votes(), newError(ErrPrecondition, opToggleVote, reasonNoViewer, ErrSignInRequired)
	}
	if !s.tryAcquire() {
		return s.Votes(), ErrBusy
	}
	defer s.release()

	confirmed, err := s.pushVote(ctx, viewer, s.Votes())
	if err != nil {
		return s.Votes(), err
	}
	s.setVotes(confirmed)
	return confirmed, nil
}

// SubmitComment validates and inserts a comment, prepending the confirmed
// record to the local list.
func (s *Store) SubmitComment(ctx context.Context, viewer identity.Viewer, body string) (Comment, error) {
	if !viewer.Present() {
		return Comment{}, newError(ErrValidation, opSubmitComment, reasonNoViewer, ErrSignInRequired)
	}
	trimmed, err := normalizeBody(body)
	if err != nil {
		return Comment{}, err
	}
	if !s.tryAcquire() {
		return Comment{}, ErrBusy
	}
	defer s.release()

	comment, err := s.insertComment(ctx, viewer, trimmed)
	if err != nil {
		return Comment{}, err
	}
	s.prependComment(comment)
	return comment, nil
}

func (s *Store) fetch(ctx context.Context, viewer identity.Viewer) (VoteState, CommentState, error) {
	empty := CommentState{Comments: []Comment{}}
	itemFilter := records.Filter{ItemID: s.itemID.String()}

	count, err := s.records.Count(ctx, records.TableVotes, itemFilter)
	if err != nil {
		return s.hydrationFailed(reasonCountRead, err)
	}

	hasVoted := false
	if viewer.Present() {
		hasVoted, err = s.records.Exists(ctx, records.TableVotes, records.Filter{
			ItemID:   s.itemID.String(),
			ViewerID: viewer.ID(),
		})
		if err != nil {
			return s.hydrationFailed(reasonVoterRead, err)
		}
	}

	rows, err := s.records.List(ctx, records.TableComments, itemFilter, records.OrderNewestFirst)
	if err != nil {
		return s.hydrationFailed(reasonListRead, err)
	}
	comments := empty
	comments.Comments = make([]Comment, 0, len(rows))
	for _, row := range rows {
		comments.Comments = append(comments.Comments, s.commentFromRecord(row))
	}

	votes := VoteState{Count: count, ViewerHasVoted: hasVoted}.normalized()
	return votes, comments, nil
}

func (s *Store) hydrationFailed(reason string, cause error) (VoteState, CommentState, error) {
	s.logger.Warn("engagement hydration failed",
		zap.String("operation", opHydrate),
		zap.String("reason", reason),
		zap.String("item_id", s.itemID.String()),
		zap.Error(cause))
	return VoteState{}, CommentState{Comments: []Comment{}}, newError(ErrSync, opHydrate, reason, cause)
}

// pushVote issues the remote operation that moves the viewer away from the
// given state and returns the confirmed result. Duplicate inserts and deletes
// that match nothing mean the remote already holds the target membership, so
// the count is re-read instead of derived.
func (s *Store) pushVote(ctx context.Context, viewer identity.Viewer, from VoteState) (VoteState, error) {
	target := from.flipped()
	filter := records.Filter{ItemID: s.itemID.String(), ViewerID: viewer.ID()}

	if from.ViewerHasVoted {
		err := s.records.Delete(ctx, records.TableVotes, filter)
		switch {
		case err == nil:
			return target, nil
		case errors.Is(err, records.ErrNotFound):
			return s.reconcile(ctx, target), nil
		default:
			return from, s.mutationFailed(opToggleVote, reasonDeleteVote, viewer, err)
		}
	}

	_, err := s.records.Insert(ctx, records.TableVotes, records.Record{
		ItemID:   s.itemID.String(),
		ViewerID: viewer.ID(),
	})
	switch {
	case err == nil:
		return target, nil
	case errors.Is(err, records.ErrDuplicate):
		return s.reconcile(ctx, target), nil
	default:
		return from, s.mutationFailed(opToggleVote, reasonInsertVote, viewer, err)
	}
}

func (s *Store) reconcile(ctx context.Context, fallback VoteState) VoteState {
	count, err := s.records.Count(ctx, records.TableVotes, records.Filter{ItemID: s.itemID.String()})
	if err != nil {
		s.logger.Info("vote count refresh failed",
			zap.String("item_id", s.itemID.String()),
			zap.Error(err))
		return fallback
	}
	return VoteState{Count: count, ViewerHasVoted: fallback.ViewerHasVoted}.normalized()
}

func (s *Store) insertComment(ctx context.Context, viewer identity.Viewer, body string) (Comment, error) {
	row, err := s.records.Insert(ctx, records.TableComments, records.Record{
		ItemID:     s.itemID.String(),
		ViewerID:   viewer.ID(),
		AuthorName: viewer.DisplayName(),
		Body:       body,
	})
	if err != nil {
		return Comment{}, s.mutationFailed(opSubmitComment, reasonInsertNote, viewer, err)
	}
	if row.ItemID == "" {
		row.ItemID = s.itemID.String()
	}
	if row.Body == "" {
		row.Body = body
	}
	if row.ViewerID == "" {
		row.ViewerID = viewer.ID()
	}
	return s.commentFromRecord(row), nil
}

func (s *Store) mutationFailed(operation, reason string, viewer identity.Viewer, cause error) error {
	s.logger.Warn("engagement mutation failed",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("item_id", s.itemID.String()),
		zap.String("viewer_id", viewer.ID()),
		zap.Error(cause))
	return newError(ErrMutation, operation, reason, cause)
}

func (s *Store) commentFromRecord(row records.Record) Comment {
	authorName := row.AuthorName
	if authorName == "" {
		authorName = row.ViewerID
	}
	return Comment{
		ID:         row.ID,
		ItemID:     ItemID(row.ItemID),
		AuthorID:   row.ViewerID,
		AuthorName: authorName,
		Body:       row.Body,
		CreatedAt:  row.CreatedAt,
	}
}

func (s *Store) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Store) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Store) setVotes(votes VoteState) {
	s.mu.Lock()
	s.votes = votes.normalized()
	s.mu.Unlock()
}

func (s *Store) applyHydration(votes VoteState, comments CommentState) {
	s.mu.Lock()
	s.votes = votes.normalized()
	s.comments = comments.clone()
	s.mu.Unlock()
}

func (s *Store) prependComment(comment Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := make([]Comment, 0, len(s.comments.Comments)+1)
	updated = append(updated, comment)
	updated = append(updated, s.comments.Comments...)
	s.comments = CommentState{Comments: updated}
}
