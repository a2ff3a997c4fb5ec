package engagement

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error matches exactly one of these with errors.Is.
var (
	// ErrSync marks a failed hydration read; callers fall back to zero/empty state.
	ErrSync = errors.New("engagement: sync failed")
	// ErrPrecondition marks a vote attempted without a signed-in viewer.
	ErrPrecondition = errors.New("engagement: precondition failed")
	// ErrValidation marks input rejected before reaching the remote store.
	ErrValidation = errors.New("engagement: validation failed")
	// ErrMutation marks a failed remote insert or delete; the caller may retry.
	ErrMutation = errors.New("engagement: mutation failed")
)

var (
	// ErrSignInRequired is wrapped by precondition and validation errors caused by an absent viewer.
	ErrSignInRequired = errors.New("engagement: must be signed in")
	// ErrBusy reports a request dropped because another remote operation is in flight.
	// State is left untouched; it is not a failure.
	ErrBusy = errors.New("engagement: operation in flight")
	// ErrUnbound reports a request issued before Bind or after Unbind.
	ErrUnbound = errors.New("engagement: controller is not bound")
)

const (
	opNewItemID      = "engagement.new_item_id"
	opNewStore       = "engagement.store.new"
	opNewController  = "engagement.controller.new"
	opHydrate        = "engagement.hydrate"
	opToggleVote     = "engagement.toggle_vote"
	opSubmitComment  = "engagement.submit_comment"
	opBind           = "engagement.bind"
	reasonNoViewer   = "no_viewer"
	reasonCountRead  = "count_read_failed"
	reasonVoterRead  = "viewer_vote_read_failed"
	reasonListRead   = "comment_list_failed"
	reasonInsertVote = "vote_insert_failed"
	reasonDeleteVote = "vote_delete_failed"
	reasonInsertNote = "comment_insert_failed"
)

// Error is a typed engagement failure with an "<operation>.<reason>" code.
type Error struct {
	kind error
	code string
	err  error
}

func newError(kind error, operation, reason string, cause error) *Error {
	return &Error{kind: kind, code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %v", e.code, e.kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.code, e.kind, e.err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// Code returns the operation-scoped error code.
func (e *Error) Code() string {
	return e.code
}

// Kind returns one of ErrSync, ErrPrecondition, ErrValidation or ErrMutation.
func (e *Error) Kind() error {
	return e.kind
}
