package engagement

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/agentstore/internal/identity"
)

const (
	maxIdentifierLength = 190
	maxCommentLength    = 4000
)

// ItemID is the opaque, validated key of an engaged item.
type ItemID string

// NewItemID validates raw input and returns an ItemID.
func NewItemID(rawInput string) (ItemID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", newError(ErrValidation, opNewItemID, "empty_item_id", fmt.Errorf("item id is empty"))
	}
	if len(trimmed) > maxIdentifierLength {
		return "", newError(ErrValidation, opNewItemID, "item_id_too_long",
			fmt.Errorf("item id exceeds %d characters", maxIdentifierLength))
	}
	return ItemID(trimmed), nil
}

// String returns the underlying identifier.
func (id ItemID) String() string {
	return string(id)
}

// VoteState is the vote counter for an item as seen by the current viewer.
type VoteState struct {
	Count          int64
	ViewerHasVoted bool
}

// flipped returns the state after the viewer's vote is added or removed.
func (v VoteState) flipped() VoteState {
	if v.ViewerHasVoted {
		return VoteState{Count: clampCount(v.Count - 1), ViewerHasVoted: false}
	}
	return VoteState{Count: v.Count + 1, ViewerHasVoted: true}
}

func (v VoteState) normalized() VoteState {
	v.Count = clampCount(v.Count)
	if v.ViewerHasVoted && v.Count < 1 {
		v.Count = 1
	}
	return v
}

func clampCount(count int64) int64 {
	if count < 0 {
		return 0
	}
	return count
}

// Comment is a server-confirmed viewer comment.
type Comment struct {
	ID         string
	ItemID     ItemID
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// CommentState is the ordered comment list for an item, newest first.
type CommentState struct {
	Comments []Comment
}

func (c CommentState) clone() CommentState {
	if len(c.Comments) == 0 {
		return CommentState{Comments: []Comment{}}
	}
	copied := make([]Comment, len(c.Comments))
	copy(copied, c.Comments)
	return CommentState{Comments: copied}
}

// Phase is the controller's lifecycle state for its current binding.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseHydrating Phase = "hydrating"
	PhaseReady     Phase = "ready"
	PhaseMutating  Phase = "mutating"
	PhaseUnbound   Phase = "unbound"
)

// Snapshot is a point-in-time copy of a binding's state.
type Snapshot struct {
	ItemID   ItemID
	Viewer   identity.Viewer
	Phase    Phase
	Votes    VoteState
	Comments CommentState
	Busy     bool
}

func normalizeBody(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", newError(ErrValidation, opSubmitComment, "empty_body", fmt.Errorf("comment body is empty"))
	}
	if len([]rune(trimmed)) > maxCommentLength {
		return "", newError(ErrValidation, opSubmitComment, "body_too_long",
			fmt.Errorf("comment body exceeds %d characters", maxCommentLength))
	}
	return trimmed, nil
}
