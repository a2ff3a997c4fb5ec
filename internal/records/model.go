package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Table names one of the logical record collections.
type Table string

const (
	// TableVotes holds one row per (item, viewer) upvote.
	TableVotes Table = "vote_records"
	// TableComments holds viewer comments on items.
	TableComments Table = "comment_records"
)

// Order selects the ordering applied by List.
type Order string

const (
	// OrderNewestFirst sorts by creation time descending.
	OrderNewestFirst Order = "newest"
	// OrderOldestFirst sorts by creation time ascending.
	OrderOldestFirst Order = "oldest"
)

const (
	maxIdentifierLength = 190
	maxBodyLength       = 4000
)

var (
	// ErrUnknownTable indicates a table outside the supported set.
	ErrUnknownTable = errors.New("records: unknown table")
	// ErrInvalidFilter indicates a filter without an item id or with oversized values.
	ErrInvalidFilter = errors.New("records: invalid filter")
	// ErrInvalidRecord indicates an insert payload that violates table constraints.
	ErrInvalidRecord = errors.New("records: invalid record")
	// ErrDuplicate indicates the uniqueness constraint on (item_id, viewer_id) rejected an insert.
	ErrDuplicate = errors.New("records: duplicate record")
	// ErrNotFound indicates a delete matched no rows.
	ErrNotFound = errors.New("records: not found")
	// ErrUnavailable indicates the remote store could not be reached.
	ErrUnavailable = errors.New("records: store unavailable")
)

// ParseTable validates a raw table name.
func ParseTable(raw string) (Table, error) {
	switch Table(strings.TrimSpace(raw)) {
	case TableVotes:
		return TableVotes, nil
	case TableComments:
		return TableComments, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, raw)
	}
}

// ParseOrder validates a raw ordering; empty input means newest first.
func ParseOrder(raw string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(raw))) {
	case "", OrderNewestFirst:
		return OrderNewestFirst, nil
	case OrderOldestFirst:
		return OrderOldestFirst, nil
	default:
		return "", fmt.Errorf("%w: unknown order %q", ErrInvalidFilter, raw)
	}
}

// Filter restricts an operation to an item and optionally to one viewer.
type Filter struct {
	ItemID   string
	ViewerID string
}

// Validate ensures the filter names an item and stays within storage bounds.
func (f Filter) Validate() error {
	if strings.TrimSpace(f.ItemID) == "" {
		return fmt.Errorf("%w: empty item id", ErrInvalidFilter)
	}
	if len(f.ItemID) > maxIdentifierLength || len(f.ViewerID) > maxIdentifierLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidFilter, maxIdentifierLength)
	}
	return nil
}

// Record is the transport shape shared by both tables. Vote rows leave Body empty.
type Record struct {
	ID         string
	ItemID     string
	ViewerID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// Store is the abstract remote persistence service consumed by the engagement core.
type Store interface {
	Count(ctx context.Context, table Table, filter Filter) (int64, error)
	Exists(ctx context.Context, table Table, filter Filter) (bool, error)
	List(ctx context.Context, table Table, filter Filter, order Order) ([]Record, error)
	// Insert persists the record and returns it with the server-assigned id and timestamp.
	Insert(ctx context.Context, table Table, record Record) (Record, error)
	Delete(ctx context.Context, table Table, filter Filter) error
}

func validateInsert(table Table, record Record) error {
	if err := (Filter{ItemID: record.ItemID, ViewerID: record.ViewerID}).Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if strings.TrimSpace(record.ViewerID) == "" {
		return fmt.Errorf("%w: empty viewer id", ErrInvalidRecord)
	}
	if table == TableComments && strings.TrimSpace(record.Body) == "" {
		return fmt.Errorf("%w: empty comment body", ErrInvalidRecord)
	}
	if utf8.RuneCountInString(record.Body) > maxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters", ErrInvalidRecord, maxBodyLength)
	}
	return nil
}
