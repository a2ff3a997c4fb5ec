package records

import (
	"context"
	"errors"
	"time"
)

const (
	outcomeOK          = "ok"
	outcomeDuplicate   = "duplicate"
	outcomeNotFound    = "not_found"
	outcomeInvalid     = "invalid"
	outcomeUnavailable = "unavailable"
	outcomeError       = "error"
)

// OperationRecorder receives one call per store operation.
type OperationRecorder interface {
	RecordStoreOperation(operation, table, outcome string, duration time.Duration)
}

// Instrument wraps store so that every call is reported to recorder.
func Instrument(store Store, recorder OperationRecorder) Store {
	if recorder == nil {
		return store
	}
	return &instrumentedStore{next: store, recorder: recorder, clock: time.Now}
}

type instrumentedStore struct {
	next     Store
	recorder OperationRecorder
	clock    func() time.Time
}

func (s *instrumentedStore) Count(ctx context.Context, table Table, filter Filter) (int64, error) {
	started := s.clock()
	total, err := s.next.Count(ctx, table, filter)
	s.observe("count", table, started, err)
	return total, err
}

func (s *instrumentedStore) Exists(ctx context.Context, table Table, filter Filter) (bool, error) {
	started := s.clock()
	found, err := s.next.Exists(ctx, table, filter)
	s.observe("exists", table, started, err)
	return found, err
}

func (s *instrumentedStore) List(ctx context.Context, table Table, filter Filter, order Order) ([]Record, error) {
	started := s.clock()
	rows, err := s.next.List(ctx, table, filter, order)
	s.observe("list", table, started, err)
	return rows, err
}

func (s *instrumentedStore) Insert(ctx context.Context, table Table, record Record) (Record, error) {
	started := s.clock()
	stored, err := s.next.Insert(ctx, table, record)
	s.observe("insert", table, started, err)
	return stored, err
}

func (s *instrumentedStore) Delete(ctx context.Context, table Table, filter Filter) error {
	started := s.clock()
	err := s.next.Delete(ctx, table, filter)
	s.observe("delete", table, started, err)
	return err
}

func (s *instrumentedStore) observe(operation string, table Table, started time.Time, err error) {
	s.recorder.RecordStoreOperation(operation, string(table), Outcome(err), s.clock().Sub(started))
}

// Outcome classifies err into a short label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrDuplicate):
		return outcomeDuplicate
	case errors.Is(err, ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, ErrUnknownTable), errors.Is(err, ErrInvalidFilter), errors.Is(err, ErrInvalidRecord):
		return outcomeInvalid
	case errors.Is(err, ErrUnavailable):
		return outcomeUnavailable
	default:
		return outcomeError
	}
}
