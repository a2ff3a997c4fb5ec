package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// StoreError carries an operation-scoped code alongside the underlying cause.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the "<operation>.<reason>" identifier.
func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew = "records.store.new"
	opCount    = "records.count"
	opExists   = "records.exists"
	opList     = "records.list"
	opInsert   = "records.insert"
	opDelete   = "records.delete"

	fieldTable    = "table"
	fieldItemID   = "item_id"
	fieldViewerID = "viewer_id"

	queryItem       = "item_id = ?"
	queryItemViewer = "item_id = ? AND viewer_id = ?"
	orderNewest     = "created_at_ms DESC, id DESC"
	orderOldest     = "created_at_ms ASC, id ASC"

	reasonMissingDatabase = "missing_database"
	reasonUnknownTable    = "unknown_table"
	reasonInvalidFilter   = "invalid_filter"
	reasonInvalidRecord   = "invalid_record"
	reasonQueryFailed     = "query_failed"
	reasonIDFailed        = "id_generation_failed"
	reasonInsertFailed    = "insert_failed"
	reasonDuplicate       = "duplicate"
	reasonDeleteFailed    = "delete_failed"
	reasonNotFound        = "not_found"
)

func newStoreError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &StoreError{code: code, err: cause}
}

// GormStoreConfig describes the dependencies of a GormStore.
type GormStoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// GormStore implements Store on top of a gorm database.
type GormStore struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewGormStore validates the configuration and constructs a GormStore.
func NewGormStore(cfg GormStoreConfig) (*GormStore, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newStoreError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &GormStore{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Count returns the number of rows matching the filter.
func (store *GormStore) Count(ctx context.Context, table Table, filter Filter) (int64, error) {
	query, err := store.scoped(ctx, opCount, table, filter)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		store.logError(opCount, reasonQueryFailed, err, filterFields(table, filter)...)
		return 0, newStoreError(opCount, reasonQueryFailed, err)
	}
	return total, nil
}

// Exists reports whether any row matches the filter.
func (store *GormStore) Exists(ctx context.Context, table Table, filter Filter) (bool, error) {
	query, err := store.scoped(ctx, opExists, table, filter)
	if err != nil {
		return false, err
	}
	var total int64
	if err := query.Limit(1).Count(&total).Error; err != nil {
		store.logError(opExists, reasonQueryFailed, err, filterFields(table, filter)...)
		return false, newStoreError(opExists, reasonQueryFailed, err)
	}
	return total > 0, nil
}

// List returns matching rows in the requested order.
func (store *GormStore) List(ctx context.Context, table Table, filter Filter, order Order) ([]Record, error) {
	query, err := store.scoped(ctx, opList, table, filter)
	if err != nil {
		return nil, err
	}
	orderClause := orderNewest
	if order == OrderOldestFirst {
		orderClause = orderOldest
	}
	query = query.Order(orderClause)

	switch table {
	case TableVotes:
		var rows []VoteRecord
		if err := query.Find(&rows).Error; err != nil {
			store.logError(opList, reasonQueryFailed, err, filterFields(table, filter)...)
			return nil, newStoreError(opList, reasonQueryFailed, err)
		}
		result := make([]Record, 0, len(rows))
		for _, row := range rows {
			result = append(result, Record{
				ID:        row.ID,
				ItemID:    row.ItemID,
				ViewerID:  row.ViewerID,
				CreatedAt: time.UnixMilli(row.CreatedAtMillis).UTC(),
			})
		}
		return result, nil
	default:
		var rows []CommentRecord
		if err := query.Find(&rows).Error; err != nil {
			store.logError(opList, reasonQueryFailed, err, filterFields(table, filter)...)
			return nil, newStoreError(opList, reasonQueryFailed, err)
		}
		result := make([]Record, 0, len(rows))
		for _, row := range rows {
			result = append(result, commentToRecord(row))
		}
		return result, nil
	}
}

// Insert stores a new row. Vote inserts that collide with an existing
// (item_id, viewer_id) pair report ErrDuplicate and leave the table unchanged.
func (store *GormStore) Insert(ctx context.Context, table Table, record Record) (Record, error) {
	if _, err := ParseTable(string(table)); err != nil {
		return Record{}, newStoreError(opInsert, reasonUnknownTable, err)
	}
	if err := validateInsert(table, record); err != nil {
		return Record{}, newStoreError(opInsert, reasonInvalidRecord, err)
	}

	recordID, err := store.idProvider.NewID()
	if err != nil {
		store.logError(opInsert, reasonIDFailed, err, recordFields(table, record)...)
		return Record{}, newStoreError(opInsert, reasonIDFailed, err)
	}
	createdAt := store.clock().UTC()
	database := store.db.WithContext(ctx)

	switch table {
	case TableVotes:
		model := VoteRecord{
			ID:              recordID,
			ItemID:          record.ItemID,
			ViewerID:        record.ViewerID,
			CreatedAtMillis: createdAt.UnixMilli(),
		}
		createResult := database.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
		if createResult.Error != nil {
			store.logError(opInsert, reasonInsertFailed, createResult.Error, recordFields(table, record)...)
			return Record{}, newStoreError(opInsert, reasonInsertFailed, createResult.Error)
		}
		if createResult.RowsAffected == 0 {
			return Record{}, newStoreError(opInsert, reasonDuplicate, ErrDuplicate)
		}
		return Record{
			ID:        model.ID,
			ItemID:    model.ItemID,
			ViewerID:  model.ViewerID,
			CreatedAt: time.UnixMilli(model.CreatedAtMillis).UTC(),
		}, nil
	default:
		model := CommentRecord{
			ID:              recordID,
			ItemID:          record.ItemID,
			ViewerID:        record.ViewerID,
			AuthorName:      record.AuthorName,
			Body:            record.Body,
			CreatedAtMillis: createdAt.UnixMilli(),
		}
		if err := database.Create(&model).Error; err != nil {
			store.logError(opInsert, reasonInsertFailed, err, recordFields(table, record)...)
			return Record{}, newStoreError(opInsert, reasonInsertFailed, err)
		}
		return commentToRecord(model), nil
	}
}

// Delete removes the rows matching the filter. The filter must name a viewer so
// that a delete can never sweep an entire item.
func (store *GormStore) Delete(ctx context.Context, table Table, filter Filter) error {
	if filter.ViewerID == "" {
		return newStoreError(opDelete, reasonInvalidFilter, fmt.Errorf("%w: empty viewer id", ErrInvalidFilter))
	}
	query, err := store.scoped(ctx, opDelete, table, filter)
	if err != nil {
		return err
	}
	var deleteResult *gorm.DB
	switch table {
	case TableVotes:
		deleteResult = query.Delete(&VoteRecord{})
	default:
		deleteResult = query.Delete(&CommentRecord{})
	}
	if deleteResult.Error != nil {
		store.logError(opDelete, reasonDeleteFailed, deleteResult.Error, filterFields(table, filter)...)
		return newStoreError(opDelete, reasonDeleteFailed, deleteResult.Error)
	}
	if deleteResult.RowsAffected == 0 {
		return newStoreError(opDelete, reasonNotFound, ErrNotFound)
	}
	return nil
}

func (store *GormStore) scoped(ctx context.Context, operation string, table Table, filter Filter) (*gorm.DB, error) {
	if store.db == nil {
		store.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return nil, newStoreError(operation, reasonMissingDatabase, errMissingDatabase)
	}
	if err := filter.Validate(); err != nil {
		return nil, newStoreError(operation, reasonInvalidFilter, err)
	}
	var model any
	switch table {
	case TableVotes:
		model = &VoteRecord{}
	case TableComments:
		model = &CommentRecord{}
	default:
		return nil, newStoreError(operation, reasonUnknownTable, fmt.Errorf("%w: %q", ErrUnknownTable, table))
	}
	query := store.db.WithContext(ctx).Model(model)
	if filter.ViewerID != "" {
		return query.Where(queryItemViewer, filter.ItemID, filter.ViewerID), nil
	}
	return query.Where(queryItem, filter.ItemID), nil
}

func commentToRecord(row CommentRecord) Record {
	return Record{
		ID:         row.ID,
		ItemID:     row.ItemID,
		ViewerID:   row.ViewerID,
		AuthorName: row.AuthorName,
		Body:       row.Body,
		CreatedAt:  time.UnixMilli(row.CreatedAtMillis).UTC(),
	}
}

func filterFields(table Table, filter Filter) []zap.Field {
	return []zap.Field{
		zap.String(fieldTable, string(table)),
		zap.String(fieldItemID, filter.ItemID),
		zap.String(fieldViewerID, filter.ViewerID),
	}
}

func recordFields(table Table, record Record) []zap.Field {
	return filterFields(table, Filter{ItemID: record.ItemID, ViewerID: record.ViewerID})
}

func (store *GormStore) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger := noOpLogger
	if store != nil && store.logger != nil {
		logger = store.logger
	}
	logger.Error("records store error", attrs...)
}
