package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	recordsPathPrefix  = "/v1/records/"
	jsonContentType    = "application/json"
)

var errMissingBaseURL = errors.New("base url is required")

// HTTPStoreConfig configures a client for the records REST API.
type HTTPStoreConfig struct {
	BaseURL      string
	SessionToken string
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// HTTPStore implements Store against a remote agentstore API.
type HTTPStore struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPStore validates the configuration and constructs an HTTPStore.
func NewHTTPStore(cfg HTTPStoreConfig) (*HTTPStore, error) {
	rawBase := strings.TrimSpace(cfg.BaseURL)
	if rawBase == "" {
		return nil, newStoreError(opStoreNew, "missing_base_url", errMissingBaseURL)
	}
	baseURL, err := url.Parse(strings.TrimRight(rawBase, "/"))
	if err != nil {
		return nil, newStoreError(opStoreNew, "invalid_base_url", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &HTTPStore{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.SessionToken),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Count implements Store.
func (store *HTTPStore) Count(ctx context.Context, table Table, filter Filter) (int64, error) {
	var payload CountPayload
	if err := store.do(ctx, opCount, http.MethodGet, store.endpoint(table, "count", filter, ""), nil, &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

// Exists implements Store. The server answers for the session viewer.
func (store *HTTPStore) Exists(ctx context.Context, table Table, filter Filter) (bool, error) {
	var payload ExistsPayload
	if err := store.do(ctx, opExists, http.MethodGet, store.endpoint(table, "exists", filter, ""), nil, &payload); err != nil {
		return false, err
	}
	return payload.Exists, nil
}

// List implements Store.
func (store *HTTPStore) List(ctx context.Context, table Table, filter Filter, order Order) ([]Record, error) {
	var payload ListPayload
	if err := store.do(ctx, opList, http.MethodGet, store.endpoint(table, "", filter, order), nil, &payload); err != nil {
		return nil, err
	}
	result := make([]Record, 0, len(payload.Records))
	for _, record := range payload.Records {
		result = append(result, FromPayload(record))
	}
	return result, nil
}

// Insert implements Store. The server derives the viewer from the session token.
func (store *HTTPStore) Insert(ctx context.Context, table Table, record Record) (Record, error) {
	body, err := json.Marshal(InsertPayload{ItemID: record.ItemID, Body: record.Body})
	if err != nil {
		return Record{}, newStoreError(opInsert, "encode_failed", err)
	}
	var payload InsertResultPayload
	if err := store.do(ctx, opInsert, http.MethodPost, store.endpoint(table, "", Filter{}, ""), body, &payload); err != nil {
		return Record{}, err
	}
	return FromPayload(payload.Record), nil
}

// Delete implements Store. The server scopes the delete to the session viewer.
func (store *HTTPStore) Delete(ctx context.Context, table Table, filter Filter) error {
	return store.do(ctx, opDelete, http.MethodDelete, store.endpoint(table, "", Filter{ItemID: filter.ItemID}, ""), nil, nil)
}

func (store *HTTPStore) endpoint(table Table, action string, filter Filter, order Order) string {
	target := *store.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + recordsPathPrefix + url.PathEscape(string(table))
	if action != "" {
		target.Path += "/" + action
	}
	query := url.Values{}
	if filter.ItemID != "" {
		query.Set("item_id", filter.ItemID)
	}
	if filter.ViewerID != "" {
		query.Set("viewer_id", filter.ViewerID)
	}
	if order != "" {
		query.Set("order", string(order))
	}
	target.RawQuery = query.Encode()
	return target.String()
}

func (store *HTTPStore) do(ctx context.Context, operation, method, target string, body []byte, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return newStoreError(operation, "request_build_failed", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	request.Header.Set("Accept", jsonContentType)
	if store.token != "" {
		request.Header.Set("Authorization", "Bearer "+store.token)
	}

	response, err := store.httpClient.Do(request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return newStoreError(operation, "canceled", ctxErr)
		}
		store.logger.Warn("records request failed",
			zap.String("operation", operation),
			zap.String("method", method),
			zap.Error(err))
		return newStoreError(operation, "transport_failed", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		var failure ErrorPayload
		if err := json.NewDecoder(io.LimitReader(response.Body, 1<<16)).Decode(&failure); err != nil {
			store.logger.Debug("records error body unreadable",
				zap.String("operation", operation),
				zap.Int("status", response.StatusCode),
				zap.Error(err))
		}
		return newStoreError(operation, reasonForStatus(response.StatusCode), statusError(response.StatusCode, failure.Error))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return newStoreError(operation, "decode_failed", err)
	}
	return nil
}

func reasonForStatus(status int) string {
	switch status {
	case http.StatusConflict:
		return reasonDuplicate
	case http.StatusNotFound:
		return reasonNotFound
	case http.StatusBadRequest:
		return "rejected"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "unauthorized"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "server_error"
	}
}

func statusError(status int, code string) error {
	detail := code
	if detail == "" {
		detail = http.StatusText(status)
	}
	switch {
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrDuplicate, detail)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, detail)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidRecord, detail)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, detail)
	default:
		return fmt.Errorf("records: status %d: %s", status, detail)
	}
}
