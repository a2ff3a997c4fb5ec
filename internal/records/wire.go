package records

import "time"

// RecordPayload is the JSON shape exchanged by the records API.
type RecordPayload struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"item_id"`
	ViewerID   string    `json:"viewer_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Body       string    `json:"body,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// InsertPayload is the request body accepted by the records insert endpoint.
type InsertPayload struct {
	ItemID string `json:"item_id"`
	Body   string `json:"body,omitempty"`
}

// CountPayload is the response of the count endpoint.
type CountPayload struct {
	Count int64 `json:"count"`
}

// ExistsPayload is the response of the exists endpoint.
type ExistsPayload struct {
	Exists bool `json:"exists"`
}

// ListPayload is the response of the list endpoint.
type ListPayload struct {
	Records []RecordPayload `json:"records"`
}

// InsertResultPayload is the response of the insert endpoint.
type InsertResultPayload struct {
	Record RecordPayload `json:"record"`
}

// ErrorPayload carries a machine readable error code.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ToPayload converts a record into its wire shape.
func ToPayload(record Record) RecordPayload {
	return RecordPayload{
		ID:         record.ID,
		ItemID:     record.ItemID,
		ViewerID:   record.ViewerID,
		AuthorName: record.AuthorName,
		Body:       record.Body,
		CreatedAt:  record.CreatedAt.UTC(),
	}
}

// FromPayload converts a wire record back into a Record.
func FromPayload(payload RecordPayload) Record {
	return Record{
		ID:         payload.ID,
		ItemID:     payload.ItemID,
		ViewerID:   payload.ViewerID,
		AuthorName: payload.AuthorName,
		Body:       payload.Body,
		CreatedAt:  payload.CreatedAt.UTC(),
	}
}
