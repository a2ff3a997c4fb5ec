package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/agentstore/internal/records"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type codedError interface {
	Code() string
}

func (h *httpHandler) handleCount(c *gin.Context) {
	table, filter, ok := h.readScope(c)
	if !ok {
		return
	}
	total, err := h.records.Count(c.Request.Context(), table, filter)
	if err != nil {
		h.writeRecordsError(c, err)
		return
	}
	c.JSON(http.StatusOK, records.CountPayload{Count: total})
}

// handleExists answers for the session viewer only; a viewer_id in the query
// is ignored.
func (h *httpHandler) handleExists(c *gin.Context) {
	table, filter, ok := h.readScope(c)
	if !ok {
		return
	}
	filter.ViewerID = viewerFromContext(c).ID()
	found, err := h.records.Exists(c.Request.Context(), table, filter)
	if err != nil {
		h.writeRecordsError(c, err)
		return
	}
	c.JSON(http.StatusOK, records.ExistsPayload{Exists: found})
}

func (h *httpHandler) handleList(c *gin.Context) {
	table, filter, ok := h.readScope(c)
	if !ok {
		return
	}
	order, err := records.ParseOrder(c.Query("order"))
	if err != nil {
		h.writeRecordsError(c, err)
		return
	}
	rows, err := h.records.List(c.Request.Context(), table, filter, order)
	if err != nil {
		h.writeRecordsError(c, err)
		return
	}
	payload := records.ListPayload{Records: make([]records.RecordPayload, 0, len(rows))}
	for _, row := range rows {
		payload.Records = append(payload.Records, records.ToPayload(row))
	}
	c.JSON(http.StatusOK, payload)
}

// handleInsert stores a record on behalf of the session viewer. Viewer identity
// and author name never come from the request body.
func (h *httpHandler) handleInsert(c *gin.Context) {
	table, err := records.ParseTable(c.Param("table"))
	if err != nil {
		h.writeRecordsError(c, err)
		return
	}
	var request records.InsertPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, records.ErrorPayload{Error: "invalid_request"})
		return
	}
	viewer := viewerFromContext(c)
	stored, err := h.records.Insert(c.Request.Context(), table, records.Record{
		ItemID:     strings.TrimSpace(request.ItemID),
		ViewerID:   viewer.ID(),
		AuthorName: viewer.DisplayName(),
		Body:       strings.TrimSpace(request.Body),
	})
	if err != nil {
		h.writeRecordsError(c, err)
		return
	}
	c.JSON(http.StatusCreated, records.InsertResultPayload{Record: records.ToPayload(stored)})
}

// handleDelete removes the session viewer's vote for the item. Comments are
// append-only.
func (h *httpHandler) handleDelete(c *gin.Context) {
	table, err := records.ParseTable(c.Param("table"))
	if err != nil {
		h.writeRecordsError(c, err)
		return
	}
	if table != records.TableVotes {
		c.JSON(http.StatusMethodNotAllowed, records.ErrorPayload{Error: "records.delete.unsupported_table"})
		return
	}
	filter := records.Filter{
		ItemID:   strings.TrimSpace(c.Query("item_id")),
		ViewerID: viewerFromContext(c).ID(),
	}
	if err := h.records.Delete(c.Request.Context(), table, filter); err != nil {
		h.writeRecordsError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) readScope(c *gin.Context) (records.Table, records.Filter, bool) {
	table, err := records.ParseTable(c.Param("table"))
	if err != nil {
		h.writeRecordsError(c, err)
		return "", records.Filter{}, false
	}
	filter := records.Filter{
		ItemID:   strings.TrimSpace(c.Query("item_id")),
		ViewerID: strings.TrimSpace(c.Query("viewer_id")),
	}
	if err := filter.Validate(); err != nil {
		h.writeRecordsError(c, err)
		return "", records.Filter{}, false
	}
	return table, filter, true
}

func (h *httpHandler) writeRecordsError(c *gin.Context, err error) {
	status := statusForRecordsError(err)
	code := records.Outcome(err)
	var coded codedError
	if errors.As(err, &coded) {
		code = coded.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("records request failed",
			zap.String("route", c.FullPath()),
			zap.String("code", code),
			zap.Error(err))
	}
	c.JSON(status, records.ErrorPayload{Error: code})
}

func statusForRecordsError(err error) int {
	switch {
	case errors.Is(err, records.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, records.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, records.ErrUnknownTable),
		errors.Is(err, records.ErrInvalidFilter),
		errors.Is(err, records.ErrInvalidRecord):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
