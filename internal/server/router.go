package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/agentstore/internal/auth"
	"github.com/MarcoPoloResearchLab/agentstore/internal/engagement"
	"github.com/MarcoPoloResearchLab/agentstore/internal/records"
	"github.com/MarcoPoloResearchLab/agentstore/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	viewerIDContextKey   = "agentstore_viewer_id"
	viewerNameContextKey = "agentstore_viewer_name"
)

var (
	errMissingRecords  = errors.New("records store dependency required")
	errMissingSessions = errors.New("session validator dependency required")
	errMissingViewers  = errors.New("viewer resolver dependency required")
)

// SessionValidator authenticates a request from its cookie or bearer token.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// ViewerResolver maps session claims onto a canonical viewer.
type ViewerResolver interface {
	Resolve(ctx context.Context, claims auth.SessionClaims) (users.Resolved, error)
}

// Recorder receives HTTP, rate limit and engagement measurements.
type Recorder interface {
	engagement.Observer
	RecordHTTPRequest(route string, statusCode int, duration time.Duration)
	RecordRateLimited()
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Records         records.Store
	Sessions        SessionValidator
	Viewers         ViewerResolver
	Logger          *zap.Logger
	Metrics         Recorder
	Gatherer        prometheus.Gatherer
	AllowedOrigins  []string
	WritesPerMinute int
}

// NewHTTPHandler builds the gin router serving the directory, the records API
// and the metrics endpoint.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Records == nil {
		return nil, errMissingRecords
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Viewers == nil {
		return nil, errMissingViewers
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := &httpHandler{
		records:  deps.Records,
		sessions: deps.Sessions,
		viewers:  deps.Viewers,
		metrics:  deps.Metrics,
		limiter:  newWriteLimiter(deps.WritesPerMinute),
		logger:   logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(handler.observeRequest)

	router.GET("/agents", handler.handleListAgents)
	router.GET("/agents/:slug", handler.handleGetAgent)
	router.GET("/agents/:slug/engagement", handler.identifyViewer, handler.handleAgentEngagement)

	recordsAPI := router.Group("/v1/records/:table")
	recordsAPI.GET("/count", handler.handleCount)
	recordsAPI.GET("/exists", handler.requireViewer, handler.handleExists)
	recordsAPI.GET("", handler.handleList)

	writes := recordsAPI.Group("")
	writes.Use(handler.requireViewer, handler.limitWrites)
	writes.POST("", handler.handleInsert)
	writes.DELETE("", handler.handleDelete)

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler(deps.Gatherer)))
	}

	return router, nil
}

type httpHandler struct {
	records  records.Store
	sessions SessionValidator
	viewers  ViewerResolver
	metrics  Recorder
	limiter  *writeLimiter
	logger   *zap.Logger
}

func (h *httpHandler) observeRequest(c *gin.Context) {
	started := time.Now()
	c.Next()
	if h.metrics == nil {
		return
	}
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	h.metrics.RecordHTTPRequest(route, c.Writer.Status(), time.Since(started))
}

func (h *httpHandler) observer() engagement.Observer {
	if h.metrics == nil {
		return nil
	}
	return h.metrics
}
