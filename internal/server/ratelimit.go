package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type viewerLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// writeLimiter keeps one token bucket per viewer. Idle buckets are swept on
// access once per limiterIdleTTL.
type writeLimiter struct {
	perMinute int
	every     rate.Limit
	now       func() time.Time

	mu        sync.Mutex
	limiters  map[string]*viewerLimiter
	lastSweep time.Time
}

// newWriteLimiter returns nil when perMinute is zero, disabling limiting.
func newWriteLimiter(perMinute int) *writeLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &writeLimiter{
		perMinute: perMinute,
		every:     rate.Limit(float64(perMinute) / 60.0),
		now:       time.Now,
		limiters:  make(map[string]*viewerLimiter),
	}
}

func (l *writeLimiter) allow(viewerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= limiterIdleTTL {
		for key, entry := range l.limiters {
			if now.Sub(entry.lastAccess) >= limiterIdleTTL {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}
	entry, ok := l.limiters[viewerID]
	if !ok {
		entry = &viewerLimiter{limiter: rate.NewLimiter(l.every, l.perMinute)}
		l.limiters[viewerID] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

func (l *writeLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (h *httpHandler) limitWrites(c *gin.Context) {
	if h.limiter == nil {
		c.Next()
		return
	}
	viewerID := c.GetString(viewerIDContextKey)
	if h.limiter.allow(viewerID) {
		c.Next()
		return
	}
	if h.metrics != nil {
		h.metrics.RecordRateLimited()
	}
	h.logger.Warn("rate limit exceeded", zap.String("viewer_id", viewerID))
	retryAfter := 60 / h.limiter.perMinute
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}
