package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/agentstore/internal/auth"
	"github.com/MarcoPoloResearchLab/agentstore/internal/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// requireViewer rejects requests without a valid session and stores the
// canonical viewer on the context.
func (h *httpHandler) requireViewer(c *gin.Context) {
	if _, ok := h.resolveViewer(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// identifyViewer stores the viewer when a valid session is present and lets
// anonymous requests through.
func (h *httpHandler) identifyViewer(c *gin.Context) {
	h.resolveViewer(c)
	c.Next()
}

func (h *httpHandler) resolveViewer(c *gin.Context) (identity.Viewer, bool) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if !errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		return identity.NoViewer, false
	}
	resolved, err := h.viewers.Resolve(c.Request.Context(), claims)
	if err != nil {
		h.logger.Warn("viewer resolution failed", zap.String("subject", claims.Subject), zap.Error(err))
		return identity.NoViewer, false
	}
	viewer, err := identity.SignedIn(resolved.ViewerID, resolved.DisplayName)
	if err != nil {
		h.logger.Warn("viewer rejected", zap.String("viewer_id", resolved.ViewerID), zap.Error(err))
		return identity.NoViewer, false
	}
	c.Set(viewerIDContextKey, viewer.ID())
	c.Set(viewerNameContextKey, viewer.DisplayName())
	return viewer, true
}

func viewerFromContext(c *gin.Context) identity.Viewer {
	viewer, err := identity.SignedIn(c.GetString(viewerIDContextKey), c.GetString(viewerNameContextKey))
	if err != nil {
		return identity.NoViewer
	}
	return viewer
}
