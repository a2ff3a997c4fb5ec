package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// corsMiddleware allows the configured origins. Credentialed requests are only
// enabled for an explicit origin list.
func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	explicit := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			explicit = nil
			break
		}
		if trimmed != "" {
			explicit = append(explicit, trimmed)
		}
	}
	if len(explicit) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = explicit
		config.AllowCredentials = true
	}
	return cors.New(config)
}
