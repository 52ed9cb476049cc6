package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"intake-portal/internal/shared/telemetry"
)

// quietPaths are polled by probes and scrapers and not logged when they succeed.
var quietPaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

// Logging emits one request.complete entry per request: warn for 4xx, error for 5xx.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		if _, quiet := quietPaths[c.Request.URL.Path]; quiet && status < http.StatusBadRequest {
			return
		}

		fields := map[string]any{
			"request_id":        RequestIDFromContext(c),
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"status":            status,
			"status_transition": c.GetString("statusTransition"),
			"duration_ms":       float64(time.Since(start).Microseconds()) / 1000.0,
			"role":              string(RoleFromContext(c)),
			"client_ip":         c.ClientIP(),
			"user_agent":        c.Request.UserAgent(),
			"bytes_out":         c.Writer.Size(),
		}
		clientID, _ := c.Get("clientId")
		fields["client_id"] = clientID
		analysisID, _ := c.Get("analysisId")
		fields["analysis_id"] = analysisID

		switch {
		case status >= http.StatusInternalServerError:
			telemetry.Error("request.complete", fields)
		case status >= http.StatusBadRequest:
			telemetry.Warn("request.complete", fields)
		default:
			telemetry.Info("request.complete", fields)
		}
	}
}
