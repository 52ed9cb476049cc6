package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"

	"intake-portal/internal/shared/server/respond"
	"intake-portal/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 "internal error". Panics caused by the client going
// away are logged without writing a response; http.ErrAbortHandler is re-raised.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
				"error":      rec,
			}
			if err, ok := rec.(error); ok && clientGone(err) {
				telemetry.Warn("panic.client_gone", fields)
				c.Abort()
				return
			}
			if role := RoleFromContext(c); role != "" {
				fields["role"] = string(role)
			}
			fields["stack"] = string(debug.Stack())
			telemetry.Error("panic", fields)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
		}()
		c.Next()
	}
}

func clientGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
