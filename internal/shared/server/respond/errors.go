package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intake-portal/internal/shared/telemetry"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response and aborts the chain. Browsers and form posts get the
// message as text/plain; callers accepting application/json get an ErrorResponse.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": telemetry.RequestID(c.Request.Context()),
	}
	if role := c.GetString("role"); role != "" {
		fields["role"] = role
	}
	if status >= http.StatusInternalServerError {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	if WantsJSON(c) {
		c.AbortWithStatusJSON(status, ErrorResponse{
			Error: ErrorBody{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
		return
	}
	c.Abort()
	c.String(status, message)
}
