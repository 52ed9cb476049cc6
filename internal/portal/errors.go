package portal

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"intake-portal/internal/analyses"
	"intake-portal/internal/auth"
	"intake-portal/internal/clients"
	"intake-portal/internal/docintel"
	"intake-portal/internal/files"
	"intake-portal/internal/secrets"
	"intake-portal/internal/shared/server/respond"
	"intake-portal/internal/shared/storage/object"
	"intake-portal/internal/shared/telemetry"
)

type httpError struct {
	status  int
	code    string
	message string
}

// classify maps a service error to the status, code and caller-safe message returned for it.
func classify(err error) httpError {
	var maxBytes *http.MaxBytesError
	var svcErr *docintel.ServiceError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return httpError{http.StatusUnauthorized, "unauthorized", "invalid credentials"}
	case errors.As(err, &maxBytes):
		return httpError{http.StatusRequestEntityTooLarge, "too_large", "upload too large"}
	case errors.Is(err, clients.ErrInvalidInput),
		errors.Is(err, files.ErrInvalidInput),
		errors.Is(err, analyses.ErrInvalidInput):
		return httpError{http.StatusBadRequest, "invalid_input", err.Error()}
	case errors.Is(err, clients.ErrNotFound):
		return httpError{http.StatusNotFound, "not_found", "client not found"}
	case errors.Is(err, object.ErrNotFound):
		return httpError{http.StatusNotFound, "not_found", "file not found"}
	case errors.Is(err, analyses.ErrNotFound):
		return httpError{http.StatusNotFound, "not_found", "analysis not found"}
	case errors.Is(err, analyses.ErrInvalidTransition):
		return httpError{http.StatusConflict, "invalid_transition", "analysis already finished"}
	case errors.Is(err, object.ErrSigningKeyUnavailable):
		return httpError{http.StatusServiceUnavailable, "signing_unavailable", "download links are unavailable"}
	case errors.Is(err, analyses.ErrJobQueueNotConfigured):
		return httpError{http.StatusServiceUnavailable, "queue_unavailable", "analysis is unavailable"}
	case errors.As(err, &svcErr), errors.Is(err, secrets.ErrUnavailable), errors.Is(err, secrets.ErrNotFound):
		return httpError{http.StatusBadGateway, "upstream_error", "upstream service error"}
	default:
		return httpError{http.StatusInternalServerError, "internal_error", "internal error"}
	}
}

func writeError(c *gin.Context, err error) {
	he := classify(err)
	if he.status >= http.StatusInternalServerError {
		telemetry.Error("portal.error", map[string]any{
			"path":  c.Request.URL.Path,
			"error": err,
		})
	}
	respond.Error(c, he.status, he.code, he.message, nil)
}

// jobFailure maps a failed or canceled job to a response for callers that waited on it.
func jobFailure(job analyses.Job) httpError {
	switch job.ErrorCode {
	case analyses.ErrorCodeTimeout:
		return httpError{http.StatusGatewayTimeout, "analysis_timeout", "analysis timed out"}
	case analyses.ErrorCodeUpstream:
		return httpError{http.StatusBadGateway, "upstream_error", "document analysis failed"}
	case analyses.ErrorCodeNotFound:
		return httpError{http.StatusNotFound, "not_found", "file not found"}
	case analyses.ErrorCodeCanceled:
		return httpError{http.StatusConflict, "canceled", "analysis canceled"}
	default:
		return httpError{http.StatusInternalServerError, "analysis_failed", "analysis failed"}
	}
}
