package local

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"intake-portal/internal/shared/server/respond"
	"intake-portal/internal/shared/storage/object"
	"intake-portal/internal/shared/telemetry"
)

// Handler serves objects for signed links minted by Store.SignedURL.
type Handler struct {
	Store *Store
}

// RegisterRoutes wires GET /blobs/:container/*key.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/blobs/:container/*key", h.serve)
}

func (h *Handler) serve(c *gin.Context) {
	container := c.Param("container")
	key := strings.TrimPrefix(c.Param("key"), "/")

	err := h.Store.Verify(container, key, c.Query("se"), c.Query("sp"), c.Query("sig"))
	switch {
	case err == nil:
	case errors.Is(err, ErrSignatureExpired):
		respond.Error(c, http.StatusForbidden, "link_expired", "link expired", nil)
		return
	case errors.Is(err, object.ErrSigningKeyUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, "signing_unavailable", "signing key unavailable", nil)
		return
	default:
		respond.Error(c, http.StatusForbidden, "forbidden", "invalid signature", nil)
		return
	}

	rc, err := h.Store.Open(c.Request.Context(), container, key)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "blob not found", nil)
			return
		}
		telemetry.Error("blobs.open.failed", map[string]any{
			"container": container,
			"key":       key,
			"error":     err,
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}
	defer rc.Close()

	contentType := h.Store.ContentType(container, key)
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))
	c.Header("Cache-Control", "private, no-store")
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		telemetry.Warn("blobs.stream.failed", map[string]any{"key": key, "error": err})
	}
}
