package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a container/key pair does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrSigningKeyUnavailable is returned when the store cannot mint signed links.
	ErrSigningKeyUnavailable = errors.New("signing key unavailable")
	// ErrInvalidKey is returned for empty keys or keys escaping their container.
	ErrInvalidKey = errors.New("invalid object key")
)

// PermissionRead is the only permission minted for download links.
const PermissionRead = "r"

// Store saves and retrieves binary objects grouped in named containers.
type Store interface {
	// Put writes r at container/key, replacing any existing object, and returns the bytes written.
	Put(ctx context.Context, container, key, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, container, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, container, key string) (bool, error)
	// SignedURL returns a read-only link to container/key valid for ttl.
	SignedURL(ctx context.Context, container, key string, ttl time.Duration) (SignedURL, error)
}

// SignedURL is a time-limited download link. It is derived on demand and never persisted.
type SignedURL struct {
	URL        string    `json:"url"`
	BlobName   string    `json:"blobName"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Permission string    `json:"permission"`
}

// CleanKey normalizes key and rejects keys that are empty or would escape the container.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	trimmed = strings.TrimLeft(trimmed, "/")
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	clean := path.Clean(trimmed)
	if clean == "." || clean == "" {
		return "", ErrInvalidKey
	}
	return clean, nil
}

// CleanContainer validates a container name.
func CleanContainer(container string) (string, error) {
	c := strings.TrimSpace(container)
	if c == "" || strings.ContainsAny(c, "/\\") || c == "." || c == ".." {
		return "", fmt.Errorf("%w: container %q", ErrInvalidKey, container)
	}
	return c, nil
}
