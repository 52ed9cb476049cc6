package local

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"intake-portal/internal/shared/storage/object"
)

var (
	// ErrSignatureInvalid is returned when a link's signature does not match.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrSignatureExpired is returned when a link is used after its expiry.
	ErrSignatureExpired = errors.New("signature expired")
)

// typesDir holds the content type of each object, mirroring the container layout.
const typesDir = ".content-types"

// Store implements object.Store on the local filesystem, one directory per container.
// Signed links point at the /blobs route and carry an HMAC-SHA256 signature.
type Store struct {
	baseDir    string
	publicBase string
	signingKey []byte
	now        func() time.Time
}

// New creates a local object store rooted at baseDir. publicBaseURL prefixes signed links.
// An empty signingKey disables SignedURL.
func New(baseDir, publicBaseURL string, signingKey []byte) *Store {
	return &Store{
		baseDir:    baseDir,
		publicBase: strings.TrimRight(publicBaseURL, "/"),
		signingKey: signingKey,
		now:        time.Now,
	}
}

// Put writes the reader to disk at container/key, replacing any existing file.
func (s *Store) Put(ctx context.Context, container, key, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullPath, err := s.resolve(container, key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}

	// Write to a temp file first so readers never observe a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	written, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("write body: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close temp file: %w", closeErr)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("rename: %w", err)
	}
	if err := s.writeContentType(container, key, contentType); err != nil {
		return written, err
	}
	return written, nil
}

// ContentType returns the type recorded by Put, or "" when none was given.
func (s *Store) ContentType(container, key string) string {
	p, err := s.typePath(container, key)
	if err != nil {
		return ""
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (s *Store) writeContentType(container, key, contentType string) error {
	p, err := s.typePath(container, key)
	if err != nil {
		return err
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove content type: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(p, []byte(contentType), 0o644); err != nil {
		return fmt.Errorf("write content type: %w", err)
	}
	return nil
}

func (s *Store) typePath(container, key string) (string, error) {
	c, k, err := clean(container, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, typesDir, c, filepath.FromSlash(k)), nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, container, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(container, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s/%s: %w", container, key, object.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Exists reports whether container/key is a stored file.
func (s *Store) Exists(ctx context.Context, container, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fullPath, err := s.resolve(container, key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// SignedURL returns a read-only /blobs link for container/key that expires after ttl.
func (s *Store) SignedURL(ctx context.Context, container, key string, ttl time.Duration) (object.SignedURL, error) {
	if err := ctx.Err(); err != nil {
		return object.SignedURL{}, err
	}
	if len(s.signingKey) == 0 {
		return object.SignedURL{}, object.ErrSigningKeyUnavailable
	}
	c, err := object.CleanContainer(container)
	if err != nil {
		return object.SignedURL{}, err
	}
	k, err := object.CleanKey(key)
	if err != nil {
		return object.SignedURL{}, err
	}

	expiresAt := s.now().Add(ttl).UTC().Truncate(time.Second)
	expiry := strconv.FormatInt(expiresAt.Unix(), 10)

	q := url.Values{}
	q.Set("se", expiry)
	q.Set("sp", object.PermissionRead)
	q.Set("sig", s.sign(c, k, expiry, object.PermissionRead))

	return object.SignedURL{
		URL:        s.publicBase + "/blobs/" + url.PathEscape(c) + "/" + escapeKey(k) + "?" + q.Encode(),
		BlobName:   k,
		ExpiresAt:  expiresAt,
		Permission: object.PermissionRead,
	}, nil
}

// Verify checks a signed link's query parameters for container/key.
func (s *Store) Verify(container, key, expiry, permission, signature string) error {
	if len(s.signingKey) == 0 {
		return object.ErrSigningKeyUnavailable
	}
	if permission != object.PermissionRead {
		return ErrSignatureInvalid
	}
	c, err := object.CleanContainer(container)
	if err != nil {
		return ErrSignatureInvalid
	}
	k, err := object.CleanKey(key)
	if err != nil {
		return ErrSignatureInvalid
	}
	expected := s.sign(c, k, expiry, permission)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	unix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	if s.now().Unix() > unix {
		return ErrSignatureExpired
	}
	return nil
}

func (s *Store) sign(container, key, expiry, permission string) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(permission + "\n" + container + "\n" + key + "\n" + expiry))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Store) resolve(container, key string) (string, error) {
	c, k, err := clean(container, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, c, filepath.FromSlash(k)), nil
}

// clean validates container and key. Dot-prefixed containers are reserved for store metadata.
func clean(container, key string) (string, string, error) {
	c, err := object.CleanContainer(container)
	if err != nil {
		return "", "", err
	}
	if strings.HasPrefix(c, ".") {
		return "", "", fmt.Errorf("%w: container %q", object.ErrInvalidKey, container)
	}
	k, err := object.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return c, k, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ object.Store = (*Store)(nil)
