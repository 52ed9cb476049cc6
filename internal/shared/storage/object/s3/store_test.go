package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"intake-portal/internal/shared/storage/object"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "7/doc.pdf", want: "7/doc.pdf"},
		{name: "simple prefix", prefix: "portal", key: "7/doc.pdf", want: "portal/7/doc.pdf"},
		{name: "prefix trailing slash", prefix: "portal/", key: "7/doc.pdf", want: "portal/7/doc.pdf"},
		{name: "prefix and key slashes", prefix: "/portal/", key: "/7/doc.pdf", want: "portal/7/doc.pdf"},
		{name: "processed summary", prefix: "portal", key: "processed/7/doc.pdf.json", want: "portal/processed/7/doc.pdf.json"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func newTestStore(t *testing.T, endpoint string) *Store {
	t.Helper()
	store, err := New(context.Background(), Options{
		Region:    "us-east-1",
		Endpoint:  endpoint,
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestSignedURLPresignsReadOnlyGet(t *testing.T) {
	store := newTestStore(t, "http://minio.local:9000")

	link, err := store.SignedURL(context.Background(), "client-uploads", "7/doc.pdf", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	u, err := url.Parse(link.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Path != "/client-uploads/7/doc.pdf" {
		t.Fatalf("expected path-style url, got %s", u.Path)
	}
	if got := u.Query().Get("X-Amz-Expires"); got != "3600" {
		t.Fatalf("expected X-Amz-Expires=3600, got %q", got)
	}
	if u.Query().Get("X-Amz-Signature") == "" {
		t.Fatalf("expected signature in %s", link.URL)
	}
	if link.Permission != object.PermissionRead {
		t.Fatalf("expected read permission, got %q", link.Permission)
	}
	if d := time.Until(link.ExpiresAt); d < 59*time.Minute || d > time.Hour {
		t.Fatalf("expected expiry about one hour out, got %s", d)
	}
}

func TestSignedURLWithoutCredentials(t *testing.T) {
	store := &Store{canSign: false}
	_, err := store.SignedURL(context.Background(), "client-uploads", "7/doc.pdf", time.Hour)
	if !errors.Is(err, object.ErrSigningKeyUnavailable) {
		t.Fatalf("expected ErrSigningKeyUnavailable, got %v", err)
	}
}

func TestExistsMapsHeadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/7/doc.pdf") {
			w.Header().Set("Content-Length", "4")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := newTestStore(t, srv.URL)

	ok, err := store.Exists(context.Background(), "client-uploads", "7/doc.pdf")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Fatalf("expected object to exist")
	}

	ok, err = store.Exists(context.Background(), "client-uploads", "7/missing.pdf")
	if err != nil {
		t.Fatalf("Exists missing: %v", err)
	}
	if ok {
		t.Fatalf("expected missing object")
	}
}

func TestPutCountsBytesAndSkipsSSEForCustomEndpoint(t *testing.T) {
	store := newTestStore(t, "http://minio.local:9000")
	var got *s3.PutObjectInput
	store.putObject = func(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		got = in
		if _, err := io.Copy(io.Discard, in.Body); err != nil {
			return nil, err
		}
		return &s3.PutObjectOutput{}, nil
	}

	n, err := store.Put(context.Background(), "attorney-processed", "processed/7/doc.pdf.json", "application/json", strings.NewReader(`{"text":""}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != int64(len(`{"text":""}`)) {
		t.Fatalf("unexpected size %d", n)
	}
	if aws.ToString(got.Bucket) != "attorney-processed" || aws.ToString(got.Key) != "processed/7/doc.pdf.json" {
		t.Fatalf("unexpected target %s/%s", aws.ToString(got.Bucket), aws.ToString(got.Key))
	}
	if got.ServerSideEncryption != "" {
		t.Fatalf("expected no SSE for custom endpoint, got %s", got.ServerSideEncryption)
	}
}

func TestMapNotFound(t *testing.T) {
	if err := mapNotFound(&s3types.NoSuchKey{}); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for NoSuchKey, got %v", err)
	}
	other := errors.New("boom")
	if err := mapNotFound(other); err != other {
		t.Fatalf("expected passthrough, got %v", err)
	}
}
