package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-portal/internal/analyses"
	"intake-portal/internal/auth"
	"intake-portal/internal/shared/config"
	"intake-portal/internal/shared/storage/db/dbtest"
	localstore "intake-portal/internal/shared/storage/object/local"
)

func newTestRouter(t *testing.T) (http.Handler, *auth.TokenIssuer, *localstore.Store) {
	t.Helper()
	tokens, err := auth.NewTokenIssuer("router-secret", time.Hour)
	require.NoError(t, err)
	store := localstore.New(t.TempDir(), "http://portal.test", []byte("signing-key"))
	r := NewRouter(RouterDeps{
		Config: config.Config{RateLimitRPS: 100, RateLimitBurst: 100, MaxUploadBytes: 1 << 20},
		Tokens: tokens,
		Analyses: &analyses.Handler{Svc: &analyses.Service{
			Repo: &analyses.SQLRepo{DB: dbtest.Open(t)},
		}},
		Blobs: &localstore.Handler{Store: store},
	})
	return r, tokens, store
}

func TestHealthzAndMetrics(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "intake_portal_uploads_total")
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestAnalysisRoutesRequireAttorneySession(t *testing.T) {
	r, tokens, _ := newTestRouter(t)
	path := "/attorney/analyses/00000000-0000-0000-0000-000000000000"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := tokens.Issue(auth.RoleAttorney)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignedBlobLinks(t *testing.T) {
	r, _, store := newTestRouter(t)
	ctx := context.Background()
	_, err := store.Put(ctx, "client-uploads", "1/doc.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	link, err := store.SignedURL(ctx, "client-uploads", "1/doc.txt", time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(link.URL)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())

	q := u.Query()
	q.Set("sig", strings.Repeat("0", len(q.Get("sig"))))
	u.RawQuery = q.Encode()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAddr(t *testing.T) {
	assert.Equal(t, ":8080", Addr(""))
	assert.Equal(t, ":9000", Addr("9000"))
	assert.Equal(t, ":9000", Addr(":9000"))
}
