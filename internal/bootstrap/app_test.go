package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-portal/internal/analyses"
	localanalyzer "intake-portal/internal/docintel/local"
	"intake-portal/internal/secrets"
	"intake-portal/internal/shared/config"
	"intake-portal/internal/shared/storage/object"
)

type mapProvider map[string]string

func (m mapProvider) Get(ctx context.Context, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", secrets.ErrNotFound
	}
	return v, nil
}

type downProvider struct{}

func (downProvider) Get(ctx context.Context, name string) (string, error) {
	return "", secrets.ErrUnavailable
}

func devConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Env:                  "dev",
		Port:                 "0",
		SQLitePath:           filepath.Join(dir, "portal.db"),
		ObjectStoreType:      "local",
		LocalStoreDir:        filepath.Join(dir, "blobs"),
		PublicBaseURL:        "http://portal.test",
		IncomingContainer:    "client-uploads",
		ProcessedContainer:   "attorney-processed",
		SignedURLTTL:         time.Hour,
		SecretsProvider:      "env",
		DocIntelSecretName:   "BootstrapTestDIKeyUnset",
		StorageSecretName:    "BootstrapTestStorageUnset",
		DocIntelModel:        "prebuilt-document",
		DocIntelAPIVersion:   "2023-07-31",
		AnalysisTimeout:      time.Second,
		AnalysisPollInterval: 10 * time.Millisecond,
		AnalysisQueue:        "local",
		AnalysisWorkers:      1,
		SessionTTL:           time.Hour,
		MaxUploadBytes:       1 << 20,
		RateLimitRPS:         100,
		RateLimitBurst:       100,
	}
}

func TestBuildDevDefaults(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, devConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	assert.IsType(t, &localanalyzer.Analyzer{}, app.Analyzer)
	assert.NotNil(t, app.Pool)
	assert.Nil(t, app.Redis)
	assert.NotNil(t, app.Blobs)
	assert.Same(t, app.Pool, app.AnalysesService.Queue)

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome")
}

func TestBuildFailsInterruptedJobs(t *testing.T) {
	ctx := context.Background()
	cfg := devConfig(t)

	first, err := Build(ctx, cfg)
	require.NoError(t, err)
	c, err := first.ClientsService.Add(ctx, "Jane Doe", "CASE-1", "jane@example.com")
	require.NoError(t, err)
	require.NoError(t, first.AnalysesService.Repo.Create(ctx, analyses.Job{
		ID:        "job-1",
		ClientID:  c.ID,
		BlobName:  "1/doc.txt",
		Status:    analyses.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, first.Close(ctx))

	second, err := Build(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close(context.Background()) })

	job, err := second.AnalysesService.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, analyses.StatusFailed, job.Status)
	assert.Equal(t, analyses.ErrorCodeInternal, job.ErrorCode)
}

func TestResolveSecrets(t *testing.T) {
	ctx := context.Background()
	cfg := devConfig(t)
	cfg.DocIntelSecretName = "DIKey"
	cfg.StorageSecretName = "BlobConnectionString"

	t.Run("all present", func(t *testing.T) {
		sec, err := resolveSecrets(ctx, cfg, mapProvider{"DIKey": "k1", "BlobConnectionString": "AccountKey=abc"})
		require.NoError(t, err)
		assert.Equal(t, "k1", sec.DocIntelKey)
		assert.Equal(t, "AccountKey=abc", sec.StorageConnString)
	})

	t.Run("dev tolerates missing", func(t *testing.T) {
		sec, err := resolveSecrets(ctx, cfg, mapProvider{"DIKey": "k1"})
		require.NoError(t, err)
		assert.Equal(t, "k1", sec.DocIntelKey)
		assert.Empty(t, sec.StorageConnString)
	})

	t.Run("staging requires every secret", func(t *testing.T) {
		staging := cfg
		staging.Env = "staging"
		_, err := resolveSecrets(ctx, staging, mapProvider{"DIKey": "k1"})
		assert.True(t, errors.Is(err, secrets.ErrNotFound))
	})

	t.Run("unreachable store fails even in dev", func(t *testing.T) {
		_, err := resolveSecrets(ctx, cfg, downProvider{})
		assert.True(t, errors.Is(err, secrets.ErrUnavailable))
	})
}

func TestBuildAnalyzerRequiresKeyOutsideDev(t *testing.T) {
	cfg := devConfig(t)
	cfg.Env = "staging"
	_, err := buildAnalyzer(cfg, Secrets{})
	assert.Error(t, err)

	cfg.DocIntelEndpoint = "https://docintel.example.com"
	analyzer, err := buildAnalyzer(cfg, Secrets{DocIntelKey: "k1"})
	require.NoError(t, err)
	assert.NotNil(t, analyzer)
}

func TestBuildStoreUsesConnectionKey(t *testing.T) {
	cfg := devConfig(t)
	app := &App{Config: cfg}
	require.NoError(t, buildStore(context.Background(), app, Secrets{StorageConnString: "AccountName=dev;AccountKey=c2VjcmV0"}))
	require.NotNil(t, app.Blobs)

	link, err := app.Store.SignedURL(context.Background(), cfg.IncomingContainer, "1/doc.txt", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, link.URL, "http://portal.test/blobs/client-uploads/1/doc.txt")

	err = buildStore(context.Background(), app, Secrets{StorageConnString: "garbage"})
	assert.Error(t, err)
}

func TestBuildStoreWithoutKeyOutsideDev(t *testing.T) {
	ctx := context.Background()
	cfg := devConfig(t)
	cfg.Env = "staging"
	app := &App{Config: cfg}
	require.NoError(t, buildStore(ctx, app, Secrets{StorageConnString: "AccountName=acct;Endpoint=https://acct.example"}))

	_, err := app.Store.SignedURL(ctx, cfg.IncomingContainer, "1/doc.pdf", time.Minute)
	assert.ErrorIs(t, err, object.ErrSigningKeyUnavailable)

	dev := &App{Config: devConfig(t)}
	require.NoError(t, buildStore(ctx, dev, Secrets{}))
	_, err = dev.Store.SignedURL(ctx, cfg.IncomingContainer, "1/doc.pdf", time.Minute)
	assert.NoError(t, err)
}
