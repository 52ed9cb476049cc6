package bootstrap

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"intake-portal/internal/analyses"
	"intake-portal/internal/auth"
	"intake-portal/internal/clients"
	"intake-portal/internal/docintel"
	"intake-portal/internal/docintel/azure"
	localanalyzer "intake-portal/internal/docintel/local"
	"intake-portal/internal/files"
	"intake-portal/internal/portal"
	"intake-portal/internal/queue"
	"intake-portal/internal/secrets"
	"intake-portal/internal/services/health"
	"intake-portal/internal/shared/config"
	"intake-portal/internal/shared/server"
	"intake-portal/internal/shared/storage/db"
	"intake-portal/internal/shared/storage/object"
	localstore "intake-portal/internal/shared/storage/object/local"
	s3store "intake-portal/internal/shared/storage/object/s3"
	"intake-portal/internal/shared/telemetry"
	"intake-portal/internal/workerproc"
)

const localQueueBuffer = 64

// App holds shared dependencies.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Store       object.Store
	Blobs       *localstore.Handler
	Analyzer    docintel.Analyzer
	Queue       queue.Client
	Pool        *queue.LocalPool
	Redis       *queue.Redis
	Tokens      *auth.TokenIssuer
	Credentials *auth.Credentials

	ClientsService  *clients.Service
	FilesService    *files.Service
	AnalysesService *analyses.Service
	PortalHandler   *portal.Handler
	AnalysisHandler *analyses.Handler

	redisClient *redis.Client
}

// Secrets are the values resolved from the secret provider at startup.
type Secrets struct {
	DocIntelKey       string
	StorageConnString string
}

// Build connects storage, resolves secrets, wires services and mounts routes. With the local
// queue the in-process worker pool is started under ctx; unfinished jobs from a previous run are
// failed first.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}

	provider, err := buildSecretsProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sec, err := resolveSecrets(ctx, cfg, provider)
	if err != nil {
		return nil, err
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB}
	if err := buildStore(ctx, app, sec); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if app.Analyzer, err = buildAnalyzer(cfg, sec); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := buildServices(app); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := buildQueue(ctx, app); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:   app.Config,
		Tokens:   app.Tokens,
		Health:   health.NewService(app.DB),
		Portal:   app.PortalHandler,
		Analyses: app.AnalysisHandler,
		Blobs:    app.Blobs,
	})

	return app, nil
}

// Close drains the local pool and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Pool != nil {
		if err := a.Pool.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close worker pool: %w", err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildSecretsProvider(ctx context.Context, cfg config.Config) (secrets.Provider, error) {
	switch cfg.SecretsProvider {
	case "keyvault":
		kv, err := secrets.NewKeyVault(ctx, secrets.KeyVaultConfig{
			VaultURL:      cfg.KeyVaultURL,
			TenantID:      cfg.AzureTenantID,
			ClientID:      cfg.AzureClientID,
			ClientSecret:  cfg.AzureClientSecret,
			AuthorityHost: cfg.AzureAuthorityHost,
		})
		if err != nil {
			return nil, fmt.Errorf("build key vault provider: %w", err)
		}
		return kv, nil
	default:
		return secrets.NewEnvProvider(), nil
	}
}

// resolveSecrets fetches the document intelligence key and the storage connection string.
// Developer environments tolerate missing secrets and fall back to local backends; anywhere else
// a missing or unreachable secret fails startup.
func resolveSecrets(ctx context.Context, cfg config.Config, p secrets.Provider) (Secrets, error) {
	values, err := secrets.Resolve(ctx, p, cfg.DocIntelSecretName, cfg.StorageSecretName)
	if err == nil {
		return Secrets{
			DocIntelKey:       values[cfg.DocIntelSecretName],
			StorageConnString: values[cfg.StorageSecretName],
		}, nil
	}
	if !cfg.IsDevLike() || !errors.Is(err, secrets.ErrNotFound) {
		return Secrets{}, err
	}

	telemetry.Warn("bootstrap.secrets.missing", map[string]any{
		"provider": cfg.SecretsProvider,
		"error":    err,
	})
	var sec Secrets
	if v, err := p.Get(ctx, cfg.DocIntelSecretName); err == nil {
		sec.DocIntelKey = v
	}
	if v, err := p.Get(ctx, cfg.StorageSecretName); err == nil {
		sec.StorageConnString = v
	}
	return sec, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	target := db.Target{DatabaseURL: cfg.DatabaseURL, SQLitePath: cfg.SQLitePath}
	sqlDB, err := db.Open(ctx, target, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB, target.Dialect()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, app *App, sec Secrets) error {
	var info object.ConnectionInfo
	if strings.TrimSpace(sec.StorageConnString) != "" {
		parsed, err := object.ParseConnectionString(sec.StorageConnString)
		if err != nil {
			return err
		}
		info = parsed
	}

	switch app.Config.ObjectStoreType {
	case "s3":
		store, err := s3store.New(ctx, s3store.OptionsFromConnection(info, app.Config.S3Region, app.Config.S3Prefix))
		if err != nil {
			return err
		}
		app.Store = store
	default:
		key := []byte(info.AccountKey)
		switch {
		case len(key) > 0:
		case app.Config.IsDevLike():
			var err error
			if key, err = randomKey(); err != nil {
				return err
			}
			telemetry.Warn("bootstrap.store.ephemeral_signing_key", map[string]any{
				"dir": app.Config.LocalStoreDir,
			})
		default:
			telemetry.Warn("bootstrap.store.signing_disabled", map[string]any{
				"dir": app.Config.LocalStoreDir,
			})
		}
		store := localstore.New(app.Config.LocalStoreDir, app.Config.PublicBaseURL, key)
		app.Store = store
		app.Blobs = &localstore.Handler{Store: store}
	}
	return nil
}

func buildAnalyzer(cfg config.Config, sec Secrets) (docintel.Analyzer, error) {
	if strings.TrimSpace(cfg.DocIntelEndpoint) == "" || strings.TrimSpace(sec.DocIntelKey) == "" {
		if !cfg.IsDevLike() {
			return nil, errors.New("DOCINTEL_ENDPOINT and the document intelligence key are required")
		}
		telemetry.Warn("bootstrap.docintel.local", map[string]any{"endpoint_set": cfg.DocIntelEndpoint != ""})
		return localanalyzer.New(), nil
	}
	client, err := azure.New(azure.Config{
		Endpoint:          cfg.DocIntelEndpoint,
		APIKey:            sec.DocIntelKey,
		Model:             cfg.DocIntelModel,
		APIVersion:        cfg.DocIntelAPIVersion,
		RequestsPerSecond: cfg.DocIntelRPS,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func buildServices(app *App) error {
	cfg := app.Config

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		telemetry.Warn("bootstrap.session.ephemeral_secret", nil)
	}
	app.Tokens = tokens
	app.Credentials = auth.NewCredentials(cfg.AttorneyPassword, cfg.ClientPassword)

	app.ClientsService = &clients.Service{Repo: &clients.SQLRepo{DB: app.DB}}
	app.FilesService = &files.Service{
		Repo:      &files.SQLRepo{DB: app.DB},
		Clients:   app.ClientsService,
		Store:     app.Store,
		Container: cfg.IncomingContainer,
		LinkTTL:   cfg.SignedURLTTL,
	}
	app.AnalysesService = &analyses.Service{
		Repo:               &analyses.SQLRepo{DB: app.DB},
		Clients:            app.ClientsService,
		Store:              app.Store,
		Analyzer:           app.Analyzer,
		IncomingContainer:  cfg.IncomingContainer,
		ProcessedContainer: cfg.ProcessedContainer,
		Timeout:            cfg.AnalysisTimeout,
		PollInterval:       cfg.AnalysisPollInterval,
	}

	app.PortalHandler = &portal.Handler{
		Credentials:  app.Credentials,
		Tokens:       app.Tokens,
		Clients:      app.ClientsService,
		Files:        app.FilesService,
		Analyses:     app.AnalysesService,
		WaitTimeout:  cfg.AnalysisTimeout + cfg.AnalysisPollInterval,
		SecureCookie: !cfg.IsDevLike(),
	}
	app.AnalysisHandler = &analyses.Handler{Svc: app.AnalysesService}
	return nil
}

// buildQueue attaches the analysis queue. The local pool runs jobs in this process; the redis
// queue only enqueues here and is drained by cmd/worker.
func buildQueue(ctx context.Context, app *App) error {
	switch app.Config.AnalysisQueue {
	case "redis":
		app.redisClient = redis.NewClient(&redis.Options{
			Addr:     app.Config.RedisAddr,
			Password: app.Config.RedisPassword,
			DB:       app.Config.RedisDB,
		})
		if err := app.redisClient.Ping(ctx).Err(); err != nil {
			_ = app.redisClient.Close()
			return fmt.Errorf("redis ping addr=%s: %w", app.Config.RedisAddr, err)
		}
		app.Redis = queue.NewRedis(app.redisClient, queue.DefaultRedisKey)
		app.Queue = app.Redis
	default:
		n, err := app.AnalysesService.FailUnfinished(ctx)
		if err != nil {
			return fmt.Errorf("fail unfinished analyses: %w", err)
		}
		if n > 0 {
			telemetry.Warn("bootstrap.analyses.interrupted", map[string]any{"count": n})
		}
		app.Pool = queue.NewLocalPool(app.Config.AnalysisWorkers, localQueueBuffer, workerproc.Handler(app.AnalysesService))
		app.Pool.Start(context.WithoutCancel(ctx))
		app.Queue = app.Pool
	}
	app.AnalysesService.Queue = app.Queue
	return nil
}

func randomKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return key, nil
}
