package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Env             string `validate:"oneof=dev local staging production"`
	Port            string `validate:"required"`
	LogLevel        string
	LogFormat       string
	CORSAllowOrigin []string

	DatabaseURL string
	SQLitePath  string `validate:"required_without=DatabaseURL"`

	ObjectStoreType    string `validate:"oneof=local s3"`
	LocalStoreDir      string `validate:"required_if=ObjectStoreType local"`
	PublicBaseURL      string `validate:"omitempty,url"`
	IncomingContainer  string `validate:"required"`
	ProcessedContainer string `validate:"required,nefield=IncomingContainer"`
	S3Region           string
	S3Prefix           string
	SignedURLTTL       time.Duration `validate:"gt=0"`

	SecretsProvider    string `validate:"oneof=env keyvault"`
	KeyVaultURL        string `validate:"required_if=SecretsProvider keyvault,omitempty,url"`
	AzureTenantID      string `validate:"required_if=SecretsProvider keyvault"`
	AzureClientID      string `validate:"required_if=SecretsProvider keyvault"`
	AzureClientSecret  string `validate:"required_if=SecretsProvider keyvault"`
	AzureAuthorityHost string `validate:"omitempty,url"`
	DocIntelSecretName string `validate:"required"`
	StorageSecretName  string `validate:"required"`

	DocIntelEndpoint   string `validate:"omitempty,url"`
	DocIntelModel      string `validate:"required"`
	DocIntelAPIVersion string `validate:"required"`
	DocIntelRPS        float64

	AnalysisTimeout      time.Duration `validate:"gt=0"`
	AnalysisPollInterval time.Duration `validate:"gt=0"`
	AnalysisQueue        string        `validate:"oneof=local redis"`
	AnalysisWorkers      int           `validate:"gte=1"`
	RedisAddr            string        `validate:"required_if=AnalysisQueue redis"`
	RedisPassword        string
	RedisDB              int

	AttorneyPassword string
	ClientPassword   string
	JWTSecret        string
	SessionTTL       time.Duration `validate:"gt=0"`

	MaxUploadBytes int64 `validate:"gt=0"`
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from an optional .env file, environment variables and defaults, in
// increasing order of precedence: defaults, .env, environment.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return Config{}, fmt.Errorf("read .env: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg := Config{
		Env:             normalizeEnv(v.GetString("ENV")),
		Port:            v.GetString("PORT"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFormat:       v.GetString("LOG_FORMAT"),
		CORSAllowOrigin: splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),

		DatabaseURL: strings.TrimSpace(v.GetString("DATABASE_URL")),
		SQLitePath:  v.GetString("SQLITE_PATH"),

		ObjectStoreType:    normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:      v.GetString("LOCAL_STORE_DIR"),
		PublicBaseURL:      strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		IncomingContainer:  v.GetString("INCOMING_CONTAINER"),
		ProcessedContainer: v.GetString("PROCESSED_CONTAINER"),
		S3Region:           v.GetString("S3_REGION"),
		S3Prefix:           v.GetString("S3_PREFIX"),
		SignedURLTTL:       v.GetDuration("SIGNED_URL_TTL"),

		SecretsProvider:    strings.ToLower(strings.TrimSpace(v.GetString("SECRETS_PROVIDER"))),
		KeyVaultURL:        v.GetString("KEYVAULT_URL"),
		AzureTenantID:      v.GetString("AZURE_TENANT_ID"),
		AzureClientID:      v.GetString("AZURE_CLIENT_ID"),
		AzureClientSecret:  v.GetString("AZURE_CLIENT_SECRET"),
		AzureAuthorityHost: v.GetString("AZURE_AUTHORITY_HOST"),
		DocIntelSecretName: v.GetString("DOCINTEL_SECRET_NAME"),
		StorageSecretName:  v.GetString("STORAGE_SECRET_NAME"),

		DocIntelEndpoint:   strings.TrimRight(v.GetString("DOCINTEL_ENDPOINT"), "/"),
		DocIntelModel:      v.GetString("DOCINTEL_MODEL"),
		DocIntelAPIVersion: v.GetString("DOCINTEL_API_VERSION"),
		DocIntelRPS:        v.GetFloat64("DOCINTEL_RPS"),

		AnalysisTimeout:      v.GetDuration("ANALYSIS_TIMEOUT"),
		AnalysisPollInterval: v.GetDuration("ANALYSIS_POLL_INTERVAL"),
		AnalysisQueue:        strings.ToLower(strings.TrimSpace(v.GetString("ANALYSIS_QUEUE"))),
		AnalysisWorkers:      v.GetInt("ANALYSIS_WORKERS"),
		RedisAddr:            v.GetString("REDIS_ADDR"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		RedisDB:              v.GetInt("REDIS_DB"),

		AttorneyPassword: v.GetString("ATTORNEY_PASS"),
		ClientPassword:   v.GetString("CLIENT_PASS"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		SessionTTL:       v.GetDuration("SESSION_TTL"),

		MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints plus the production-only rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Env == "production" {
		switch {
		case c.AttorneyPassword == "" || c.ClientPassword == "":
			return errors.New("invalid config: ATTORNEY_PASS and CLIENT_PASS are required in production")
		case c.JWTSecret == "":
			return errors.New("invalid config: JWT_SECRET is required in production")
		case c.SecretsProvider != "keyvault":
			return errors.New("invalid config: SECRETS_PROVIDER=keyvault is required in production")
		}
	}
	return nil
}

// IsDevLike reports whether the environment is a developer environment.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("CORS_ALLOW_ORIGINS", "http://localhost:5173")
	v.SetDefault("SQLITE_PATH", "crm.db")
	v.SetDefault("OBJECT_STORE", "local")
	v.SetDefault("LOCAL_STORE_DIR", "./data")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("INCOMING_CONTAINER", "client-uploads")
	v.SetDefault("PROCESSED_CONTAINER", "attorney-processed")
	v.SetDefault("SIGNED_URL_TTL", time.Hour)
	v.SetDefault("SECRETS_PROVIDER", "env")
	v.SetDefault("AZURE_AUTHORITY_HOST", "https://login.microsoftonline.com")
	v.SetDefault("DOCINTEL_SECRET_NAME", "DIKey")
	v.SetDefault("STORAGE_SECRET_NAME", "BlobConnectionString")
	v.SetDefault("DOCINTEL_MODEL", "prebuilt-document")
	v.SetDefault("DOCINTEL_API_VERSION", "2023-07-31")
	v.SetDefault("DOCINTEL_RPS", 1.0)
	v.SetDefault("ANALYSIS_TIMEOUT", 2*time.Minute)
	v.SetDefault("ANALYSIS_POLL_INTERVAL", time.Second)
	v.SetDefault("ANALYSIS_QUEUE", "local")
	v.SetDefault("ANALYSIS_WORKERS", 2)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_TTL", 8*time.Hour)
	v.SetDefault("MAX_UPLOAD_BYTES", int64(20<<20))
	v.SetDefault("RATE_LIMIT_RPS", 5.0)
	v.SetDefault("RATE_LIMIT_BURST", 10)
}

func isMissingFile(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such file") || strings.Contains(msg, "cannot find the file")
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
