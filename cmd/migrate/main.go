package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"log"
	"os"

	"intake-portal/internal/shared/config"
	"intake-portal/internal/shared/storage/db"
	"intake-portal/internal/shared/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	telemetry.Init(cfg.LogLevel, cfg.LogFormat)
	defer telemetry.Sync()
	ctx := context.Background()

	target := db.Target{DatabaseURL: cfg.DatabaseURL, SQLitePath: cfg.SQLitePath}
	sqlDB, err := db.Open(ctx, target, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		telemetry.Sync()
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB, target.Dialect()); err != nil {
		log.Printf("failed to run migrations: %v", err)
		telemetry.Sync()
		os.Exit(1)
	}
	telemetry.Info("migrate.done", map[string]any{"dialect": string(target.Dialect())})
}
