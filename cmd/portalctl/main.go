// Package main implements portalctl, an operator CLI that works directly against the portal
// database.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"intake-portal/internal/shared/config"
	"intake-portal/internal/shared/storage/db"
	"intake-portal/internal/shared/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	json bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "portalctl",
		Short: "Operator commands for the intake portal",
		Long: `portalctl reads and edits the portal database directly, using the same
configuration as the API server (DATABASE_URL or SQLITE_PATH).

Examples:
  # Register a client
  portalctl clients add --name "Jane Doe" --case-id CASE-1 --email jane@example.com

  # Inspect an analysis job
  portalctl analyses get 3f6c1c2e-5d0b-4a43-9a8e-0d6f0f1c2b7a --json`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Output results as JSON")

	root.AddCommand(newClientsCmd(opts))
	root.AddCommand(newFilesCmd(opts))
	root.AddCommand(newAnalysesCmd(opts))
	return root
}

// openDB loads configuration and opens the migrated database.
func openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	telemetry.Init("warn", "console")

	target := db.Target{DatabaseURL: cfg.DatabaseURL, SQLitePath: cfg.SQLitePath}
	sqlDB, err := db.Open(ctx, target, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.RunMigrations(ctx, sqlDB, target.Dialect()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
