package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/phrazzld/taskstate/internal/config"
	"github.com/phrazzld/taskstate/internal/platform/postgres"
	"github.com/phrazzld/taskstate/internal/redact"
	"github.com/phrazzld/taskstate/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "taskctl - operational CLI for the taskstate service",
	Long: `taskctl manages persisted task records.

Scheduling is external: run 'taskctl cleanup' from cron or a job queue's
periodic actor. Cleanup only targets complete records, so it is safe to
run concurrently with live traffic.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newClearCmd())
}

// openStore connects to the database from the standard configuration and
// returns the task store plus a closer for the underlying pool.
func openStore(ctx context.Context) (store.TaskStore, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %s", redact.Error(err))
	}

	return postgres.NewPostgresTaskStore(db), func() { _ = db.Close() }, nil
}
