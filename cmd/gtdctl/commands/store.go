// Package commands holds the gtdctl subcommands.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/config"
	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/logger"
)

// cliLogger returns a console logger honouring the persistent --debug flag.
// Logging is off unless --debug is set.
func cliLogger(cmd *cobra.Command) *zap.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	if !debug {
		return zap.NewNop()
	}
	l, err := logger.NewConsoleLogger(true)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// withStore connects to the configured database, runs fn and closes the connection
func withStore(ctx context.Context, fn func(db *database.DB, repos *database.Repositories) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return fn(db, database.NewRepositories(db))
}
