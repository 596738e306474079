// Package cli defines the cobra command tree for homecarectl.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/pkordes/homecare/internal/config"
)

var (
	flagFormat      string
	flagDatabaseURL string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "homecarectl",
		Short:         "Operate the home-care visit service",
		Long:          "Apply database migrations, manage the service catalog, enrol workers, and quote visit amounts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "Postgres DSN (default: $DATABASE_URL)")

	root.AddCommand(
		newMigrateCmd(),
		newServiceCmd(),
		newWorkerCmd(),
		newQuoteCmd(),
	)

	return root
}

// openPool connects to the database named by --database-url or DATABASE_URL.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := flagDatabaseURL
	if dsn == "" {
		var err error
		if dsn, err = config.DatabaseURL(); err != nil {
			return nil, err
		}
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatCents renders an amount in cents as a decimal string.
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
