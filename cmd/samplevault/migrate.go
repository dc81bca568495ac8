package main

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"samplevault/internal/config"
	"samplevault/internal/store"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

func newMigrateCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	var plan bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if plan {
				db, err := openRawDB(cfg)
				if err != nil {
					return err
				}
				defer db.Close()
				return writeMigrationStatus(db, *structuredOutput)
			}

			st, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer st.Close()

			if *structuredOutput {
				return writeMigrationStatus(st.DB(), true)
			}
			return writePlain("Migrations applied successfully.\n")
		},
	}

	cmd.Flags().BoolVar(&plan, "plan", false, "show pending migrations without applying them")

	return cmd
}

func writeMigrationStatus(db *sql.DB, structuredOutput bool) error {
	status, err := store.MigrationPlan(db)
	if err != nil {
		return fmt.Errorf("inspect migrations: %w", err)
	}
	if structuredOutput {
		return writeStructured(status)
	}

	if err := writePlain("Current version: %d\nAvailable version: %d\n", status.CurrentVersion, status.AvailableVersion); err != nil {
		return err
	}
	if len(status.Pending) == 0 {
		return writePlain("No pending migrations.\n")
	}
	if err := writePlain("Pending migrations: %d\n", len(status.Pending)); err != nil {
		return err
	}
	for _, m := range status.Pending {
		if err := writePlain("  %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}

// openRawDB opens the configured database without running migrations.
func openRawDB(cfg *config.Config) (*sql.DB, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBDriver)) {
	case store.DriverPostgres, "pgx":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("database_url is required for postgres")
		}
		return sql.Open("pgx", cfg.DatabaseURL)
	default:
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("db path is required")
		}
		u := url.URL{Scheme: "file", Path: cfg.DBPath}
		return sql.Open("sqlite", u.String())
	}
}
