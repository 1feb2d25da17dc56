package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wunderwerk/emitter-go/internal/infrastructure/database"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/logging"
	"github.com/wunderwerk/emitter-go/migrations"
)

func (a *app) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the recorder database schema",
		Long: `Apply, roll back or list the schema migrations of the SQLite
database at database.path. "emitterctl record" applies pending
migrations on start, so "migrate up" is only needed to prepare a
database ahead of time.`,
	}

	cmd.AddCommand(
		a.migrateStep("up", "Apply all pending migrations", func(ctx context.Context, db *database.DB, log *logging.Logger, _ io.Writer) error {
			if err := db.Migrate(ctx, migrations.FS); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			log.Info("database migrations complete", "path", db.Path())
			return nil
		}),
		a.migrateStep("down", "Roll back the most recent migration", func(ctx context.Context, db *database.DB, log *logging.Logger, _ io.Writer) error {
			if err := db.MigrateDown(ctx, migrations.FS); err != nil {
				return fmt.Errorf("rolling back migration: %w", err)
			}
			log.Info("database migration rolled back", "path", db.Path())
			return nil
		}),
		a.migrateStep("status", "List applied and pending migrations", func(ctx context.Context, db *database.DB, _ *logging.Logger, out io.Writer) error {
			applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
			if err != nil {
				return fmt.Errorf("reading migration status: %w", err)
			}
			for _, r := range applied {
				fmt.Fprintf(out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			for _, m := range pending {
				fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
			}
			return nil
		}),
	)
	return cmd
}

// migrateStep builds a migrate subcommand that runs fn against the
// configured database.
func (a *app) migrateStep(use, short string, fn func(context.Context, *database.DB, *logging.Logger, io.Writer) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := a.setup(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := database.Open(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() {
				if closeErr := db.Close(); closeErr != nil {
					log.Error("error closing database", "error", closeErr)
				}
			}()

			return fn(ctx, db, log, cmd.OutOrStdout())
		},
	}
}
