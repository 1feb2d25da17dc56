package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wunderwerk/emitter-go/internal/emitter"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/config"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/database"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/influxdb"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/logging"
	"github.com/wunderwerk/emitter-go/internal/recorder"
	"github.com/wunderwerk/emitter-go/migrations"
)

// shutdownTimeout bounds unsubscribing when the recorder stops.
const shutdownTimeout = 5 * time.Second

func (a *app) recordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Archive messages from the configured channels",
		Long: `Subscribe to every channel listed under recorder.channels and store
each received message in the SQLite database at database.path.

When influxdb.enabled is set, a point is also written per message to the
emitter_messages measurement. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.setup(cmd)
			if err != nil {
				return err
			}
			return a.record(cmd.Context(), cfg, logger)
		},
	}
}

// record runs the recorder until ctx is done.
func (a *app) record(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	if len(cfg.Recorder.Channels) == 0 {
		return fmt.Errorf("recorder.channels: %w", recorder.ErrNoChannels)
	}

	// Open database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", db.Path())

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	client, err := a.dial(cfg, log)
	if err != nil {
		return fmt.Errorf("connecting to emitter: %w", err)
	}
	defer func() {
		log.Info("disconnecting from emitter")
		closeClient(client, log)
	}()

	opts := []recorder.Option{recorder.WithLogger(log)}
	if influxClient != nil {
		opts = append(opts, recorder.WithMetrics(influxClient))
	}
	rec := recorder.New(client, recorder.NewSQLiteStore(db), cfg.Recorder.Channels, opts...)

	if err := rec.Start(ctx); err != nil {
		return err
	}

	if err := healthCheck(ctx, db, client, influxClient); err != nil {
		_ = rec.Stop(context.WithoutCancel(ctx))
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("recorder running, waiting for shutdown signal", "channels", len(cfg.Recorder.Channels))

	loopErr := ignoreCanceled(client.Loop(ctx))

	log.Info("shutting down recorder")
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := rec.Stop(stopCtx); err != nil {
		log.Warn("error stopping recorder", "error", err)
	}

	// Deferred Close() calls run in reverse order:
	// 1. emitter
	// 2. InfluxDB (if enabled)
	// 3. Database
	return loopErr
}

// healthCheck verifies the recorder's connections.
func healthCheck(ctx context.Context, db *database.DB, client *emitter.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("emitter: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
