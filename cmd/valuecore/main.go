// valuecore - value store API with realtime change notifications.
//
// The binary serves a REST API over a SQLite-backed value collection and
// pushes every change to WebSocket subscribers. Several instances can run
// side by side: broadcasts fan out through a shared MQTT or NATS broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/valuecore/internal/api"
	"github.com/nerrad567/valuecore/internal/infrastructure/config"
	"github.com/nerrad567/valuecore/internal/infrastructure/database"
	"github.com/nerrad567/valuecore/internal/infrastructure/influxdb"
	"github.com/nerrad567/valuecore/internal/infrastructure/logging"
	"github.com/nerrad567/valuecore/internal/value"
	"github.com/nerrad567/valuecore/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the application together and blocks until ctx is cancelled.
// Deferred cleanup runs in reverse order of startup.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting valuecore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"environment", cfg.Environment,
	)

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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	deps := api.Deps{
		Config:  cfg,
		Logger:  log,
		Values:  value.NewSQLiteRepository(db.DB),
		DB:      db,
		Version: version,
	}

	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		deps.Telemetry = influxClient
	}

	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, api.ErrBrokerRequired) {
			return fmt.Errorf("starting API server (set realtime.require_broker=false to run standalone): %w", err)
		}
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// connectInflux connects to InfluxDB when enabled. A nil client means
// telemetry is off.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // disabled is not an error
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// getConfigPath returns VALUECORE_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("VALUECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
