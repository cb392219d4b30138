// JIMI Tracker - GPS telemetry ingestion service
//
// Receives location pushes from JIMI trackers (over HTTP, or MQTT via a
// gateway), keeps the latest point and a bounded history per device, and
// forwards each stored point to ERPNext and the optional MQTT, InfluxDB and
// Kafka sinks. A small dashboard shows live positions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/jimi-tracker/migrations"

	"github.com/nerrad567/jimi-tracker/internal/api"
	"github.com/nerrad567/jimi-tracker/internal/erpnext"
	"github.com/nerrad567/jimi-tracker/internal/forward"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/config"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/database"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/influxdb"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/logging"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/mqtt"
	"github.com/nerrad567/jimi-tracker/internal/ingest"
	"github.com/nerrad567/jimi-tracker/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when neither --config nor JIMI_CONFIG is set
// and the file exists.
const defaultConfigPath = "configs/config.yaml"

// forwardDrainTimeout bounds how long shutdown waits for queued forwards.
const forwardDrainTimeout = 20 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error { //nolint:gocognit,gocyclo // Startup sequence: each step is linear
	flags := pflag.NewFlagSet("jimitracker", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "path to config.yaml (overrides JIMI_CONFIG)")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	if *showVersion {
		fmt.Printf("jimitracker %s (%s, %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting JIMI tracker",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"storage_backend", cfg.Storage.Backend,
	)

	// Store
	backend, db, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
	}

	st, err := store.Open(ctx, backend, store.Options{
		MaxPoints: cfg.Storage.MaxPointsPerDevice,
		Logger:    log.With("component", "store"),
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()
	stats := st.Stats()
	log.Info("store loaded", "devices", stats.Devices, "points", stats.Points)

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			stats := influxClient.Stats()
			log.Info("closing InfluxDB connection", "written", stats.Written, "write_errors", stats.WriteErrors)
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
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Forwarding
	sinks, err := buildSinks(cfg, mqttClient, influxClient, log)
	if err != nil {
		return err
	}
	tracker := forward.NewSyncTracker()
	dispatcher := forward.NewDispatcher(sinks, forward.Options{
		Workers:   cfg.Forwarding.Workers,
		QueueSize: cfg.Forwarding.QueueSize,
		Timeout:   cfg.Forwarding.Timeout,
		Tracker:   tracker,
		Logger:    log.With("component", "forward"),
	})
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), forwardDrainTimeout)
		defer cancel()
		log.Info("draining forward queue", "queued", dispatcher.Stats().Queued)
		if closeErr := dispatcher.Close(drainCtx); closeErr != nil {
			log.Error("error closing forwarder", "error", closeErr)
		}
	}()

	pipeline := ingest.New(st, ingest.Options{
		Forwarder: dispatcher,
		Logger:    log.With("component", "ingest"),
	})

	// HTTP API
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Dashboard: cfg.Dashboard,
		Logger:    log.With("component", "api"),
		Store:     st,
		Pipeline:  pipeline,
		Tracker:   tracker,
		SyncSink:  erpnext.SinkName,
		Forwarder: dispatcher,
		MQTT:      mqttClient,
		DB:        db,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// MQTT ingestion shares the HTTP pipeline.
	if mqttClient != nil && cfg.MQTT.IngestTopic != "" {
		topic := cfg.MQTT.IngestTopic
		if err := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), pipeline.MessageHandler(ctx)); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		defer func() {
			if unsubErr := mqttClient.Unsubscribe(topic); unsubErr != nil && !errors.Is(unsubErr, mqtt.ErrNotConnected) {
				log.Warn("error unsubscribing", "topic", topic, "error", unsubErr)
			}
		}()
		log.Info("MQTT ingestion enabled", "topic", topic)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"sinks", len(sinks),
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: MQTT ingestion, API,
	// forward drain, InfluxDB, MQTT, store, database.
	return nil
}

// getConfigPath returns the configuration file path.
// The --config flag wins, then JIMI_CONFIG, then the default path if it
// exists. An empty result means defaults plus environment overrides.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("JIMI_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// openBackend builds the configured store backend. The database is only
// opened (and migrated) for the sqlite backend; otherwise it is nil.
func openBackend(ctx context.Context, cfg *config.Config, log *logging.Logger) (store.Backend, *database.DB, error) {
	if cfg.Storage.Backend != config.StorageBackendSQLite {
		log.Info("using JSON file store", "path", cfg.Storage.Path)
		return store.NewFileBackend(cfg.Storage.Path), nil, nil
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("using SQLite journal store", "path", cfg.Database.Path)
	return store.NewSQLiteBackend(db.DB), db, nil
}

// buildSinks assembles the forwarding targets from config. ERPNext is
// registered only when a URL is configured.
//
// Parameters:
//   - cfg: Application configuration
//   - mqttClient: Connected MQTT client, or nil when disabled
//   - influxClient: Connected InfluxDB client, or nil when disabled
//   - log: Logger instance
//
// Returns:
//   - []forward.Sink: Sinks in registration order
//   - error: If the ERP mode is invalid
func buildSinks(cfg *config.Config, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) ([]forward.Sink, error) {
	var sinks []forward.Sink

	erpClient, err := erpnext.NewClient(cfg.ERP)
	switch {
	case errors.Is(err, erpnext.ErrNotConfigured):
		log.Warn("ERP URL not configured, ERPNext forwarding disabled")
	case err != nil:
		return nil, fmt.Errorf("creating ERPNext client: %w", err)
	default:
		sink, err := erpnext.NewSink(erpClient, cfg.ERP.Mode)
		if err != nil {
			return nil, fmt.Errorf("creating ERPNext sink: %w", err)
		}
		sinks = append(sinks, sink)
		log.Info("ERPNext forwarding enabled", "url", erpClient.BaseURL(), "mode", sink.Mode())
	}

	if mqttClient != nil && cfg.MQTT.PublishState {
		sinks = append(sinks, forward.NewMQTTSink(mqttClient))
		log.Info("MQTT state publishing enabled")
	}

	if influxClient != nil {
		sinks = append(sinks, forward.NewInfluxSink(influxClient))
	}

	if cfg.Kafka.Enabled {
		sinks = append(sinks, forward.NewKafkaSink(cfg.Kafka))
		log.Info("Kafka forwarding enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	return sinks, nil
}

// healthCheck verifies the enabled infrastructure connections are healthy.
// Nil arguments are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
