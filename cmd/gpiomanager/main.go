// GpioManager Server
//
// Remote control and monitoring for GPIO components on a single board.
// Clients connect over a WebSocket channel; every request is validated
// against a session token and, when enabled, encrypted with a hybrid
// RSA/AES scheme negotiated at login.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lukakralj/GpioManager-Server/migrations"

	"github.com/lukakralj/GpioManager-Server/internal/auth"
	"github.com/lukakralj/GpioManager-Server/internal/components"
	"github.com/lukakralj/GpioManager-Server/internal/console"
	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/config"
	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/database"
	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/influxdb"
	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/logging"
	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/mqtt"
	"github.com/lukakralj/GpioManager-Server/internal/secure"
	"github.com/lukakralj/GpioManager-Server/internal/socket"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context, shutdown context.CancelFunc) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting GpioManager server",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and bring the schema up to date
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Credential records; seed the admin account on first boot
	users := auth.NewUserRepository(db.DB)
	if _, err := auth.SeedAdmin(ctx, users, log); err != nil {
		return fmt.Errorf("seeding admin user: %w", err)
	}

	// Session tokens: in-memory cache with asynchronous persistence
	tokens := auth.NewTokenStore(auth.NewTokenRepository(db.DB), log, auth.StoreOptions{
		Validity:  cfg.Security.TokenValidity(),
		QueueSize: cfg.Security.Tokens.QueueSize,
	})
	tokens.LoadFromStore(ctx)
	defer func() {
		log.Info("flushing session store")
		tokens.Close()
	}()

	// Per-process RSA keypair for the hybrid handshake
	keys, err := secure.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generating server keypair: %w", err)
	}
	log.Info("server keypair generated", "encryption", cfg.Security.Encryption.Mode)

	// Optional telemetry sink for input component readings
	var influxClient *influxdb.Client
	var telemetry components.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Component registry backed by the sysfs GPIO driver
	registry := components.NewRegistry(
		components.NewSQLiteRepository(db.DB),
		components.NewSysfsDriver(cfg.Components.GPIORoot),
		cfg.Components.HardwareDeadline(),
	)
	registry.SetLogger(log)
	if err := registry.LoadComponents(ctx); err != nil {
		return fmt.Errorf("loading components: %w", err)
	}
	defer func() {
		log.Info("releasing GPIO pins")
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		registry.Shutdown(releaseCtx)
	}()
	log.Info("component registry initialised", "components", registry.Count())

	// Optional MQTT mirror for change events
	var mqttClient *mqtt.Client
	var publisher socket.EventPublisher
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
		mqttClient.SetLogger(log)
		publisher = mqttClient
		log.Info("MQTT connected", "broker", cfg.MQTT.BrokerURL(), "topic", cfg.MQTT.Topic)
	} else {
		log.Info("MQTT disabled")
	}

	// Socket server
	srv, err := socket.New(socket.Deps{
		Config:     cfg.Server,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Tokens:     tokens,
		Users:      users,
		Components: registry,
		Keys:       keys,
		Publisher:  publisher,
	})
	if err != nil {
		return fmt.Errorf("creating socket server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting socket server: %w", err)
	}
	defer func() {
		log.Info("stopping socket server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing socket server", "error", closeErr)
		}
	}()

	// Input poller: change detection drives room broadcasts and telemetry
	poller := components.NewPoller(registry, cfg.Components.PollEvery(), srv.BroadcastChange, telemetry)
	poller.SetLogger(log)
	go poller.Run(ctx)
	log.Info("input poller started", "interval", cfg.Components.PollEvery())

	// Operator console on stdin
	cli := console.New(os.Stdin, os.Stdout, log)
	cli.RegisterStop(shutdown)
	cli.RegisterComponentInspector(registry)
	cli.RegisterTokenInspector(tokens)
	cli.RegisterUserSetup(users)
	go func() {
		if err := cli.Run(ctx); err != nil {
			log.Error("console stopped", "error", err)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// socket server, MQTT, GPIO pins, InfluxDB, session store, database.

	log.Info("GpioManager server stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GPIOMANAGER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GPIOMANAGER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections after startup.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
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
