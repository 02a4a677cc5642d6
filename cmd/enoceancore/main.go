// EnOcean Core - wireless telegram to typed-value bridge
//
// EnOcean Core connects an ESP3 transceiver to an MQTT broker: received
// radio telegrams are decoded against the EEP profile dictionary and
// published as typed JSON state, and typed commands are encoded back
// into telegrams for bidirectional devices. Pairing runs over the
// MQTT teach-in command surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/ESDN83/enocean-mqtt-core/migrations"

	"github.com/ESDN83/enocean-mqtt-core/internal/bridge"
	"github.com/ESDN83/enocean-mqtt-core/internal/device"
	"github.com/ESDN83/enocean-mqtt-core/internal/eep"
	"github.com/ESDN83/enocean-mqtt-core/internal/enocean"
	"github.com/ESDN83/enocean-mqtt-core/internal/gateway"
	"github.com/ESDN83/enocean-mqtt-core/internal/infrastructure/config"
	"github.com/ESDN83/enocean-mqtt-core/internal/infrastructure/database"
	"github.com/ESDN83/enocean-mqtt-core/internal/infrastructure/influxdb"
	"github.com/ESDN83/enocean-mqtt-core/internal/infrastructure/logging"
	"github.com/ESDN83/enocean-mqtt-core/internal/infrastructure/mqtt"
	"github.com/ESDN83/enocean-mqtt-core/internal/teachin"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting EnOcean Core",
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

	// Open database and apply migrations
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Load the EEP profile dictionary
	store, err := eep.LoadFile(cfg.EEP.DictionaryPath)
	if err != nil {
		return fmt.Errorf("loading EEP dictionary: %w", err)
	}
	store.SetLogger(log)
	log.Info("EEP dictionary loaded",
		"path", cfg.EEP.DictionaryPath,
		"profiles", store.Len(),
	)

	// Override engine on top of the dictionary
	engine := eep.NewEngine(store, eep.NewSQLiteOverrideRepository(db.DB))
	engine.SetLogger(log)
	if refreshErr := engine.Refresh(ctx); refreshErr != nil {
		return fmt.Errorf("loading profile overrides: %w", refreshErr)
	}

	// Device registry and state cache
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	defer func() {
		// Push any state writes that failed while running
		registry.FlushDirty(context.Background())
	}()
	log.Info("device registry initialised", "devices", registry.Count())

	// Teach-in machine
	machine := teachin.NewMachine(store, registry)
	machine.SetLogger(log)

	// Telegram ring buffer
	buffer := enocean.NewBuffer(cfg.Buffer.Capacity)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var history bridge.History
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
		history = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to the transceiver (optional; UI-only deployments run
	// without hardware)
	var gw bridge.Gateway
	if cfg.Gateway.Port != "" {
		client, gwErr := gateway.Open(ctx, gateway.Config{
			Address:  cfg.Gateway.Port,
			BaudRate: cfg.Gateway.BaudRate,
		})
		if gwErr != nil {
			return fmt.Errorf("opening transceiver: %w", gwErr)
		}
		client.SetLogger(log)
		defer func() {
			log.Info("closing transceiver")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing transceiver", "error", closeErr)
			}
		}()
		gw = client
		log.Info("transceiver connected", "port", cfg.Gateway.Port)
	} else {
		log.Info("transceiver disabled, running without radio")
	}

	// Assemble and start the pipeline
	core, err := bridge.New(bridge.Config{
		Gateway:       gw,
		Registry:      registry,
		Engine:        engine,
		Machine:       machine,
		Buffer:        buffer,
		Broker:        mqttClient,
		History:       history,
		QoS:           byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		TeachInWindow: cfg.TeachInWindow(),
	})
	if err != nil {
		return fmt.Errorf("assembling bridge: %w", err)
	}
	core.SetLogger(log)

	if err := core.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer core.Close()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ENOCEAN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ENOCEAN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
