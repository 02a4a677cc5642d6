package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for EnOcean Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	EEP      EEPConfig      `yaml:"eep"`
	TeachIn  TeachInConfig  `yaml:"teachin"`
	Buffer   BufferConfig   `yaml:"buffer"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig contains ESP3 transceiver connection settings.
//
// Port accepts either a serial device path ("/dev/ttyUSB0") or a
// "tcp://host:port" address for network-attached transceivers.
// An empty port disables the gateway; the core then runs without hardware.
type GatewayConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for decoded-value history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// EEPConfig contains EnOcean Equipment Profile dictionary settings.
type EEPConfig struct {
	// DictionaryPath is the EEP.xml profile dictionary. Loading aborts
	// startup if the file is missing or fails validation.
	DictionaryPath string `yaml:"dictionary_path"`
}

// TeachInConfig contains teach-in session settings.
type TeachInConfig struct {
	// WindowSeconds is the default listening window for a teach-in session.
	WindowSeconds int `yaml:"window_seconds"`
}

// BufferConfig contains telegram ring buffer settings.
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ENOCEAN_SECTION_KEY
// For example: ENOCEAN_DATABASE_PATH, ENOCEAN_GATEWAY_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaudRate: 57600,
		},
		Database: DatabaseConfig{
			Path:        "./data/enocean.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "enocean-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		EEP: EEPConfig{
			DictionaryPath: "./data/EEP.xml",
		},
		TeachIn: TeachInConfig{
			WindowSeconds: 60,
		},
		Buffer: BufferConfig{
			Capacity: 200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ENOCEAN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("ENOCEAN_GATEWAY_PORT"); v != "" {
		cfg.Gateway.Port = v
	}

	// Database
	if v := os.Getenv("ENOCEAN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ENOCEAN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ENOCEAN_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("ENOCEAN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ENOCEAN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("ENOCEAN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// EEP dictionary
	if v := os.Getenv("ENOCEAN_EEP_DICTIONARY"); v != "" {
		cfg.EEP.DictionaryPath = v
	}

	// Logging
	if v := os.Getenv("ENOCEAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	// Gateway validation (port is optional; baud rate is not when serial)
	if c.Gateway.Port != "" && !strings.HasPrefix(c.Gateway.Port, "tcp://") {
		if c.Gateway.BaudRate <= 0 {
			errs = append(errs, "gateway.baud_rate must be positive for serial ports")
		}
	}

	// EEP dictionary validation
	if c.EEP.DictionaryPath == "" {
		errs = append(errs, "eep.dictionary_path is required")
	}

	// Teach-in validation
	if c.TeachIn.WindowSeconds <= 0 {
		errs = append(errs, "teachin.window_seconds must be positive")
	}

	// Buffer validation
	if c.Buffer.Capacity <= 0 {
		errs = append(errs, "buffer.capacity must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TeachInWindow returns the default teach-in window as a Duration.
func (c *Config) TeachInWindow() time.Duration {
	return time.Duration(c.TeachIn.WindowSeconds) * time.Second
}
