package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for emitterctl.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Emitter  EmitterConfig  `yaml:"emitter"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Recorder RecorderConfig `yaml:"recorder"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains the connection settings for the emitter broker.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains emitter broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT credentials.
//
// Emitter ignores the password but reports the username to presence
// subscribers as who.username.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	MaxDelay int `yaml:"max_delay"`
}

// EmitterConfig contains settings for the emitter request layer.
type EmitterConfig struct {
	// KeygenTimeout bounds how long a keygen or me request waits for the
	// server's reply (seconds).
	KeygenTimeout int `yaml:"keygen_timeout"`

	// LoopInterval is the tick between loop handler invocations (milliseconds).
	LoopInterval int `yaml:"loop_interval"`
}

// DatabaseConfig contains SQLite settings for the message recorder.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RecorderConfig lists the channels archived by `emitterctl record`.
type RecorderConfig struct {
	Channels []RecorderChannel `yaml:"channels"`
}

// RecorderChannel is a single channel subscription for the recorder.
type RecorderChannel struct {
	Key     string `yaml:"key"`
	Channel string `yaml:"channel"`

	// Last asks the server to replay this many stored messages on subscribe.
	Last *int `yaml:"last,omitempty"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// clientIDPrefix prefixes generated client identifiers.
const clientIDPrefix = "emitterctl-"

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty;
//     keys that match no setting are rejected
//  3. Variables from a .env file in the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: EMITTER_KEY
// For example: EMITTER_HOST, EMITTER_PORT, EMITTER_USERNAME
//
// A client ID is generated when none is configured, so that several
// emitterctl processes can share one config file without kicking each other
// off the broker.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Unknown keys are errors so a misspelt or retired setting is not
		// silently ignored.
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// A missing .env is the normal case.
	_ = godotenv.Load() //nolint:errcheck // Optional file

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = clientIDPrefix + uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 8080,
			},
			Reconnect: MQTTReconnectConfig{
				MaxDelay: 60,
			},
		},
		Emitter: EmitterConfig{
			KeygenTimeout: 10,
			LoopInterval:  100,
		},
		Database: DatabaseConfig{
			Path:        "./data/emitter.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("EMITTER_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("EMITTER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EMITTER_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("EMITTER_TLS"); v != "" {
		tls, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EMITTER_TLS: %w", err)
		}
		cfg.MQTT.Broker.TLS = tls
	}
	if v := os.Getenv("EMITTER_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("EMITTER_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("EMITTER_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("EMITTER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("EMITTER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("EMITTER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	// Emitter validation
	if c.Emitter.KeygenTimeout <= 0 {
		errs = append(errs, "emitter.keygen_timeout must be positive")
	}
	if c.Emitter.LoopInterval <= 0 {
		errs = append(errs, "emitter.loop_interval must be positive")
	}

	// Recorder validation
	for i, ch := range c.Recorder.Channels {
		if ch.Channel == "" {
			errs = append(errs, fmt.Sprintf("recorder.channels[%d].channel is required", i))
		}
		if ch.Last != nil && *ch.Last < 0 {
			errs = append(errs, fmt.Sprintf("recorder.channels[%d].last must not be negative", i))
		}
	}
	if len(c.Recorder.Channels) > 0 && c.Database.Path == "" {
		errs = append(errs, "database.path is required when recorder channels are configured")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetKeygenTimeout returns the request timeout as a Duration.
func (c *Config) GetKeygenTimeout() time.Duration {
	return time.Duration(c.Emitter.KeygenTimeout) * time.Second
}

// GetLoopInterval returns the loop tick as a Duration.
func (c *Config) GetLoopInterval() time.Duration {
	return time.Duration(c.Emitter.LoopInterval) * time.Millisecond
}
