package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend names.
const (
	StorageBackendJSON   = "json"
	StorageBackendSQLite = "sqlite"
)

// ERP forwarding modes.
const (
	ERPModeTelemetry = "telemetry"
	ERPModeGPSLog    = "gps_log"
)

// Config is the root configuration structure for the JIMI tracker.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Forwarding ForwardingConfig `yaml:"forwarding"`
	ERP        ERPConfig        `yaml:"erp"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the dashboard live feed.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// StorageConfig controls the device state store.
type StorageConfig struct {
	// Backend selects the durable medium: "json" (single indented document,
	// the default) or "sqlite" (per-point journal in the database below).
	Backend string `yaml:"backend"`

	// Path is the JSON document location when Backend is "json".
	Path string `yaml:"path"`

	// MaxPointsPerDevice bounds each device's log. Oldest points are dropped first.
	MaxPointsPerDevice int `yaml:"max_points_per_device"`
}

// DatabaseConfig contains SQLite database settings (used by the sqlite storage backend).
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// ForwardingConfig controls the asynchronous fan-out to external systems.
type ForwardingConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ERPConfig contains ERPNext REST API credentials.
// Forwarding to ERPNext is skipped when URL is empty.
type ERPConfig struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	Mode      string        `yaml:"mode"`
	Timeout   time.Duration `yaml:"timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// IngestTopic is subscribed to for device pushes relayed over MQTT.
	// Empty disables MQTT ingestion.
	IngestTopic string `yaml:"ingest_topic"`

	// PublishState republishes every stored point as a retained state message.
	PublishState bool `yaml:"publish_state"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

// KafkaConfig contains settings for the Kafka event stream sink.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DashboardConfig contains settings for the dashboard page.
type DashboardConfig struct {
	// TrailLength is how many recent points /api/devices returns per device.
	TrailLength int `yaml:"trail_length"`

	// Dir serves dashboard assets from disk instead of the embedded copy.
	Dir string `yaml:"dir"`
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
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern JIMI_SECTION_KEY, for example
// JIMI_STORAGE_PATH or JIMI_API_PORT. ERP_URL, ERP_API_KEY, ERP_API_SECRET
// and SAVE_PATH are honoured too, so existing deployments keep working.
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Storage: StorageConfig{
			Backend:            StorageBackendJSON,
			Path:               "storage.json",
			MaxPointsPerDevice: 1000,
		},
		Database: DatabaseConfig{
			Path:        "./data/jimi.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Forwarding: ForwardingConfig{
			Workers:   4,
			QueueSize: 256,
			Timeout:   15 * time.Second,
		},
		ERP: ERPConfig{
			Mode:    ERPModeTelemetry,
			Timeout: 15 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "jimi-tracker",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			IngestTopic:  "jimi/push/+",
			PublishState: true,
		},
		Kafka: KafkaConfig{
			Topic: "jimi.telemetry",
		},
		Dashboard: DashboardConfig{
			TrailLength: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	// Names used by the original deployment scripts.
	if v := os.Getenv("SAVE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("ERP_URL"); v != "" {
		cfg.ERP.URL = v
	}
	if v := os.Getenv("ERP_API_KEY"); v != "" {
		cfg.ERP.APIKey = v
	}
	if v := os.Getenv("ERP_API_SECRET"); v != "" {
		cfg.ERP.APISecret = v
	}

	// Storage
	if v := os.Getenv("JIMI_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("JIMI_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("JIMI_STORAGE_MAX_POINTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JIMI_STORAGE_MAX_POINTS: %w", err)
		}
		cfg.Storage.MaxPointsPerDevice = n
	}
	if v := os.Getenv("JIMI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("JIMI_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("JIMI_API_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JIMI_API_PORT: %w", err)
		}
		cfg.API.Port = n
	}

	// ERP
	if v := os.Getenv("JIMI_ERP_URL"); v != "" {
		cfg.ERP.URL = v
	}
	if v := os.Getenv("JIMI_ERP_API_KEY"); v != "" {
		cfg.ERP.APIKey = v
	}
	if v := os.Getenv("JIMI_ERP_API_SECRET"); v != "" {
		cfg.ERP.APISecret = v
	}

	// MQTT
	if v := os.Getenv("JIMI_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("JIMI_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("JIMI_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("JIMI_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("JIMI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []error

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}

	switch c.Storage.Backend {
	case StorageBackendJSON:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the json backend"))
		}
	case StorageBackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q", StorageBackendJSON, StorageBackendSQLite))
	}

	if c.Storage.MaxPointsPerDevice < 1 {
		errs = append(errs, errors.New("storage.max_points_per_device must be at least 1"))
	}

	if c.Forwarding.Workers < 1 {
		errs = append(errs, errors.New("forwarding.workers must be at least 1"))
	}
	if c.Forwarding.QueueSize < 1 {
		errs = append(errs, errors.New("forwarding.queue_size must be at least 1"))
	}

	if c.ERP.Mode != ERPModeTelemetry && c.ERP.Mode != ERPModeGPSLog {
		errs = append(errs, fmt.Errorf("erp.mode must be %q or %q", ERPModeTelemetry, ERPModeGPSLog))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, errors.New("mqtt.qos must be 0, 1, or 2"))
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.topic are required when kafka is enabled"))
	}

	if c.Dashboard.TrailLength < 1 {
		errs = append(errs, errors.New("dashboard.trail_length must be at least 1"))
	}

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return fmt.Errorf("configuration errors: %s", strings.Join(msgs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
