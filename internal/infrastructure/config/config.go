package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the GpioManager server.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Database   DatabaseConfig   `yaml:"database"`
	Security   SecurityConfig   `yaml:"security"`
	Components ComponentsConfig `yaml:"components"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
}

// ServerTimeoutConfig contains HTTP server timeouts in seconds.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket connection settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBufferSize int    `yaml:"send_buffer_size"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// SecurityConfig contains session and transport-encryption settings.
type SecurityConfig struct {
	Encryption EncryptionConfig `yaml:"encryption"`
	Tokens     TokenConfig      `yaml:"tokens"`
}

// Transport-encryption modes. When the tunnel already provides channel
// confidentiality (TLS), payload encryption can be switched off entirely.
const (
	EncryptionOff    = "off"
	EncryptionHybrid = "hybrid"
)

// EncryptionConfig selects the payload-encryption policy for the socket
// channel: "off", or "hybrid" (RSA login handshake, AES-CBC bulk stream).
type EncryptionConfig struct {
	Mode string `yaml:"mode"`
}

// TokenConfig contains access-token lifecycle settings.
type TokenConfig struct {
	// ValidityDays is the sliding expiry window for access tokens.
	ValidityDays int `yaml:"validity_days"`
	// QueueSize bounds the asynchronous persistence work queue.
	QueueSize int `yaml:"queue_size"`
}

// ComponentsConfig contains GPIO component settings.
type ComponentsConfig struct {
	// PollInterval is how often input components are sampled (seconds).
	PollInterval int `yaml:"poll_interval"`
	// HardwareTimeout bounds a single pin read/write (milliseconds).
	HardwareTimeout int `yaml:"hardware_timeout"`
	// GPIORoot is the sysfs GPIO mount point.
	GPIORoot string `yaml:"gpio_root"`
}

// MQTTConfig contains optional MQTT broker settings for change events.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
	Topic    string `yaml:"topic"`
}

// InfluxDBConfig contains optional time-series database settings for
// sensor telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// Loading order: defaults, then file values, then GPIOMANAGER_* environment
// variables. The result is validated before being returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 16384,
			PingInterval:   30,
			PongTimeout:    10,
			SendBufferSize: 64,
		},
		Database: DatabaseConfig{
			Path:        "./data/gpiomanager.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Security: SecurityConfig{
			Encryption: EncryptionConfig{
				Mode: EncryptionOff,
			},
			Tokens: TokenConfig{
				ValidityDays: 10,
				QueueSize:    256,
			},
		},
		Components: ComponentsConfig{
			PollInterval:    5,
			HardwareTimeout: 2000,
			GPIORoot:        "/sys/class/gpio",
		},
		MQTT: MQTTConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "gpiomanager",
			QoS:      1,
			Topic:    "gpiomanager/events/components",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "gpiomanager",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GPIOMANAGER_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GPIOMANAGER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("GPIOMANAGER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GPIOMANAGER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GPIOMANAGER_ENCRYPTION_MODE"); v != "" {
		cfg.Security.Encryption.Mode = v
	}
	if v := os.Getenv("GPIOMANAGER_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("GPIOMANAGER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("GPIOMANAGER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("GPIOMANAGER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("GPIOMANAGER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	switch c.Security.Encryption.Mode {
	case EncryptionOff, EncryptionHybrid:
	default:
		errs = append(errs, fmt.Sprintf("security.encryption.mode must be %q or %q", EncryptionOff, EncryptionHybrid))
	}

	if c.Security.Tokens.ValidityDays < 1 {
		errs = append(errs, "security.tokens.validity_days must be at least 1")
	}

	if c.Components.PollInterval < 1 {
		errs = append(errs, "components.poll_interval must be at least 1 second")
	}
	if c.Components.HardwareTimeout < 1 {
		errs = append(errs, "components.hardware_timeout must be at least 1 millisecond")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set GPIOMANAGER_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TokenValidity returns the configured token validity window as a Duration.
func (c *SecurityConfig) TokenValidity() time.Duration {
	return time.Duration(c.Tokens.ValidityDays) * 24 * time.Hour
}

// PollEvery returns the component poll interval as a Duration.
func (c *ComponentsConfig) PollEvery() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// HardwareDeadline returns the per-operation hardware timeout as a Duration.
func (c *ComponentsConfig) HardwareDeadline() time.Duration {
	return time.Duration(c.HardwareTimeout) * time.Millisecond
}

// BrokerURL returns the MQTT broker URL.
func (c *MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}
