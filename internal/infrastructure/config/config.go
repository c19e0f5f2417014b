package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvDevelopment is the execution mode that enables request logging and
// human-readable log output.
const EnvDevelopment = "development"

// minSecretLength is the minimum length of each session signing key.
const minSecretLength = 32

// Config is the root configuration structure for valuecore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Environment string         `yaml:"environment"`
	Server      ServerConfig   `yaml:"server"`
	CORS        CORSConfig     `yaml:"cors"`
	Session     SessionConfig  `yaml:"session"`
	Database    DatabaseConfig `yaml:"database"`
	Realtime    RealtimeConfig `yaml:"realtime"`
	InfluxDB    InfluxDBConfig `yaml:"influxdb"`
	Logging     LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`

	// BodyLimit is the maximum accepted request body size in bytes for both
	// JSON and url-encoded payloads.
	BodyLimit int64 `yaml:"body_limit"`

	// PollutionWhitelist lists query parameters that may legitimately repeat.
	PollutionWhitelist []string `yaml:"pollution_whitelist"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// A single client origin is allowed, for both HTTP and socket connections.
type CORSConfig struct {
	ClientURL      string   `yaml:"client_url"`
	AllowedMethods []string `yaml:"allowed_methods"`
}

// SessionConfig contains signed session cookie settings.
type SessionConfig struct {
	Name         string `yaml:"name"`
	SecretKeyOne string `yaml:"secret_key_one"`
	SecretKeyTwo string `yaml:"secret_key_two"`
	MaxAgeHours  int    `yaml:"max_age_hours"`
	Secure       bool   `yaml:"secure"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RealtimeConfig contains socket server and fan-out broker settings.
type RealtimeConfig struct {
	// BrokerURL selects the backplane by scheme: mqtt, mqtts, tcp, ssl, nats or mem.
	BrokerURL string `yaml:"broker_url"`

	// ClientID is the base broker client identity. The publisher and subscriber
	// connections derive their identities from it.
	ClientID string `yaml:"client_id"`

	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`

	// ConnectTimeout bounds broker connection establishment in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// RequireBroker makes startup fail when the broker is unreachable.
	// When false the server runs with process-local broadcasts only.
	RequireBroker bool `yaml:"require_broker"`

	Reconnect ReconnectConfig `yaml:"reconnect"`

	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// ReconnectConfig contains broker reconnection settings in seconds.
type ReconnectConfig struct {
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
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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
		Environment: "production",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			BodyLimit: 50 << 20,
		},
		CORS: CORSConfig{
			ClientURL:      "http://localhost:3000",
			AllowedMethods: []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
		},
		Session: SessionConfig{
			Name:        "ERM-Session",
			MaxAgeHours: 24 * 7,
		},
		Database: DatabaseConfig{
			Path:        "./data/valuecore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Realtime: RealtimeConfig{
			BrokerURL:      "mqtt://localhost:1883",
			ClientID:       "valuecore",
			TopicPrefix:    "valuecore",
			QoS:            1,
			ConnectTimeout: 10,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Path:           "/socket",
			MaxMessageSize: 64 << 10,
			PingInterval:   25,
			PongTimeout:    20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VALUECORE_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VALUECORE_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("VALUECORE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VALUECORE_CLIENT_URL"); v != "" {
		cfg.CORS.ClientURL = v
	}

	// Broker - VALUECORE_REDIS_HOST is accepted for deployments that still
	// carry the old variable name; VALUECORE_BROKER_URL wins when both are set.
	if v := os.Getenv("VALUECORE_REDIS_HOST"); v != "" {
		cfg.Realtime.BrokerURL = v
	}
	if v := os.Getenv("VALUECORE_BROKER_URL"); v != "" {
		cfg.Realtime.BrokerURL = v
	}
	if v := os.Getenv("VALUECORE_BROKER_USERNAME"); v != "" {
		cfg.Realtime.Username = v
	}
	if v := os.Getenv("VALUECORE_BROKER_PASSWORD"); v != "" {
		cfg.Realtime.Password = v
	}

	// Session secrets (IMPORTANT: always set via environment in production)
	if v := os.Getenv("VALUECORE_SECRET_KEY_ONE"); v != "" {
		cfg.Session.SecretKeyOne = v
	}
	if v := os.Getenv("VALUECORE_SECRET_KEY_TWO"); v != "" {
		cfg.Session.SecretKeyTwo = v
	}

	if v := os.Getenv("VALUECORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("VALUECORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.BodyLimit <= 0 {
		errs = append(errs, "server.body_limit must be positive")
	}

	if c.CORS.ClientURL == "" {
		errs = append(errs, "cors.client_url is required (set VALUECORE_CLIENT_URL)")
	}

	if c.Session.Name == "" {
		errs = append(errs, "session.name is required")
	}
	secrets := []struct{ name, value string }{
		{"session.secret_key_one", c.Session.SecretKeyOne},
		{"session.secret_key_two", c.Session.SecretKeyTwo},
	}
	for _, s := range secrets {
		switch {
		case s.value == "":
			errs = append(errs, s.name+" is required")
		case len(s.value) < minSecretLength:
			errs = append(errs, s.name+" must be at least 32 characters")
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if err := validateBrokerURL(c.Realtime.BrokerURL); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Realtime.QoS < 0 || c.Realtime.QoS > 2 {
		errs = append(errs, "realtime.qos must be 0, 1, or 2")
	}
	if c.Realtime.ConnectTimeout <= 0 {
		errs = append(errs, "realtime.connect_timeout must be positive")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateBrokerURL checks that the broker URL parses and names a supported backplane.
func validateBrokerURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("realtime.broker_url is required (set VALUECORE_BROKER_URL)")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("realtime.broker_url is invalid: %v", err)
	}
	switch u.Scheme {
	case "mqtt", "mqtts", "tcp", "ssl", "nats", "mem":
		return nil
	default:
		return fmt.Errorf("realtime.broker_url scheme %q is not supported", u.Scheme)
	}
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// GetReadTimeout returns the HTTP read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// SessionMaxAge returns the session cookie lifetime.
func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.Session.MaxAgeHours) * time.Hour
}

// BrokerConnectTimeout returns the broker connection timeout.
func (c *Config) BrokerConnectTimeout() time.Duration {
	return time.Duration(c.Realtime.ConnectTimeout) * time.Second
}
