package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	testSecretOne = "test-secret-key-one-at-least-32-chars"
	testSecretTwo = "test-secret-key-two-at-least-32-chars"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
environment: "development"
server:
  port: 5050
  body_limit: 1024
cors:
  client_url: "http://localhost:3000"
session:
  secret_key_one: "` + testSecretOne + `"
  secret_key_two: "` + testSecretTwo + `"
database:
  path: "/tmp/test.db"
realtime:
  broker_url: "mqtt://broker.local:1883"
  qos: 1
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.IsDevelopment() {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.Server.Port != 5050 {
		t.Errorf("Server.Port = %d, want 5050", cfg.Server.Port)
	}
	if cfg.Server.BodyLimit != 1024 {
		t.Errorf("Server.BodyLimit = %d, want 1024", cfg.Server.BodyLimit)
	}
	if cfg.Realtime.BrokerURL != "mqtt://broker.local:1883" {
		t.Errorf("Realtime.BrokerURL = %q", cfg.Realtime.BrokerURL)
	}
	// Defaults survive for keys the file does not set.
	if cfg.Session.Name != "ERM-Session" {
		t.Errorf("Session.Name = %q, want ERM-Session", cfg.Session.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
server:
  port: 5000
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for missing secrets, got nil")
	}
	if !strings.Contains(err.Error(), "session.secret_key_one is required") {
		t.Errorf("error = %v, want mention of secret_key_one", err)
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Session.SecretKeyOne = testSecretOne
	cfg.Session.SecretKeyTwo = testSecretTwo
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing environment", mutate: func(c *Config) { c.Environment = "" }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "zero body limit", mutate: func(c *Config) { c.Server.BodyLimit = 0 }, wantErr: true},
		{name: "missing client url", mutate: func(c *Config) { c.CORS.ClientURL = "" }, wantErr: true},
		{name: "missing secret one", mutate: func(c *Config) { c.Session.SecretKeyOne = "" }, wantErr: true},
		{name: "short secret two", mutate: func(c *Config) { c.Session.SecretKeyTwo = "short" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "missing broker url", mutate: func(c *Config) { c.Realtime.BrokerURL = "" }, wantErr: true},
		{name: "unsupported broker scheme", mutate: func(c *Config) { c.Realtime.BrokerURL = "redis://localhost:6379" }, wantErr: true},
		{name: "nats broker", mutate: func(c *Config) { c.Realtime.BrokerURL = "nats://localhost:4222" }},
		{name: "in-memory broker", mutate: func(c *Config) { c.Realtime.BrokerURL = "mem://local" }},
		{name: "invalid QoS", mutate: func(c *Config) { c.Realtime.QoS = 3 }, wantErr: true},
		{name: "zero connect timeout", mutate: func(c *Config) { c.Realtime.ConnectTimeout = 0 }, wantErr: true},
		{
			name: "influx enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Timeouts: ServerTimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
		Session:  SessionConfig{MaxAgeHours: 168},
		Realtime: RealtimeConfig{ConnectTimeout: 7},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.SessionMaxAge().Hours(); got != 168 {
		t.Errorf("SessionMaxAge() = %v hours, want 168", got)
	}
	if got := cfg.BrokerConnectTimeout().Seconds(); got != 7 {
		t.Errorf("BrokerConnectTimeout() = %v, want 7", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("VALUECORE_ENV", "development")
	t.Setenv("VALUECORE_PORT", "6000")
	t.Setenv("VALUECORE_CLIENT_URL", "https://app.example.com")
	t.Setenv("VALUECORE_REDIS_HOST", "mqtt://legacy:1883")
	t.Setenv("VALUECORE_BROKER_URL", "nats://nats.example.com:4222")
	t.Setenv("VALUECORE_SECRET_KEY_ONE", "one")
	t.Setenv("VALUECORE_SECRET_KEY_TWO", "two")
	t.Setenv("VALUECORE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("VALUECORE_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.CORS.ClientURL != "https://app.example.com" {
		t.Errorf("CORS.ClientURL = %q", cfg.CORS.ClientURL)
	}
	if cfg.Realtime.BrokerURL != "nats://nats.example.com:4222" {
		t.Errorf("Realtime.BrokerURL = %q, want the VALUECORE_BROKER_URL value", cfg.Realtime.BrokerURL)
	}
	if cfg.Session.SecretKeyOne != "one" || cfg.Session.SecretKeyTwo != "two" {
		t.Errorf("session secrets not overridden: %q %q", cfg.Session.SecretKeyOne, cfg.Session.SecretKeyTwo)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("VALUECORE_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want default 5000", cfg.Server.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 5000 {
		t.Errorf("defaultConfig Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.BodyLimit != 50<<20 {
		t.Errorf("defaultConfig Server.BodyLimit = %d, want 50 MiB", cfg.Server.BodyLimit)
	}
	want := "GET,HEAD,PUT,PATCH,POST,DELETE"
	if got := strings.Join(cfg.CORS.AllowedMethods, ","); got != want {
		t.Errorf("defaultConfig CORS.AllowedMethods = %q, want %q", got, want)
	}
	if cfg.IsDevelopment() {
		t.Error("defaultConfig should not be in development mode")
	}
}
