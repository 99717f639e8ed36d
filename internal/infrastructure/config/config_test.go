package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"
  extension_dir: "/usr/lib/notesnook"
  busy_timeout: 3
  unsafe: true
  delete_retry_delay: 250ms
vault:
  enabled: true
  path: "/tmp/test.vault"
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "127.0.0.1"
  port: 9090
  cors:
    allowed_origins: ["http://localhost:3000"]
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Database.ExtensionDir != "/usr/lib/notesnook" {
		t.Errorf("Database.ExtensionDir = %q", cfg.Database.ExtensionDir)
	}
	if !cfg.Database.Unsafe {
		t.Error("Database.Unsafe = false, want true")
	}
	if cfg.Database.DeleteRetryDelay != 250*time.Millisecond {
		t.Errorf("Database.DeleteRetryDelay = %v, want 250ms", cfg.Database.DeleteRetryDelay)
	}
	if !cfg.Vault.Enabled || cfg.Vault.Path != "/tmp/test.vault" {
		t.Errorf("Vault = %+v", cfg.Vault)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if len(cfg.API.CORS.AllowedOrigins) != 1 {
		t.Errorf("API.CORS.AllowedOrigins = %v", cfg.API.CORS.AllowedOrigins)
	}
	if !cfg.AuthEnabled() {
		t.Error("AuthEnabled() = false with a secret configured")
	}

	// Defaults survive for keys the file does not set
	if cfg.MQTT.TopicPrefix != "notesnook" {
		t.Errorf("MQTT.TopicPrefix = %q, want default", cfg.MQTT.TopicPrefix)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: ""
api:
  port: 0
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"database.path", "api.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err.Error(), want)
		}
	}
}

func TestLoad_PassphraseNotReadFromFile(t *testing.T) {
	configPath := writeConfig(t, `
vault:
  enabled: true
  passphrase: "in-the-file"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Vault.Passphrase != "" {
		t.Errorf("Vault.Passphrase = %q, want it ignored in the file", cfg.Vault.Passphrase)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "no JWT secret disables auth",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "negative busy timeout",
			mutate:  func(c *Config) { c.Database.BusyTimeout = -1 },
			wantErr: true,
		},
		{
			name:    "negative delete retry delay",
			mutate:  func(c *Config) { c.Database.DeleteRetryDelay = -time.Second },
			wantErr: true,
		},
		{
			name: "vault enabled without path",
			mutate: func(c *Config) {
				c.Vault.Enabled = true
				c.Vault.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name: "mqtt enabled without host",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker.Host = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero websocket ping interval",
			mutate:  func(c *Config) { c.WebSocket.PingInterval = 0 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
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
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("NOTESNOOK_DATABASE_PATH", "/custom/path.db")
	t.Setenv("NOTESNOOK_DATABASE_BUSY_TIMEOUT", "9")
	t.Setenv("NOTESNOOK_DATABASE_DELETE_RETRY_DELAY", "2s")
	t.Setenv("NOTESNOOK_VAULT_PASSPHRASE", "correct horse")
	t.Setenv("NOTESNOOK_MQTT_HOST", "mqtt.example.com")
	t.Setenv("NOTESNOOK_MQTT_USERNAME", "testuser")
	t.Setenv("NOTESNOOK_MQTT_PASSWORD", "testpass")
	t.Setenv("NOTESNOOK_API_HOST", "192.168.1.1")
	t.Setenv("NOTESNOOK_API_CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("NOTESNOOK_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("NOTESNOOK_JWT_SECRET", "jwt-secret")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"Database.BusyTimeout", cfg.Database.BusyTimeout, 9},
		{"Database.DeleteRetryDelay", cfg.Database.DeleteRetryDelay, 2 * time.Second},
		{"Vault.Passphrase", cfg.Vault.Passphrase, "correct horse"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.CORS.AllowedOrigins", len(cfg.API.CORS.AllowedOrigins), 2},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
		{"API.Port untouched", cfg.API.Port, 8686},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestApplyEnvOverrides_InvalidValue(t *testing.T) {
	t.Setenv("NOTESNOOK_API_PORT", "not-a-number")

	if err := applyEnvOverrides(defaultConfig()); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.Database.DeleteRetryDelay != 500*time.Millisecond {
		t.Errorf("defaultConfig Database.DeleteRetryDelay = %v, want 500ms", cfg.Database.DeleteRetryDelay)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("defaultConfig API.Host = %q, want loopback", cfg.API.Host)
	}
	if cfg.AuthEnabled() {
		t.Error("defaultConfig should not enable token auth")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(configs/config.yaml) error = %v", err)
	}

	def := defaultConfig()
	if cfg.Database != def.Database {
		t.Errorf("shipped database section = %+v, want defaults %+v", cfg.Database, def.Database)
	}
	if cfg.API.Port != def.API.Port || cfg.WebSocket != def.WebSocket {
		t.Errorf("shipped api/websocket sections drifted from defaults")
	}
	if cfg.Vault.Enabled || cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("shipped config should leave optional integrations disabled")
	}
}
