package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/Keekuk/notesnook/internal/auth"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// writeConfig writes a minimal config into a temp dir and returns its path.
func writeConfig(t *testing.T, extra string) (configPath, dataDir string) {
	t.Helper()

	dataDir = t.TempDir()
	configPath = filepath.Join(dataDir, "config.yaml")

	content := fmt.Sprintf(`
database:
  path: %q
  busy_timeout: 1
  delete_retry_delay: 10ms

vault:
  path: %q

logging:
  level: error
  format: text
  output: discard
%s`, filepath.Join(dataDir, "notes.db"), filepath.Join(dataDir, "notes.vault"), extra)

	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath, dataDir
}

func TestParseFlags(t *testing.T) {
	t.Setenv("NOTESNOOK_CONFIG", "")

	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{"defaults", nil, options{configPath: defaultConfigPath}, false},
		{"long config", []string{"--config", "/etc/nn.yaml"}, options{configPath: "/etc/nn.yaml"}, false},
		{"short config", []string{"-c", "nn.yaml"}, options{configPath: "nn.yaml"}, false},
		{"version", []string{"-v"}, options{configPath: defaultConfigPath, showVersion: true}, false},
		{"issue token", []string{"--issue-token"}, options{configPath: defaultConfigPath, issueToken: true}, false},
		{"delete", []string{"--delete-database"}, options{configPath: defaultConfigPath, deleteDatabase: true}, false},
		{"unknown flag", []string{"--bogus"}, options{}, true},
		{"positional", []string{"serve"}, options{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseFlags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGetConfigPath_Env(t *testing.T) {
	t.Setenv("NOTESNOOK_CONFIG", "/tmp/custom.yaml")

	if got := getConfigPath(); got != "/tmp/custom.yaml" {
		t.Errorf("getConfigPath() = %q, want /tmp/custom.yaml", got)
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer

	if err := run(context.Background(), []string{"--version"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "notesnookd "+version) {
		t.Errorf("output = %q, want version line", out.String())
	}
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer

	err := run(context.Background(), []string{"--help"}, &out)
	if !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("run() error = %v, want pflag.ErrHelp", err)
	}
	if !strings.Contains(out.String(), "--config") {
		t.Errorf("usage output missing --config: %q", out.String())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	err := run(context.Background(), []string{"--config", "/nonexistent/path/config.yaml"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	configPath, _ := writeConfig(t, `
api:
  port: 0
`)

	err := run(context.Background(), []string{"--config", configPath}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "api.port") {
		t.Fatalf("run() error = %v, want api.port validation failure", err)
	}
}

func TestRun_IssueToken(t *testing.T) {
	configPath, _ := writeConfig(t, "")

	t.Run("without secret", func(t *testing.T) {
		t.Setenv("NOTESNOOK_JWT_SECRET", "")
		err := run(context.Background(), []string{"--config", configPath, "--issue-token"}, &bytes.Buffer{})
		if err == nil {
			t.Fatal("run(--issue-token) should fail without a secret")
		}
	})

	t.Run("with secret", func(t *testing.T) {
		t.Setenv("NOTESNOOK_JWT_SECRET", testSecret)
		var out bytes.Buffer
		if err := run(context.Background(), []string{"--config", configPath, "--issue-token"}, &out); err != nil {
			t.Fatalf("run(--issue-token) error = %v", err)
		}
		claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
		if err != nil {
			t.Fatalf("ParseToken() error = %v", err)
		}
		if claims.Subject != "local" {
			t.Errorf("Subject = %q, want local", claims.Subject)
		}
	})
}

func TestRun_DeleteDatabase(t *testing.T) {
	configPath, dataDir := writeConfig(t, "")
	dbPath := filepath.Join(dataDir, "notes.db")

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", p, err)
		}
	}

	if err := run(context.Background(), []string{"--config", configPath, "--delete-database"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("run(--delete-database) error = %v", err)
	}

	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Errorf("database file still exists: %v", err)
	}
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRun_ServeLockedUntilShutdown(t *testing.T) {
	port := freePort(t)
	configPath, _ := writeConfig(t, fmt.Sprintf(`
api:
  host: "127.0.0.1"
  port: %d
`, port))
	t.Setenv("NOTESNOOK_VAULT_ENABLED", "true")
	t.Setenv("NOTESNOOK_VAULT_PASSPHRASE", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--config", configPath}, &bytes.Buffer{})
	}()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(healthURL)
		if err == nil {
			var health struct {
				Status string `json:"status"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&health)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK || decodeErr != nil {
				t.Errorf("health status = %d, decode error = %v", resp.StatusCode, decodeErr)
			}
			if health.Status != "locked" {
				t.Errorf("health status field = %q, want locked before unlock", health.Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
