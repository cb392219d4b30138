package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/jimi-tracker/internal/erpnext"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/config"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/logging"
)

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// clearEnv stops the host environment leaking into config loading.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"JIMI_CONFIG", "ERP_URL", "ERP_API_KEY", "ERP_API_SECRET", "SAVE_PATH", "JIMI_ERP_URL", "JIMI_STORAGE_PATH", "JIMI_API_PORT"} {
		t.Setenv(k, "")
	}
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	clearEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, []string{"--config", "/nonexistent/path/config.yaml"}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidStorageBackend verifies validation errors stop startup.
func TestRun_InvalidStorageBackend(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  backend: postgres
`)
	t.Setenv("JIMI_CONFIG", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, nil); err == nil {
		t.Fatal("run() should fail with an unknown storage backend")
	}
}

func TestRun_BadFlag(t *testing.T) {
	if err := run(context.Background(), []string{"--no-such-flag"}); err == nil {
		t.Fatal("run() should fail on an unknown flag")
	}
}

func TestRun_Version(t *testing.T) {
	if err := run(context.Background(), []string{"--version"}); err != nil {
		t.Fatalf("run(--version) = %v", err)
	}
}

// TestRun_StartupAndShutdown runs the service with each storage backend and
// no external services, then cancels it.
func TestRun_StartupAndShutdown(t *testing.T) {
	for _, backend := range []string{config.StorageBackendJSON, config.StorageBackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			path := writeConfig(t, fmt.Sprintf(`
api:
  host: "127.0.0.1"
  port: %d
storage:
  backend: %s
  path: %q
database:
  path: %q
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: false
influxdb:
  enabled: false
logging:
  level: error
  format: text
  output: stderr
`, freePort(t), backend, filepath.Join(dir, "storage.json"), filepath.Join(dir, "jimi.db")))

			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			if err := run(ctx, []string{"-c", path}); err != nil {
				t.Fatalf("run() = %v, want nil on clean shutdown", err)
			}
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	clearEnv(t)

	if got := getConfigPath("/from/flag.yaml"); got != "/from/flag.yaml" {
		t.Errorf("flag: getConfigPath() = %q", got)
	}

	t.Setenv("JIMI_CONFIG", "/from/env.yaml")
	if got := getConfigPath(""); got != "/from/env.yaml" {
		t.Errorf("env: getConfigPath() = %q", got)
	}
	if got := getConfigPath("/from/flag.yaml"); got != "/from/flag.yaml" {
		t.Errorf("flag should beat env, got %q", got)
	}

	// configs/config.yaml does not exist relative to this package.
	t.Setenv("JIMI_CONFIG", "")
	if got := getConfigPath(""); got != "" {
		t.Errorf("no config: getConfigPath() = %q, want empty", got)
	}
}

func TestBuildSinks(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	log := logging.Discard()

	sinks, err := buildSinks(cfg, nil, nil, log)
	if err != nil {
		t.Fatalf("buildSinks: %v", err)
	}
	if len(sinks) != 0 {
		t.Errorf("default config should register no sinks, got %d", len(sinks))
	}

	cfg.ERP.URL = "https://erp.example.com"
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = []string{"127.0.0.1:9092"}
	sinks, err = buildSinks(cfg, nil, nil, log)
	if err != nil {
		t.Fatalf("buildSinks: %v", err)
	}
	var names []string
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	if len(names) != 2 || names[0] != erpnext.SinkName || names[1] != "kafka" {
		t.Errorf("sinks = %v, want [erpnext kafka]", names)
	}

	cfg.ERP.Mode = "smoke-signals"
	if _, err := buildSinks(cfg, nil, nil, log); !errors.Is(err, erpnext.ErrInvalidMode) {
		t.Errorf("invalid mode error = %v, want ErrInvalidMode", err)
	}
}

func TestHealthCheck_NothingEnabled(t *testing.T) {
	if err := healthCheck(context.Background(), nil, nil, nil); err != nil {
		t.Errorf("healthCheck() = %v, want nil", err)
	}
}
