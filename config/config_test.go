package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("DOCSYNC_LOG_MODE", "prod")
	t.Setenv("DOCSYNC_BUSY_TIMEOUT", "3s")
	t.Setenv("DOCSYNC_REDIS_ADDR", "redis:6380")
	t.Setenv("DOCSYNC_SIM_CLIENTS", "5")
	t.Setenv("DOCSYNC_SIM_EDITS", "not-a-number")

	cfg := FromEnv(nil)
	if cfg.LogMode != "prod" {
		t.Errorf("LogMode = %q", cfg.LogMode)
	}
	if cfg.BusyTimeout.Duration != 3*time.Second {
		t.Errorf("BusyTimeout = %v", cfg.BusyTimeout)
	}
	if cfg.Redis.Addr != "redis:6380" || cfg.Redis.Channel != "docsync:changes" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Sim.Clients != 5 {
		t.Errorf("Sim.Clients = %d", cfg.Sim.Clients)
	}
	if cfg.Sim.Edits != 10 {
		t.Errorf("unparseable value should keep default, got %d", cfg.Sim.Edits)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	t.Setenv("DOCSYNC_REST_SPACE", "from-env")
	t.Setenv("DOCSYNC_REST_TOKEN", "env-token")

	path := filepath.Join(t.TempDir(), "docsync.yaml")
	content := `
busy_timeout: 250
rest:
  space: from-file
  timeout: 5s
sim:
  clients: 2
  delay: 15ms
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BusyTimeout.Duration != 250*time.Millisecond {
		t.Errorf("BusyTimeout = %v", cfg.BusyTimeout)
	}
	if cfg.REST.Space != "from-file" || cfg.REST.Token != "env-token" {
		t.Errorf("REST = %+v", cfg.REST)
	}
	if cfg.REST.Timeout.Duration != 5*time.Second {
		t.Errorf("REST.Timeout = %v", cfg.REST.Timeout)
	}
	if cfg.Sim.Clients != 2 || cfg.Sim.Edits != 10 || cfg.Sim.Delay.Duration != 15*time.Millisecond {
		t.Errorf("Sim = %+v", cfg.Sim)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml"), nil); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("busy_timeout: soon\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad, nil); err == nil {
		t.Error("expected error for bad duration")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("sim:\n  clients: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(invalid, nil); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("DOCSYNC_CONFIG", "")
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sim.Clients != 3 || cfg.BusyTimeout.Duration != 10*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadValidatesEnvironment(t *testing.T) {
	t.Setenv("DOCSYNC_CONFIG", "")
	t.Setenv("DOCSYNC_SIM_CLIENTS", "0")
	if _, err := Load("", nil); err == nil {
		t.Error("expected sim.clients=0 from the environment to be rejected")
	}
}
