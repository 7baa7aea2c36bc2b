package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ledger_go/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
app:
  name: "ledger"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Engine.IntervalMS != 5000 {
		t.Errorf("Expected default interval 5000, got %d", cfg.Engine.IntervalMS)
	}
	if cfg.Engine.HistoryCap != 500 {
		t.Errorf("Expected default history cap 500, got %d", cfg.Engine.HistoryCap)
	}
	if cfg.Wallet.CacheTTLMS != 8000 {
		t.Errorf("Expected default cache TTL 8000, got %d", cfg.Wallet.CacheTTLMS)
	}
	if cfg.Broadcast.ListenAddr != ":8090" {
		t.Errorf("Expected default broadcast addr :8090, got %s", cfg.Broadcast.ListenAddr)
	}
}

func TestLoadConfig_RejectsSmallHistoryCap(t *testing.T) {
	path := writeConfig(t, `
engine:
  history_cap: 10
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("Expected validation error for history cap below minimum")
	}
}

func TestLoadConfig_RejectsBadDriftSpeed(t *testing.T) {
	path := writeConfig(t, `
assets:
  - code: "MOON"
    name: "Moonshot"
    drift_speed: "1.5"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("Expected validation error for drift speed above 1")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Fatalf("Expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("LEDGER_DB_PATH", "/tmp/override.db")
	path := writeConfig(t, `
storage:
  path: "ignored.db"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Storage.Path != "/tmp/override.db" {
		t.Errorf("Expected env override to win, got %s", cfg.Storage.Path)
	}
}
