package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Fatalf("expected default max_conns 15, got %d", cfg.Postgres.MaxConns)
	}
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackd.yaml")
	data := []byte("server:\n  port: \"9090\"\ncache:\n  max_size_mb: 64\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Cache.MaxSizeMB != 64 {
		t.Fatalf("expected cache size 64, got %d", cfg.Cache.MaxSizeMB)
	}
}

func TestLoadFromEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackd.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("TRACKD_PORT", "7070")
	t.Setenv("TRACKD_OTEL_INTERVAL", "30s")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env port 7070, got %q", cfg.Server.Port)
	}
	if cfg.Telemetry.Interval != 30*time.Second {
		t.Fatalf("expected 30s interval, got %v", cfg.Telemetry.Interval)
	}
}

func TestValidateRejectsEmptyDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	path := filepath.Join(t.TempDir(), "trackd.yaml")
	if err := os.WriteFile(path, []byte("postgres:\n  dsn: \"\"\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected validation error for empty dsn")
	}
}
