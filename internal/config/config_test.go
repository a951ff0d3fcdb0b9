package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hampager/pagegate/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault_Validates(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nosuch.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 43434 {
		t.Errorf("gateway port: want 43434, got %d", cfg.Gateway.Port)
	}
	if !cfg.Beacon.Enabled {
		t.Error("beacon should default to enabled")
	}
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  port: 7000
beacon:
  interval: 45m
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 7000 {
		t.Errorf("gateway port: want 7000, got %d", cfg.Gateway.Port)
	}
	if cfg.Beacon.Interval != "45m" {
		t.Errorf("beacon interval: want 45m, got %s", cfg.Beacon.Interval)
	}
	// Untouched values keep their defaults.
	if cfg.HTTP.Port != 8080 {
		t.Errorf("http port: want default 8080, got %d", cfg.HTTP.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PAGEGATE_AUTH_API_KEY", "sekrit")
	t.Setenv("PAGEGATE_PORT", "9090")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "nosuch.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "sekrit" {
		t.Errorf("auth: want enabled with key sekrit, got %+v", cfg.Auth)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("http port: want 9090, got %d", cfg.HTTP.Port)
	}
}

func TestValidate_RejectsPortClash(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Port = cfg.Gateway.Port
	if err := cfg.Validate(); err == nil {
		t.Error("identical gateway and http ports accepted")
	}
}

func TestValidate_RejectsBadBurst(t *testing.T) {
	cfg := config.Default()
	cfg.Producers.Burst = cfg.Producers.MaxRate - 1
	if err := cfg.Validate(); err == nil {
		t.Error("burst below max_rate accepted")
	}
}

func TestBeacon_ParseIntervalFloor(t *testing.T) {
	b := config.BeaconConfig{Interval: "10s"}
	if _, err := b.ParseInterval(); err == nil {
		t.Error("sub-minute interval accepted")
	}

	b.Interval = "20m"
	d, err := b.ParseInterval()
	if err != nil {
		t.Fatalf("ParseInterval: %v", err)
	}
	if d != 20*time.Minute {
		t.Errorf("interval: want 20m, got %s", d)
	}
}

func TestGateway_ParseHandshakeTimeout(t *testing.T) {
	g := config.GatewayConfig{HandshakeTimeout: "30s"}
	d, err := g.ParseHandshakeTimeout()
	if err != nil {
		t.Fatalf("ParseHandshakeTimeout: %v", err)
	}
	if d != 30*time.Second {
		t.Errorf("timeout: want 30s, got %s", d)
	}

	g.HandshakeTimeout = "soon"
	if _, err := g.ParseHandshakeTimeout(); err == nil {
		t.Error("unparseable timeout accepted")
	}
}
