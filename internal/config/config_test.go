package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("PORT", "")
	content := `
port: 9000
schedule: "@every 30s"
fetch_timeout: 3s
sources:
  - id: NIFTY-50
    url: https://example.com/nifty
  - id: SENSEX
    url: https://example.com/sensex
redis:
  addr: localhost:6379
  ttl: 2m
kafka:
  brokers: ["localhost:9092"]
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.Schedule != "@every 30s" {
		t.Errorf("expected schedule '@every 30s', got %q", cfg.Schedule)
	}
	if cfg.FetchTimeout != 3*time.Second {
		t.Errorf("expected fetch timeout 3s, got %s", cfg.FetchTimeout)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[1].ID != "SENSEX" {
		t.Fatalf("unexpected sources: %+v", cfg.Sources)
	}
	if cfg.Redis == nil || cfg.Redis.TTL != 2*time.Minute {
		t.Errorf("expected redis ttl 2m, got %+v", cfg.Redis)
	}
	if cfg.Kafka == nil || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("unexpected kafka config: %+v", cfg.Kafka)
	}
	if cfg.Alerts != nil {
		t.Error("expected alerts to be disabled")
	}
	if got := cfg.CORS.AllowedOrigins; len(got) != 1 || got[0] != "*" {
		t.Errorf("expected default CORS origin '*', got %v", got)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Load(writeConfig(t, "schedule: \"\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("expected default port, got %d", cfg.Port)
	}
	if cfg.Schedule != DefaultSchedule {
		t.Errorf("expected default schedule, got %q", cfg.Schedule)
	}
	if cfg.FetchTimeout != DefaultFetchTimeout {
		t.Errorf("expected default timeout, got %s", cfg.FetchTimeout)
	}
	ids := cfg.SourceIDs()
	if len(ids) != 3 || ids[0] != "BSE-500" || ids[1] != "NIFTY-50" || ids[2] != "SENSEX" {
		t.Errorf("expected default sources, got %v", ids)
	}
}

func TestPortEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8123")
	cfg, err := Load(writeConfig(t, "port: 9000\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8123 {
		t.Errorf("expected PORT to override, got %d", cfg.Port)
	}
	if cfg.Addr() != "0.0.0.0:8123" {
		t.Errorf("unexpected addr %q", cfg.Addr())
	}
}

func TestInvalidPortEnv(t *testing.T) {
	t.Setenv("PORT", "eighty")
	if _, err := Default(); err == nil {
		t.Error("expected error for non-numeric PORT")
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TEST_VMARKET_RESEND", "re_secret")
	content := `
alerts:
  from: "vmarket@localhost"
  to: ["ops@localhost"]
  resend_api_key: "${TEST_VMARKET_RESEND}"
redis:
  addr: "${TEST_VMARKET_REDIS:-localhost:6379}"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Alerts.ResendAPIKey != "re_secret" {
		t.Errorf("expected api key 're_secret', got %q", cfg.Alerts.ResendAPIKey)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected default redis addr, got %q", cfg.Redis.Addr)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("PORT", "")
	tests := []struct {
		name    string
		content string
	}{
		{"duplicate id", "sources:\n  - {id: A, url: http://a}\n  - {id: A, url: http://b}\n"},
		{"missing url", "sources:\n  - {id: A}\n"},
		{"missing id", "sources:\n  - {url: http://a}\n"},
		{"port out of range", "port: 70000\n"},
		{"alerts without key", "alerts:\n  from: a@b\n  to: [c@d]\n"},
		{"redis without addr", "redis:\n  prefix: x\n"},
		{"kafka without brokers", "kafka:\n  topic: t\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("PORT", "")

	cfg, fromFile, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromFile {
		t.Error("expected defaults for a missing file")
	}
	if len(cfg.Sources) != len(DefaultSources) {
		t.Errorf("expected default sources, got %d", len(cfg.Sources))
	}

	_, fromFile, err = LoadOrDefault(writeConfig(t, "port: 9001\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fromFile {
		t.Error("expected the file to be used")
	}

	if _, _, err := LoadOrDefault(writeConfig(t, "port: [\n")); err == nil {
		t.Error("expected a parse error to be returned")
	}
}

func TestFetchSources(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srcs := cfg.FetchSources()
	if srcs[1].ID != "NIFTY-50" || srcs[1].URL != DefaultSources[1].URL {
		t.Errorf("unexpected source %+v", srcs[1])
	}
}
