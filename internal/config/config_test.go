package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"topolens/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topolens.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Listen != ":3000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.ControlPlane.SessionTTL() != 30*time.Minute {
		t.Errorf("session ttl = %v", cfg.ControlPlane.SessionTTL())
	}
	if cfg.Adapters.RateLimit() != 2*time.Second {
		t.Errorf("rate limit = %v", cfg.Adapters.RateLimit())
	}
	if cfg.Cache.TTL() != 30*time.Second {
		t.Errorf("cache ttl = %v", cfg.Cache.TTL())
	}
	if cfg.Cache.StaleGraceCycles != 1 {
		t.Errorf("grace cycles = %d", cfg.Cache.StaleGraceCycles)
	}
	if !cfg.ControlPlane.VerifyTLSEnabled() {
		t.Error("verify_tls must default to true")
	}
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
version: 1
listen: ":8080"
control_plane:
  base_url: https://fw.example.net
  username: admin
  password: secret
  static_token: fallback-token
  session_ttl_minutes: 10
  verify_tls: false
adapters:
  adapter_timeout_ms: 5000
  per_adapter_rate_limit_ms: 500
cache:
  cache_ttl_seconds: 60
  stale_device_grace_cycles: 2
sources:
  snmp:
    enabled: false
  secondary_vendor:
    priority: 45
snmp:
  community: public
  targets:
    - name: core-sw
      host: 10.0.0.2
secondary_vendor:
  enabled: true
  base_url: https://api.cloudswitch.example
  api_key: key123
`)

	cfg, loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != path {
		t.Errorf("loaded path = %q", loaded)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.ControlPlane.VerifyTLSEnabled() {
		t.Error("verify_tls override not applied")
	}
	if cfg.ControlPlane.SessionTTL() != 10*time.Minute {
		t.Errorf("session ttl = %v", cfg.ControlPlane.SessionTTL())
	}
	if cfg.SourceEnabled(domain.SourceSNMP) {
		t.Error("snmp should be disabled")
	}
	if !cfg.SourceEnabled(domain.SourceMonitor) {
		t.Error("monitor should default to enabled")
	}
	if got := cfg.PriorityMap()[domain.SourceSecondaryVendor]; got != 45 {
		t.Errorf("secondary priority = %d, want override 45", got)
	}
	if got := cfg.PriorityMap()[domain.SourceMonitor]; got != 50 {
		t.Errorf("monitor priority = %d, want default 50", got)
	}
	if cfg.SNMP.Targets[0].Community != "public" {
		t.Errorf("target community = %q, want inherited", cfg.SNMP.Targets[0].Community)
	}
	if cfg.SNMP.Targets[0].Port != 161 {
		t.Errorf("target port = %d", cfg.SNMP.Targets[0].Port)
	}
}

func TestLoadFromPathRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
listen: ":8080"
control_plane:
  base_url: "::not a url::"
`)

	if _, _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected validation error for bad base_url")
	}
}

func TestSourceRateLimitOverride(t *testing.T) {
	cfg := DefaultConfig()
	ms := 100
	cfg.Sources = map[string]SourceOverride{
		"snmp": {RateLimitMS: &ms},
	}

	if got := cfg.SourceRateLimit(domain.SourceSNMP); got != 100*time.Millisecond {
		t.Errorf("snmp rate limit = %v", got)
	}
	if got := cfg.SourceRateLimit(domain.SourceMonitor); got != 2*time.Second {
		t.Errorf("monitor rate limit = %v, want adapter default", got)
	}
}
