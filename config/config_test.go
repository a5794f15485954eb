package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTempConfig writes content to a temporary YAML file and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("INSTRUMENT", "")
	t.Setenv("GRPC_ADDRESS", "")
	path := writeTempConfig(t, `orderflow:
  name: "TestApp"
  version: "1.0"
instrument: "btcusdt"
debug: true
aggregator:
  depth: 5
  stale_after: 30s
source:
  bybit:
    enabled: true
    interval_ms: 250
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Orderflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Orderflow.Name)
	}
	if cfg.Instrument != "btcusdt" || !cfg.Debug {
		t.Errorf("unexpected instrument/debug: %s %v", cfg.Instrument, cfg.Debug)
	}
	if cfg.Aggregator.Depth != 5 || cfg.Aggregator.StaleAfter != 30*time.Second {
		t.Errorf("unexpected aggregator config: %+v", cfg.Aggregator)
	}
	if !cfg.Source.Bybit.Enabled || cfg.Source.Bybit.IntervalMs != 250 {
		t.Errorf("unexpected bybit config: %+v", cfg.Source.Bybit)
	}
	// untouched keys keep their defaults
	if cfg.Channels.InboundBuffer != 64 || cfg.Channels.SubscriberBuffer != 4 {
		t.Errorf("defaults lost: %+v", cfg.Channels)
	}
	if !cfg.Source.Binance.Enabled || cfg.GRPC.Address != "[::1]:10000" {
		t.Errorf("defaults lost: %+v %+v", cfg.Source.Binance, cfg.GRPC)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("INSTRUMENT", "")
	t.Setenv("GRPC_ADDRESS", "")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Instrument != "ethbtc" || cfg.Aggregator.Depth != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("INSTRUMENT", "solusdt")
	t.Setenv("GRPC_ADDRESS", "127.0.0.1:5000")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Instrument != "solusdt" || cfg.GRPC.Address != "127.0.0.1:5000" {
		t.Fatalf("env overrides not applied: %s %s", cfg.Instrument, cfg.GRPC.Address)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty instrument", func(c *Config) { c.Instrument = " " }},
		{"zero inbound buffer", func(c *Config) { c.Channels.InboundBuffer = 0 }},
		{"zero subscriber buffer", func(c *Config) { c.Channels.SubscriberBuffer = 0 }},
		{"zero depth", func(c *Config) { c.Aggregator.Depth = 0 }},
		{"negative staleness", func(c *Config) { c.Aggregator.StaleAfter = -time.Second }},
		{"no sources", func(c *Config) {
			c.Source.Binance.Enabled = false
			c.Source.Bitstamp.Enabled = false
		}},
		{"bybit without interval", func(c *Config) {
			c.Source.Bybit.Enabled = true
			c.Source.Bybit.IntervalMs = 0
		}},
		{"kafka without brokers", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}},
		{"missing grpc address", func(c *Config) { c.GRPC.Address = "" }},
	}
	for _, c := range cases {
		cfg := Default()
		c.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "config.yml")
	t.Setenv("APP_ENV", "prod")
	if got := ResolvePath("", def); got != def {
		t.Fatalf("expected default path without env file, got %s", got)
	}
	envPath := filepath.Join(dir, "config.production.yml")
	if err := os.WriteFile(envPath, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	if got := ResolvePath(def, def); got != envPath {
		t.Fatalf("expected %s, got %s", envPath, got)
	}
	if got := ResolvePath("custom.yml", def); got != "custom.yml" {
		t.Fatalf("explicit path overridden: %s", got)
	}
	if !IsProductionLike(AppEnvironment()) {
		t.Fatalf("prod alias should be production-like")
	}
}
