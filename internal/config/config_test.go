package config

import (
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/atmx/trading-game/internal/oracle"
)

func parse(t *testing.T, vars map[string]string) (Config, error) {
	t.Helper()
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cfg, cfg.Validate()
}

func TestDefaults(t *testing.T) {
	cfg, err := parse(t, map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.OracleMode != OracleRecord || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.OracleMaxPriceAge != 30*time.Second {
		t.Errorf("expected 30s freshness window, got %v", cfg.OracleMaxPriceAge)
	}
	if len(cfg.OraclePairs) != 3 {
		t.Errorf("expected 3 default pairs, got %v", cfg.OraclePairs)
	}
	if _, ok := cfg.Gateway().(*oracle.RecordGateway); !ok {
		t.Errorf("expected record gateway, got %T", cfg.Gateway())
	}
}

func TestFeedMode(t *testing.T) {
	cfg, err := parse(t, map[string]string{
		"ORACLE_MODE":          "feed",
		"ORACLE_FEEDS":         "SOL/USD:ef0d8b6f,btc-usd:e62df6c8",
		"ORACLE_MAX_PRICE_AGE": "10s",
		"KAFKA_BROKERS":        "k1:9092,k2:9092",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OracleFeeds["SOL/USD"] != "ef0d8b6f" {
		t.Errorf("unexpected feeds: %v", cfg.OracleFeeds)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Errorf("expected 2 brokers, got %v", cfg.KafkaBrokers)
	}

	gw, ok := cfg.Gateway().(*oracle.FeedGateway)
	if !ok {
		t.Fatalf("expected feed gateway, got %T", cfg.Gateway())
	}
	if id, ok := gw.FeedID("BTC/USD"); !ok || id != "e62df6c8" {
		t.Errorf("alias symbol not normalized: %q %v", id, ok)
	}
	if gw.MaxAge() != 10*time.Second {
		t.Errorf("expected 10s, got %v", gw.MaxAge())
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"unknown mode", map[string]string{"ORACLE_MODE": "magic"}, "ORACLE_MODE"},
		{"feed mode without feeds", map[string]string{"ORACLE_MODE": "feed"}, "ORACLE_FEEDS"},
		{"bad feed pair", map[string]string{"ORACLE_MODE": "feed", "ORACLE_FEEDS": "SOLUSD:abc"}, "ORACLE_FEEDS"},
		{"duplicate pairs", map[string]string{"ORACLE_PAIRS": "SOL/USD,sol-usd"}, "ORACLE_PAIRS"},
		{"zero max age", map[string]string{"ORACLE_MAX_PRICE_AGE": "0s"}, "ORACLE_MAX_PRICE_AGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.vars)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}
