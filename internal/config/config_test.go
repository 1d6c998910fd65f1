package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: testbot\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.App.Name != "testbot" {
		t.Fatalf("explicit value lost: %q", cfg.App.Name)
	}
	if cfg.App.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.App.LogLevel)
	}
	if cfg.Exchange.BaseURL != "https://api.bybit.com" {
		t.Fatalf("expected default base url, got %q", cfg.Exchange.BaseURL)
	}
	if cfg.Weights.Predictor != 0.60 || cfg.Weights.MeanReversion != 0.25 || cfg.Weights.Microstructure != 0.15 {
		t.Fatalf("unexpected default weights: %+v", cfg.Weights)
	}
	if cfg.Risk.StopLossPct != 2 || cfg.Risk.TakeProfitPct != 5 {
		t.Fatalf("unexpected default exits: %+v", cfg.Risk)
	}
	if cfg.Engine.CycleIntervalSecs != 300 {
		t.Fatalf("expected default cycle interval, got %d", cfg.Engine.CycleIntervalSecs)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
risk:
  max_positions: 3
  cooldown_secs: 120
strategy:
  lookback_bars: 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Risk.MaxPositions != 3 {
		t.Fatalf("override lost: %d", cfg.Risk.MaxPositions)
	}
	if cfg.Risk.CooldownSecs != 120 {
		t.Fatalf("override lost: %d", cfg.Risk.CooldownSecs)
	}
	if cfg.Strategy.LookbackBars != 50 {
		t.Fatalf("override lost: %d", cfg.Strategy.LookbackBars)
	}
	// Untouched sections keep their defaults.
	if cfg.Risk.MaxTradesPerDay != 20 {
		t.Fatalf("sibling default lost: %d", cfg.Risk.MaxTradesPerDay)
	}
}

func TestLoadRejectsBadWeightSum(t *testing.T) {
	path := writeConfig(t, `
weights:
  predictor: 0.5
  mean_reversion: 0.25
  microstructure: 0.15
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected weight sum violation")
	}
	if !strings.Contains(err.Error(), "sum to 1.0") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsUnattainableThreshold(t *testing.T) {
	path := writeConfig(t, `
risk:
  confidence_threshold: 1.0
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected threshold rejection")
	}
}

func TestLoadRejectsInvalidLeaf(t *testing.T) {
	path := writeConfig(t, `
risk:
  max_positions: 0
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation failure for zero max_positions")
	}
}

func TestLoadReadsCredentialsFromEnv(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "key-from-env")
	t.Setenv("BYBIT_API_SECRET", "secret-from-env")

	path := writeConfig(t, "app:\n  name: testbot\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Exchange.APIKey != "key-from-env" || cfg.Exchange.APISecret != "secret-from-env" {
		t.Fatalf("credentials not taken from environment: %+v", cfg.Exchange)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	src := writeConfig(t, "app:\n  name: roundtrip\n")
	cfg, err := Load(src)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "saved.yaml")
	if err := Save(dst, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	reloaded, err := Load(dst)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.App.Name != "roundtrip" {
		t.Fatalf("round trip lost app name: %q", reloaded.App.Name)
	}
	if reloaded.Weights != cfg.Weights {
		t.Fatalf("round trip changed weights: %+v vs %+v", reloaded.Weights, cfg.Weights)
	}
}
