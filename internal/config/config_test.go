package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Environment.Name != "prod" {
		t.Fatalf("expected default environment prod, got %q", cfg.Environment.Name)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cortex.toml")
	body := `
[environment]
name = "staging"

[allocator]
max_tokens_per_worker = 50000
history_window = 10
history_min_samples = 3
extension_fraction = 0.25
tokenizer_model = "cl100k_base"

[heartbeat]
interval_seconds = 30
warning_seconds = 60
critical_seconds = 120
zombie_seconds = 300
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment.Name != "staging" {
		t.Fatalf("expected staging, got %q", cfg.Environment.Name)
	}
	if cfg.Allocator.MaxTokensPerWorker != 50000 {
		t.Fatalf("expected 50000, got %d", cfg.Allocator.MaxTokensPerWorker)
	}
}

func TestValidateRejectsBadEnvironment(t *testing.T) {
	cfg := Default()
	cfg.Environment.Name = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for bad environment")
	}
}

func TestValidateRejectsNonMonotonicHeartbeatThresholds(t *testing.T) {
	cfg := Default()
	cfg.Heartbeat.WarningSeconds = 200
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for non-monotonic heartbeat thresholds")
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration{45 * time.Second}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var got Duration
	if err := got.UnmarshalText(text); err != nil {
		t.Fatal(err)
	}
	if got.Duration != d.Duration {
		t.Fatalf("round trip mismatch: got %v want %v", got.Duration, d.Duration)
	}
}

func TestValidateRuntimeReloadRejectsRestartFields(t *testing.T) {
	old := Default()
	changed := old.Clone()
	changed.General.CoordinationRoot = "/other/path"
	if err := ValidateRuntimeReload(old, changed); err == nil {
		t.Fatal("expected error for coordination_root change")
	}

	changed2 := old.Clone()
	changed2.Environment.Name = "dev"
	if err := ValidateRuntimeReload(old, changed2); err == nil {
		t.Fatal("expected error for environment.name change")
	}
}

func TestValidateRuntimeReloadAllowsOtherFields(t *testing.T) {
	old := Default()
	changed := old.Clone()
	changed.Heartbeat.WarningSeconds = 90
	if err := ValidateRuntimeReload(old, changed); err != nil {
		t.Fatalf("expected non-restart field change to be allowed: %v", err)
	}
}
