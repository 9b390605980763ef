package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Tracking.AppearanceThreshold != 3 || cfg.Tracking.DepartureThreshold != 3 {
		t.Fatalf("unexpected tracking defaults: %+v", cfg.Tracking)
	}
	if cfg.Tracking.HistoryCapacity != 100 {
		t.Fatalf("unexpected history capacity: %d", cfg.Tracking.HistoryCapacity)
	}
	if cfg.Response.SpeechOffset.D() != 300*time.Millisecond {
		t.Fatalf("unexpected speech offset: %v", cfg.Response.SpeechOffset.D())
	}
	if cfg.Response.WatchdogTimeout.D() != 5*time.Second {
		t.Fatalf("unexpected watchdog timeout: %v", cfg.Response.WatchdogTimeout.D())
	}
	if cfg.Speech.Mode != "simulated" {
		t.Fatalf("expected simulated speech by default, got %q", cfg.Speech.Mode)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
tracking:
  appearance_threshold: 5
  departure_threshold: 2
response:
  speech_offset: 150ms
  farewells: true
idle:
  enabled: false
reachy:
  endpoint: ws://reachy.local:8765
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Tracking.AppearanceThreshold != 5 || cfg.Tracking.DepartureThreshold != 2 {
		t.Fatalf("yaml thresholds not applied: %+v", cfg.Tracking)
	}
	if cfg.Response.SpeechOffset.D() != 150*time.Millisecond {
		t.Fatalf("yaml duration not applied: %v", cfg.Response.SpeechOffset.D())
	}
	if !cfg.Response.Farewells {
		t.Fatal("yaml farewells flag not applied")
	}
	if cfg.Idle.Enabled {
		t.Fatal("yaml idle flag not applied")
	}
	if cfg.Reachy.Endpoint != "ws://reachy.local:8765" {
		t.Fatalf("yaml endpoint not applied: %q", cfg.Reachy.Endpoint)
	}
	// Untouched sections keep their defaults.
	if cfg.Response.TargetLatency.D() != 400*time.Millisecond {
		t.Fatalf("default lost after partial yaml: %v", cfg.Response.TargetLatency.D())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("RECOGNIZER_APPEARANCE_THRESHOLD", "7")
	t.Setenv("RECOGNIZER_IDLE_THRESHOLD", "10s")
	t.Setenv("RECOGNIZER_WEB_ADDR", ":9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Tracking.AppearanceThreshold != 7 {
		t.Fatalf("env int override not applied: %d", cfg.Tracking.AppearanceThreshold)
	}
	if cfg.Idle.Threshold.D() != 10*time.Second {
		t.Fatalf("env duration override not applied: %v", cfg.Idle.Threshold.D())
	}
	if cfg.Web.Addr != ":9999" {
		t.Fatalf("env addr override not applied: %q", cfg.Web.Addr)
	}
}

func TestEnvInvalidValuesIgnored(t *testing.T) {
	t.Setenv("RECOGNIZER_APPEARANCE_THRESHOLD", "zero")
	t.Setenv("RECOGNIZER_IDLE_INTERVAL", "-3s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tracking.AppearanceThreshold != 3 {
		t.Fatalf("invalid env int should keep default, got %d", cfg.Tracking.AppearanceThreshold)
	}
	if cfg.Idle.Interval.D() != 3*time.Second {
		t.Fatalf("invalid env duration should keep default, got %v", cfg.Idle.Interval.D())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("RECOGNIZER_SPEECH_MODE", "loud")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown speech mode")
	}

	t.Setenv("RECOGNIZER_SPEECH_MODE", "streaming")
	t.Setenv("DEEPGRAM_API_KEY", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for streaming mode without api key")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
