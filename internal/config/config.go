// Package config loads engine configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tracking TrackingConfig `yaml:"tracking"`
	Response ResponseConfig `yaml:"response"`
	Idle     IdleConfig     `yaml:"idle"`
	Speech   SpeechConfig   `yaml:"speech"`
	Reachy   ReachyConfig   `yaml:"reachy"`
	Web      WebConfig      `yaml:"web"`
}

type TrackingConfig struct {
	AppearanceThreshold int `yaml:"appearance_threshold"` // consecutive frames before confirmation (default 3)
	DepartureThreshold  int `yaml:"departure_threshold"`  // consecutive absent frames before departure (default 3)
	HistoryCapacity     int `yaml:"history_capacity"`     // bounded event history size (default 100)
}

// Duration accepts "300ms" style strings in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

type ResponseConfig struct {
	SpeechOffset    Duration `yaml:"speech_offset"`    // gesture-to-speech delay (default 300ms)
	TargetLatency   Duration `yaml:"target_latency"`   // event-to-speech goal (default 400ms)
	WatchdogTimeout Duration `yaml:"watchdog_timeout"` // stuck speech bound (default 5s)
	BatchWindow     Duration `yaml:"batch_window"`     // same-frame ordering window (default 50ms)
	Farewells       bool     `yaml:"farewells"`        // speak goodbyes for greeted identities
}

type IdleConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold Duration `yaml:"threshold"` // quiet time before drifting (default 5s)
	Interval  Duration `yaml:"interval"`  // pause between drifts (default 3s)
}

type SpeechConfig struct {
	Mode       string `yaml:"mode"`        // streaming, rest, or simulated
	Voice      string `yaml:"voice"`       // Deepgram Aura model (default aura-asteria-en)
	SampleRate int    `yaml:"sample_rate"` // playback sample rate (default 24000)
	APIKey     string `yaml:"-"`           // from DEEPGRAM_API_KEY only, never the file
}

type ReachyConfig struct {
	Endpoint string `yaml:"endpoint"` // ws:// control endpoint; empty means simulated
}

type WebConfig struct {
	Addr string `yaml:"addr"` // HTTP listen address; empty disables the server
}

func defaults() *Config {
	return &Config{
		Tracking: TrackingConfig{
			AppearanceThreshold: 3,
			DepartureThreshold:  3,
			HistoryCapacity:     100,
		},
		Response: ResponseConfig{
			SpeechOffset:    Duration(300 * time.Millisecond),
			TargetLatency:   Duration(400 * time.Millisecond),
			WatchdogTimeout: Duration(5 * time.Second),
			BatchWindow:     Duration(50 * time.Millisecond),
		},
		Idle: IdleConfig{
			Enabled:   true,
			Threshold: Duration(5 * time.Second),
			Interval:  Duration(3 * time.Second),
		},
		Speech: SpeechConfig{
			Mode:       "simulated",
			Voice:      "aura-asteria-en",
			SampleRate: 24000,
		},
		Web: WebConfig{
			Addr: ":8080",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file (if path is
// non-empty), then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Tracking.AppearanceThreshold = envInt("RECOGNIZER_APPEARANCE_THRESHOLD", c.Tracking.AppearanceThreshold)
	c.Tracking.DepartureThreshold = envInt("RECOGNIZER_DEPARTURE_THRESHOLD", c.Tracking.DepartureThreshold)
	c.Tracking.HistoryCapacity = envInt("RECOGNIZER_HISTORY_CAPACITY", c.Tracking.HistoryCapacity)

	c.Response.SpeechOffset = envDuration("RECOGNIZER_SPEECH_OFFSET", c.Response.SpeechOffset)
	c.Response.TargetLatency = envDuration("RECOGNIZER_TARGET_LATENCY", c.Response.TargetLatency)
	c.Response.WatchdogTimeout = envDuration("RECOGNIZER_WATCHDOG_TIMEOUT", c.Response.WatchdogTimeout)

	c.Idle.Threshold = envDuration("RECOGNIZER_IDLE_THRESHOLD", c.Idle.Threshold)
	c.Idle.Interval = envDuration("RECOGNIZER_IDLE_INTERVAL", c.Idle.Interval)

	if mode := os.Getenv("RECOGNIZER_SPEECH_MODE"); mode != "" {
		c.Speech.Mode = mode
	}
	if voice := os.Getenv("RECOGNIZER_VOICE"); voice != "" {
		c.Speech.Voice = voice
	}
	c.Speech.APIKey = os.Getenv("DEEPGRAM_API_KEY")

	if endpoint := os.Getenv("REACHY_ENDPOINT"); endpoint != "" {
		c.Reachy.Endpoint = endpoint
	}
	if addr := os.Getenv("RECOGNIZER_WEB_ADDR"); addr != "" {
		c.Web.Addr = addr
	}
}

func (c *Config) validate() error {
	if c.Tracking.AppearanceThreshold < 1 {
		return fmt.Errorf("appearance threshold must be at least 1, got %d", c.Tracking.AppearanceThreshold)
	}
	if c.Tracking.DepartureThreshold < 1 {
		return fmt.Errorf("departure threshold must be at least 1, got %d", c.Tracking.DepartureThreshold)
	}
	if c.Tracking.HistoryCapacity < 1 {
		return fmt.Errorf("history capacity must be at least 1, got %d", c.Tracking.HistoryCapacity)
	}
	switch c.Speech.Mode {
	case "streaming", "rest", "simulated":
	default:
		return fmt.Errorf("unknown speech mode %q", c.Speech.Mode)
	}
	if c.Speech.Mode != "simulated" && c.Speech.APIKey == "" {
		return fmt.Errorf("speech mode %q requires DEEPGRAM_API_KEY", c.Speech.Mode)
	}
	return nil
}

// envInt reads an environment variable as a positive integer, keeping the
// current value when unset or invalid.
func envInt(key string, current int) int {
	s := os.Getenv(key)
	if s == "" {
		return current
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return current
}

func envDuration(key string, current Duration) Duration {
	s := os.Getenv(key)
	if s == "" {
		return current
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return Duration(d)
	}
	return current
}
