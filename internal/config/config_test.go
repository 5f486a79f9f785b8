package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
log_level: debug
audio:
  backend: malgo
  device: USB
  sample_rate: 48000
  gain: 2.5
detector:
  method: spectral
  window_size: 4096
  min_lag: 60
loop:
  interval: 20ms
tuning:
  string: a2
  a4: 442
metrics:
  listen_addr: ":9464"
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.LogLevel != LogDebug {
		t.Errorf("log_level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Audio.Backend != BackendMalgo || cfg.Audio.Device != "USB" {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Gain != 2.5 {
		t.Errorf("audio rate/gain = %d/%v", cfg.Audio.SampleRate, cfg.Audio.Gain)
	}
	if cfg.Detector.Method != "spectral" || cfg.Detector.WindowSize != 4096 || cfg.Detector.MinLag != 60 {
		t.Errorf("detector = %+v", cfg.Detector)
	}
	if cfg.Loop.Interval != 20*time.Millisecond {
		t.Errorf("interval = %s, want 20ms", cfg.Loop.Interval)
	}
	if cfg.Tuning.String != "a2" || cfg.Tuning.A4 != 442 {
		t.Errorf("tuning = %+v", cfg.Tuning)
	}
	if cfg.Metrics.ListenAddr != ":9464" {
		t.Errorf("metrics.listen_addr = %q", cfg.Metrics.ListenAddr)
	}

	// Unset fields keep their defaults.
	if cfg.Detector.RMSThreshold != 0.01 || cfg.Detector.ConfidenceThreshold != 0.1 {
		t.Errorf("thresholds = %v/%v, want defaults", cfg.Detector.RMSThreshold, cfg.Detector.ConfidenceThreshold)
	}
	if cfg.Audio.Channels != 1 {
		t.Errorf("channels = %d, want 1", cfg.Audio.Channels)
	}
}

func TestLoadFromReader_EmptyIsDefault(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	want := Default()
	if cfg.Detector != want.Detector || cfg.Audio != want.Audio || cfg.Tuning != want.Tuning {
		t.Errorf("empty config differs from Default:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("audio:\n  bakend: tone\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	cfg.Audio.Backend = "jack"
	cfg.Detector.WindowSize = 3000
	cfg.Detector.Method = "yin"
	cfg.Tuning.String = "C4"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"log_level", "audio.backend", "window_size", "detector.method", "tuning.string"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"min lag too large", func(c *Config) { c.Detector.WindowSize = 64; c.Detector.MinLag = 63 }, "min_lag"},
		{"zero min lag", func(c *Config) { c.Detector.MinLag = 0 }, "min_lag"},
		{"negative max lag", func(c *Config) { c.Detector.MaxLag = -1 }, "max_lag"},
		{"confidence", func(c *Config) { c.Detector.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"rms", func(c *Config) { c.Detector.RMSThreshold = -0.1 }, "rms_threshold"},
		{"guard", func(c *Config) { c.Detector.OctaveGuard = 2 }, "octave_guard"},
		{"frequency range", func(c *Config) { c.Detector.MaxFrequency = 10 }, "max_frequency"},
		{"gain", func(c *Config) { c.Audio.Gain = 0 }, "audio.gain"},
		{"channels", func(c *Config) { c.Audio.Channels = 6 }, "audio.channels"},
		{"a4", func(c *Config) { c.Tuning.A4 = 0 }, "tuning.a4"},
		{"interval", func(c *Config) { c.Loop.Interval = -time.Second }, "loop.interval"},
		{"tone frequency", func(c *Config) { c.Audio.Backend = BackendTone; c.Audio.ToneFrequency = 0 }, "tone_frequency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got err %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuner.yaml")
	if err := os.WriteFile(path, []byte("audio:\n  backend: tone\n  tone_frequency: 196\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvString, "G3")
	t.Setenv(EnvGain, "3")
	t.Setenv(EnvMetricsAddr, "127.0.0.1:9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audio.Backend != BackendTone || cfg.Audio.ToneFrequency != 196 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Tuning.String != "G3" || cfg.Audio.Gain != 3 || cfg.Metrics.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv(EnvA4, "four-forty")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), EnvA4) {
		t.Fatalf("got err %v, want mention of %s", err, EnvA4)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDetectorConfigPitch(t *testing.T) {
	cfg := Default()
	p := cfg.Detector.Pitch()
	if err := p.Validate(); err != nil {
		t.Fatalf("default detector config invalid: %v", err)
	}
	if p.WindowSize != 2048 || p.MinLag != 80 || p.OctaveGuard != 0.9 {
		t.Errorf("pitch config = %+v", p)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[LogLevel]slog.Level{
		LogDebug: slog.LevelDebug,
		LogInfo:  slog.LevelInfo,
		LogWarn:  slog.LevelWarn,
		LogError: slog.LevelError,
		"":       slog.LevelInfo,
	}
	for level, want := range tests {
		cfg := &Config{LogLevel: level}
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}
