package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"strconv"

	"github.com/0xlemi/stringtuner/internal/pitch"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvLogLevel    = "STRINGTUNER_LOG_LEVEL"
	EnvBackend     = "STRINGTUNER_BACKEND"
	EnvDevice      = "STRINGTUNER_DEVICE"
	EnvGain        = "STRINGTUNER_GAIN"
	EnvString      = "STRINGTUNER_STRING"
	EnvA4          = "STRINGTUNER_A4"
	EnvMetricsAddr = "STRINGTUNER_METRICS_ADDR"
)

// Load reads the YAML configuration file at path over the defaults, applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := ApplyEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, Validate(cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any STRINGTUNER_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = LogLevel(v)
	}
	if v := os.Getenv(EnvBackend); v != "" {
		cfg.Audio.Backend = Backend(v)
	}
	if v := os.Getenv(EnvDevice); v != "" {
		cfg.Audio.Device = v
	}
	if v := os.Getenv(EnvString); v != "" {
		cfg.Tuning.String = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.ListenAddr = v
	}

	var errs []error
	if v := os.Getenv(EnvGain); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvGain, err))
		} else {
			cfg.Audio.Gain = f
		}
	}
	if v := os.Getenv(EnvA4); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvA4, err))
		} else {
			cfg.Tuning.A4 = f
		}
	}
	return errors.Join(errs...)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Audio
	if !cfg.Audio.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: portaudio, malgo, tone", cfg.Audio.Backend))
	}
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 1 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 or 2, got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.Gain < 0.1 || cfg.Audio.Gain > 100 {
		errs = append(errs, fmt.Errorf("audio.gain must be in [0.1, 100], got %v", cfg.Audio.Gain))
	}
	if cfg.Audio.Backend == BackendTone && !(cfg.Audio.ToneFrequency > 0) {
		errs = append(errs, fmt.Errorf("audio.tone_frequency must be positive for the tone backend"))
	}

	// Detector
	d := cfg.Detector
	switch d.Method {
	case pitch.MethodAutocorrelation, pitch.MethodSpectral:
	default:
		errs = append(errs, fmt.Errorf("detector.method %q is invalid; valid values: autocorrelation, spectral", d.Method))
	}
	if d.WindowSize <= 0 || bits.OnesCount(uint(d.WindowSize)) != 1 {
		errs = append(errs, fmt.Errorf("detector.window_size must be a power of two, got %d", d.WindowSize))
	}
	if d.MinLag < 1 {
		errs = append(errs, fmt.Errorf("detector.min_lag must be at least 1, got %d", d.MinLag))
	} else if d.MinLag+2 > d.WindowSize {
		errs = append(errs, fmt.Errorf("detector.min_lag %d leaves no lags in a %d-sample window", d.MinLag, d.WindowSize))
	}
	if d.MaxLag < 0 {
		errs = append(errs, fmt.Errorf("detector.max_lag must not be negative, got %d", d.MaxLag))
	}
	if d.RMSThreshold < 0 || d.RMSThreshold >= 1 {
		errs = append(errs, fmt.Errorf("detector.rms_threshold must be in [0, 1), got %v", d.RMSThreshold))
	}
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("detector.confidence_threshold must be in [0, 1), got %v", d.ConfidenceThreshold))
	}
	if d.OctaveGuard < 0 || d.OctaveGuard > 1 {
		errs = append(errs, fmt.Errorf("detector.octave_guard must be in [0, 1], got %v", d.OctaveGuard))
	}
	if !(d.MinFrequency > 0) || d.MaxFrequency <= d.MinFrequency {
		errs = append(errs, fmt.Errorf("detector.min_frequency/max_frequency must satisfy 0 < min < max, got %v/%v", d.MinFrequency, d.MaxFrequency))
	}

	// Loop
	if cfg.Loop.Interval < 0 {
		errs = append(errs, fmt.Errorf("loop.interval must not be negative, got %s", cfg.Loop.Interval))
	}

	// Tuning
	if _, ok := pitch.Standard.Lookup(pitch.StringID(cfg.Tuning.String)); !ok {
		errs = append(errs, fmt.Errorf("tuning.string %q is not a standard tuning string", cfg.Tuning.String))
	}
	if cfg.Tuning.A4 < 400 || cfg.Tuning.A4 > 480 {
		errs = append(errs, fmt.Errorf("tuning.a4 must be in [400, 480] Hz, got %v", cfg.Tuning.A4))
	}

	if cfg.Audio.SampleRate > 0 && d.MinLag > 0 {
		if ceiling := float64(cfg.Audio.SampleRate) / float64(d.MinLag); ceiling < 330 {
			slog.Warn("min_lag caps detection below the high E string",
				"min_lag", d.MinLag, "ceiling_hz", ceiling)
		}
	}

	return errors.Join(errs...)
}

// SlogLevel maps the configured level to slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
