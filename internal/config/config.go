// Package config provides the configuration schema and loader for the
// tuner.
package config

import (
	"time"

	"github.com/0xlemi/stringtuner/internal/pitch"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Backend selects the capture implementation.
type Backend string

const (
	BackendPortAudio Backend = "portaudio"
	BackendMalgo     Backend = "malgo"
	BackendTone      Backend = "tone"
)

// IsValid reports whether b is a recognised backend.
func (b Backend) IsValid() bool {
	switch b {
	case BackendPortAudio, BackendMalgo, BackendTone:
		return true
	}
	return false
}

// Config is the root configuration structure.
type Config struct {
	LogLevel LogLevel       `yaml:"log_level"`
	Audio    AudioConfig    `yaml:"audio"`
	Detector DetectorConfig `yaml:"detector"`
	Loop     LoopConfig     `yaml:"loop"`
	Tuning   TuningConfig   `yaml:"tuning"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// AudioConfig selects and configures the input.
type AudioConfig struct {
	Backend    Backend `yaml:"backend"`
	Device     string  `yaml:"device"` // substring of the capture device name (malgo)
	SampleRate int     `yaml:"sample_rate"`
	Channels   int     `yaml:"channels"`
	Gain       float64 `yaml:"gain"`

	// ToneFrequency is the pitch generated by the tone backend.
	ToneFrequency float64 `yaml:"tone_frequency"`
}

// DetectorConfig mirrors pitch.Config plus the method name.
type DetectorConfig struct {
	Method              string  `yaml:"method"`
	WindowSize          int     `yaml:"window_size"`
	RMSThreshold        float64 `yaml:"rms_threshold"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MinLag              int     `yaml:"min_lag"`
	MaxLag              int     `yaml:"max_lag"`
	OctaveGuard         float64 `yaml:"octave_guard"`
	MinFrequency        float64 `yaml:"min_frequency"`
	MaxFrequency        float64 `yaml:"max_frequency"`
}

// Pitch converts to the detector's own config.
func (d DetectorConfig) Pitch() pitch.Config {
	return pitch.Config{
		WindowSize:          d.WindowSize,
		RMSThreshold:        d.RMSThreshold,
		ConfidenceThreshold: d.ConfidenceThreshold,
		MinLag:              d.MinLag,
		MaxLag:              d.MaxLag,
		OctaveGuard:         d.OctaveGuard,
		MinFrequency:        d.MinFrequency,
		MaxFrequency:        d.MaxFrequency,
	}
}

// LoopConfig paces the detection loop.
type LoopConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// TuningConfig selects the target string.
type TuningConfig struct {
	String string  `yaml:"string"`
	A4     float64 `yaml:"a4"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddr serves /metrics when non-empty, e.g. ":9464".
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	p := pitch.DefaultConfig()
	return &Config{
		LogLevel: LogInfo,
		Audio: AudioConfig{
			Backend:       BackendPortAudio,
			SampleRate:    44100,
			Channels:      1,
			Gain:          1,
			ToneFrequency: 110,
		},
		Detector: DetectorConfig{
			Method:              pitch.MethodAutocorrelation,
			WindowSize:          p.WindowSize,
			RMSThreshold:        p.RMSThreshold,
			ConfidenceThreshold: p.ConfidenceThreshold,
			MinLag:              p.MinLag,
			MaxLag:              p.MaxLag,
			OctaveGuard:         p.OctaveGuard,
			MinFrequency:        p.MinFrequency,
			MaxFrequency:        p.MaxFrequency,
		},
		Loop: LoopConfig{
			Interval: 16 * time.Millisecond,
		},
		Tuning: TuningConfig{
			String: string(pitch.E2),
			A4:     pitch.A4Frequency,
		},
	}
}
