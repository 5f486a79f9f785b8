package pitch

import (
	"errors"
	"fmt"
	"math"

	"github.com/0xlemi/stringtuner/internal/audio"
)

// Errors
var (
	ErrEmptyBuffer       = errors.New("pitch: empty audio buffer")
	ErrWindowTooShort    = errors.New("pitch: window too short for lag range")
	ErrWindowMismatch    = errors.New("pitch: buffer length does not match window size")
	ErrInvalidSampleRate = errors.New("pitch: sample rate must be positive")
	ErrInvalidFrequency  = errors.New("pitch: frequency must be positive and finite")
	ErrUnknownMethod     = errors.New("pitch: unknown detection method")
)

// Detection methods accepted by NewDetector.
const (
	MethodAutocorrelation = "autocorrelation"
	MethodSpectral        = "spectral"
)

// Estimate is the outcome of one analysis pass. A zero Frequency means no
// pitch was detected.
type Estimate struct {
	Frequency   float64 // Hz, > 0 when found
	Lag         int     // reported lag in samples (autocorrelation only)
	Correlation float64 // best normalized correlation, or peak amplitude for spectral
	RMS         float64
	LagsScanned int  // candidate lags or bins examined
	Gated       bool // the signal gate rejected the buffer
}

// Found reports whether a pitch was detected.
func (e Estimate) Found() bool {
	return e.Frequency > 0
}

// Detector defines the interface for pitch detection
type Detector interface {
	// Estimate analyzes one window. "No pitch" is a normal result, not an
	// error; errors are reserved for contract violations.
	Estimate(buffer *audio.AudioBuffer) (Estimate, error)
}

// Config holds the detector tuning knobs.
type Config struct {
	WindowSize          int
	RMSThreshold        float64
	ConfidenceThreshold float64

	// Autocorrelation lag bounds. MaxLag <= 0 means WindowSize/2; larger
	// values are clamped to WindowSize-2.
	MinLag int
	MaxLag int

	// OctaveGuard makes the autocorrelator prefer the earliest local peak
	// within this fraction of the best correlation. Zero disables it.
	OctaveGuard float64

	// Spectral search range in Hz.
	MinFrequency float64
	MaxFrequency float64
}

// DefaultConfig returns the settings for a 2048-sample window at guitar
// frequencies.
func DefaultConfig() Config {
	return Config{
		WindowSize:          2048,
		RMSThreshold:        0.01,
		ConfidenceThreshold: 0.1,
		MinLag:              80,
		OctaveGuard:         0.9,
		MinFrequency:        70,
		MaxFrequency:        1200,
	}
}

// Validate checks the window and lag preconditions.
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: window size %d", ErrWindowTooShort, c.WindowSize)
	}
	if c.MinLag < 1 {
		return fmt.Errorf("%w: min lag %d must be at least 1", ErrWindowTooShort, c.MinLag)
	}
	if c.WindowSize < c.MinLag+2 {
		return fmt.Errorf("%w: window %d, min lag %d", ErrWindowTooShort, c.WindowSize, c.MinLag)
	}
	if c.OctaveGuard < 0 || c.OctaveGuard > 1 || math.IsNaN(c.OctaveGuard) {
		return fmt.Errorf("pitch: octave guard %v outside [0, 1]", c.OctaveGuard)
	}
	return nil
}

// lagRange returns the inclusive lag bounds scanned for a window.
func (c Config) lagRange() (lo, hi int) {
	hi = c.MaxLag
	if hi <= 0 {
		hi = c.WindowSize / 2
	}
	if hi > c.WindowSize-2 {
		hi = c.WindowSize - 2
	}
	if hi < c.MinLag {
		hi = c.MinLag
	}
	return c.MinLag, hi
}

// NewDetector builds the detector for method.
func NewDetector(method string, cfg Config) (Detector, error) {
	switch method {
	case MethodAutocorrelation, "":
		return NewAutocorrelator(cfg)
	case MethodSpectral:
		return NewSpectral(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// checkBuffer enforces the per-call contract shared by all detectors.
func checkBuffer(buffer *audio.AudioBuffer, windowSize int) error {
	if buffer == nil || len(buffer.Samples) == 0 {
		return ErrEmptyBuffer
	}
	if buffer.SampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleRate, buffer.SampleRate)
	}
	if len(buffer.Samples) != windowSize {
		return fmt.Errorf("%w: got %d samples, want %d", ErrWindowMismatch, len(buffer.Samples), windowSize)
	}
	return nil
}
