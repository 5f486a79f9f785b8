package audio

import (
	"context"
	"errors"
	"math"
	"sync"
)

// Errors
var (
	ErrDeviceUnavailable = errors.New("audio: input device unavailable")
	ErrNotCapturing      = errors.New("audio: capture not started")
)

// AudioBuffer represents a buffer of audio samples
type AudioBuffer struct {
	Samples    []float32
	SampleRate int
}

// Capturer defines the interface for an audio input source
type Capturer interface {
	// Start acquires the input and begins capture. Failures to open the
	// device wrap ErrDeviceUnavailable.
	Start(ctx context.Context) error

	// Stop ends capture and releases the input. Safe to call more than once
	// and safe to call after a failed Start.
	Stop() error

	// Read copies the current window of mono samples into dst and returns
	// the number of samples written. Live capturers return the most recent
	// samples; io.EOF means the source is exhausted.
	Read(dst []float32) (int, error)

	// SampleRate returns the rate of the samples delivered by Read.
	SampleRate() int

	// IsCapturing returns true if currently capturing audio
	IsCapturing() bool
}

// ToneCapturer generates a continuous sine wave. It stands in for a
// microphone when none is available and drives the tests.
type ToneCapturer struct {
	mu          sync.Mutex
	isCapturing bool
	frequency   float64
	amplitude   float64
	sampleRate  int
	phase       float64
}

// NewToneCapturer creates a sine source of the given frequency and peak
// amplitude.
func NewToneCapturer(frequency, amplitude float64, sampleRate int) *ToneCapturer {
	return &ToneCapturer{
		frequency:  frequency,
		amplitude:  amplitude,
		sampleRate: sampleRate,
	}
}

// Start begins generating samples
func (c *ToneCapturer) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isCapturing = true
	return nil
}

// Stop ends generation
func (c *ToneCapturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isCapturing = false
	return nil
}

// Read fills dst with the next len(dst) samples of the tone. Phase carries
// over between reads.
func (c *ToneCapturer) Read(dst []float32) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCapturing {
		return 0, ErrNotCapturing
	}
	step := 2 * math.Pi * c.frequency / float64(c.sampleRate)
	for i := range dst {
		dst[i] = float32(c.amplitude * math.Sin(c.phase))
		c.phase += step
		if c.phase >= 2*math.Pi {
			c.phase -= 2 * math.Pi
		}
	}
	return len(dst), nil
}

// SampleRate returns the generated sample rate
func (c *ToneCapturer) SampleRate() int {
	return c.sampleRate
}

// IsCapturing returns true if currently generating
func (c *ToneCapturer) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCapturing
}

// downmix averages interleaved frames into mono, applying no gain.
func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	mono := make([]float32, len(in)/channels)
	for i := range mono {
		sum := float32(0)
		for ch := 0; ch < channels; ch++ {
			sum += in[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
