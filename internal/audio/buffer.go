package audio

import (
	"errors"
	"fmt"
)

var ErrInvalidWindow = errors.New("audio: window size and sample rate must be positive")

// SampleBuffer is the fixed-size analysis window. It is refilled in place
// once per detection cycle; callers must not keep references to Samples
// across refills.
type SampleBuffer struct {
	buf      AudioBuffer
	gain     float32
	degraded bool
}

// NewSampleBuffer allocates a window of size samples at sampleRate.
func NewSampleBuffer(size, sampleRate int) (*SampleBuffer, error) {
	if size <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: size=%d rate=%d", ErrInvalidWindow, size, sampleRate)
	}
	return &SampleBuffer{
		buf: AudioBuffer{
			Samples:    make([]float32, size),
			SampleRate: sampleRate,
		},
		gain: 1,
	}, nil
}

// Refill overwrites the whole window from src. A short read zero-fills the
// remainder and marks the window degraded. On error the window is left
// zeroed.
func (b *SampleBuffer) Refill(src Capturer) (degraded bool, err error) {
	samples := b.buf.Samples
	n, err := src.Read(samples)
	if n < 0 {
		n = 0
	}
	if n > len(samples) {
		n = len(samples)
	}
	if err != nil {
		n = 0
	}
	clear(samples[n:])

	if b.gain != 1 {
		for i := range samples[:n] {
			samples[i] *= b.gain
		}
	}

	b.degraded = n < len(samples)
	return b.degraded, err
}

// SetGain sets the amplification applied on refill. Factors below 0.1 are
// raised to 0.1.
func (b *SampleBuffer) SetGain(factor float32) {
	if factor < 0.1 {
		factor = 0.1
	}
	b.gain = factor
}

// Gain returns the amplification factor.
func (b *SampleBuffer) Gain() float32 {
	return b.gain
}

// Buffer exposes the window for analysis.
func (b *SampleBuffer) Buffer() *AudioBuffer {
	return &b.buf
}

// Len returns the window size.
func (b *SampleBuffer) Len() int {
	return len(b.buf.Samples)
}

// SampleRate returns the window's sample rate.
func (b *SampleBuffer) SampleRate() int {
	return b.buf.SampleRate
}

// Degraded reports whether the last refill was short.
func (b *SampleBuffer) Degraded() bool {
	return b.degraded
}
