package pitch

import (
	"fmt"
	"math/cmplx"

	"github.com/0xlemi/stringtuner/internal/audio"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Spectral implements pitch detection using FFT. It picks the strongest bin
// in [MinFrequency, MaxFrequency] and refines it by parabolic interpolation.
type Spectral struct {
	cfg        Config
	gate       Gate
	window     []float64
	windowSum  float64
	noiseFloor float64 // minimum peak amplitude
	scratch    []float64
}

// NewSpectral creates a spectral detector for cfg.WindowSize samples.
func NewSpectral(cfg Config) (*Spectral, error) {
	if cfg.WindowSize < 4 {
		return nil, fmt.Errorf("%w: window size %d", ErrWindowTooShort, cfg.WindowSize)
	}
	if !(cfg.MinFrequency > 0) || cfg.MaxFrequency <= cfg.MinFrequency {
		return nil, fmt.Errorf("%w: search range %v-%v Hz", ErrInvalidFrequency, cfg.MinFrequency, cfg.MaxFrequency)
	}
	hann := window.Hann(cfg.WindowSize)
	sum := 0.0
	for _, w := range hann {
		sum += w
	}
	return &Spectral{
		cfg:        cfg,
		gate:       Gate{Threshold: cfg.RMSThreshold},
		window:     hann,
		windowSum:  sum,
		noiseFloor: 0.01,
		scratch:    make([]float64, cfg.WindowSize),
	}, nil
}

// Estimate analyzes an audio buffer and returns the detected frequency
func (d *Spectral) Estimate(buffer *audio.AudioBuffer) (Estimate, error) {
	if err := checkBuffer(buffer, d.cfg.WindowSize); err != nil {
		return Estimate{}, fmt.Errorf("spectral: %w", err)
	}

	est := Estimate{RMS: RMS(buffer.Samples)}
	if est.RMS < d.gate.Threshold {
		est.Gated = true
		return est, nil
	}

	for i, s := range buffer.Samples {
		d.scratch[i] = float64(s) * d.window[i]
	}
	spectrum := fft.FFTReal(d.scratch)

	n := len(spectrum)
	binSizeHz := float64(buffer.SampleRate) / float64(n)
	minBin := int(d.cfg.MinFrequency / binSizeHz)
	if minBin < 1 {
		minBin = 1 // skip DC
	}
	maxBin := int(d.cfg.MaxFrequency / binSizeHz)
	if maxBin > n/2-2 {
		maxBin = n/2 - 2
	}
	if maxBin < minBin {
		return est, nil
	}
	est.LagsScanned = maxBin - minBin + 1

	peakBin := minBin
	peakMag := 0.0
	for k := minBin; k <= maxBin; k++ {
		if mag := cmplx.Abs(spectrum[k]); mag > peakMag {
			peakMag = mag
			peakBin = k
		}
	}

	// A full-scale sine of amplitude A peaks at A*windowSum/2.
	est.Correlation = 2 * peakMag / d.windowSum
	if est.Correlation < d.noiseFloor {
		return est, nil
	}

	// x = 0.5 * (R[k-1] - R[k+1]) / (R[k-1] - 2*R[k] + R[k+1]) + k
	prev := cmplx.Abs(spectrum[peakBin-1])
	next := cmplx.Abs(spectrum[peakBin+1])
	delta := 0.0
	if denom := prev - 2*peakMag + next; denom != 0 {
		delta = 0.5 * (prev - next) / denom
	}
	est.Frequency = (float64(peakBin) + delta) * binSizeHz
	return est, nil
}
