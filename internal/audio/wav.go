package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/wav"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// WavCapturer replays a WAV file as if it were a live input. Every Read
// advances the file by one hop and returns the latest window, so consecutive
// windows overlap by windowSize-hop samples.
type WavCapturer struct {
	mu          sync.Mutex
	isCapturing bool
	path        string
	file        *os.File
	wav         *wav.Wav
	ring        *Ring
	hop         int
	channels    int
	sampleRate  int
	remaining   int // interleaved samples left in the data chunk
	frames      int // frames consumed so far
	logger      *slog.Logger
}

// NewWavCapturer creates a replay source for path. A hop of zero or less
// defaults to half the window.
func NewWavCapturer(path string, windowSize, hop int, logger *slog.Logger) *WavCapturer {
	if hop <= 0 {
		hop = windowSize / 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WavCapturer{
		path:   path,
		ring:   NewRing(windowSize),
		hop:    hop,
		logger: logger,
	}
}

// Start opens the file and parses its header.
func (c *WavCapturer) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isCapturing {
		return ErrAlreadyCapturing
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", ErrDeviceUnavailable, c.path, err)
	}
	w, err := wav.New(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: parse %q: %v", ErrDeviceUnavailable, c.path, err)
	}
	if w.AudioFormat != wavFormatPCM && w.AudioFormat != wavFormatFloat {
		_ = f.Close()
		return fmt.Errorf("%w: %q: unsupported wav format %d", ErrDeviceUnavailable, c.path, w.AudioFormat)
	}
	if w.SampleRate == 0 || w.NumChannels == 0 {
		_ = f.Close()
		return fmt.Errorf("%w: %q has no audio format", ErrDeviceUnavailable, c.path)
	}

	c.file = f
	c.wav = w
	c.sampleRate = int(w.SampleRate)
	c.channels = int(w.NumChannels)
	c.remaining = w.Samples
	c.frames = 0
	c.ring.Reset()
	c.isCapturing = true
	c.logger.Info("wav replay started",
		"path", c.path,
		"sample_rate", c.sampleRate,
		"channels", c.channels,
		"duration", w.Duration,
	)
	return nil
}

// Stop closes the file. It is a no-op when not replaying.
func (c *WavCapturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCapturing {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	c.wav = nil
	c.isCapturing = false
	if err != nil {
		return fmt.Errorf("close %q: %w", c.path, err)
	}
	return nil
}

// Read advances the replay by one hop and copies the latest window into dst.
// It returns io.EOF once the data chunk is exhausted.
func (c *WavCapturer) Read(dst []float32) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCapturing {
		return 0, ErrNotCapturing
	}
	if c.remaining <= 0 {
		return 0, io.EOF
	}

	want := c.hop * c.channels
	if want > c.remaining {
		want = c.remaining
	}
	floats, err := c.wav.ReadFloats(want)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			c.remaining = 0
			return 0, io.EOF
		}
		return 0, fmt.Errorf("read %q: %w", c.path, err)
	}
	if len(floats) == 0 {
		c.remaining = 0
		return 0, io.EOF
	}
	c.remaining -= len(floats)
	c.frames += len(floats) / c.channels

	// go-dsp scales integer PCM to [0, 1]; the detectors expect [-1, 1].
	if c.wav.AudioFormat == wavFormatPCM {
		for i, v := range floats {
			floats[i] = 2*v - 1
		}
	}

	c.ring.Write(downmix(floats, c.channels))
	return c.ring.Latest(dst), nil
}

// SampleRate returns the file's sample rate, known after Start.
func (c *WavCapturer) SampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampleRate
}

// Position returns how far into the file the replay has read.
func (c *WavCapturer) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sampleRate == 0 {
		return 0
	}
	return time.Duration(c.frames) * time.Second / time.Duration(c.sampleRate)
}

// Hop returns the number of new frames consumed per Read.
func (c *WavCapturer) Hop() int {
	return c.hop
}

// IsCapturing returns true while the file is open
func (c *WavCapturer) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCapturing
}

// WavInfo describes a WAV file's format.
type WavInfo struct {
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// ProbeWav reads only the header of the file at path.
func ProbeWav(path string) (WavInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WavInfo{}, err
	}
	defer f.Close()

	w, err := wav.New(f)
	if err != nil {
		return WavInfo{}, fmt.Errorf("parse %q: %w", path, err)
	}
	return WavInfo{
		SampleRate: int(w.SampleRate),
		Channels:   int(w.NumChannels),
		Duration:   w.Duration,
	}, nil
}
