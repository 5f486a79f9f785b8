package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// framesPerBuffer is the PortAudio callback size. It is kept well below the
// analysis window so the ring always holds fresh audio.
const framesPerBuffer = 512

var ErrAlreadyCapturing = errors.New("audio: capture already started")

// PortAudioCapturer implements audio capture using PortAudio
type PortAudioCapturer struct {
	mu          sync.Mutex
	isCapturing bool
	stream      *portaudio.Stream
	ring        *Ring
	sampleRate  int
	channels    int
	logger      *slog.Logger
}

// NewPortAudioCapturer creates a capturer for the default input device. The
// ring keeps the latest windowSize mono samples. PortAudio itself is not
// touched until Start.
func NewPortAudioCapturer(windowSize, sampleRate, channels int, logger *slog.Logger) *PortAudioCapturer {
	if channels < 1 {
		channels = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioCapturer{
		ring:       NewRing(windowSize),
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger,
	}
}

// Start initializes PortAudio and opens the default input stream. Anything
// acquired before a failure is released before returning.
func (c *PortAudioCapturer) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isCapturing {
		return ErrAlreadyCapturing
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: portaudio initialize: %v", ErrDeviceUnavailable, err)
	}

	stream, err := portaudio.OpenDefaultStream(
		c.channels, // input channels
		0,          // no output
		float64(c.sampleRate),
		framesPerBuffer,
		c.processAudio,
	)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: open default stream: %v", ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: start stream: %v", ErrDeviceUnavailable, err)
	}

	c.ring.Reset()
	c.stream = stream
	c.isCapturing = true
	c.logger.Info("portaudio capture started",
		"sample_rate", c.sampleRate,
		"channels", c.channels,
	)
	return nil
}

// Stop stops and closes the stream and terminates PortAudio. It is a no-op
// when not capturing.
func (c *PortAudioCapturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCapturing {
		return nil
	}

	var errs []error
	if err := c.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop stream: %w", err))
	}
	if err := c.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate: %w", err))
	}

	c.stream = nil
	c.isCapturing = false
	c.logger.Info("portaudio capture stopped")
	return errors.Join(errs...)
}

// processAudio is the callback function for audio processing
func (c *PortAudioCapturer) processAudio(in, _ []float32) {
	c.ring.Write(downmix(in, c.channels))
}

// Read copies the latest window into dst
func (c *PortAudioCapturer) Read(dst []float32) (int, error) {
	if !c.IsCapturing() {
		return 0, ErrNotCapturing
	}
	return c.ring.Latest(dst), nil
}

// SampleRate returns the stream sample rate
func (c *PortAudioCapturer) SampleRate() int {
	return c.sampleRate
}

// IsCapturing returns true if currently capturing audio
func (c *PortAudioCapturer) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCapturing
}
