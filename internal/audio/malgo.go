package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// MalgoCapturer captures mono float32 audio through miniaudio. It is the
// alternative backend for systems where PortAudio is not installed.
type MalgoCapturer struct {
	mu          sync.Mutex
	isCapturing bool
	ctx         *malgo.AllocatedContext
	device      *malgo.Device
	ring        *Ring
	sampleRate  int
	deviceName  string
	logger      *slog.Logger
}

// NewMalgoCapturer creates a capturer. deviceName selects the first capture
// device whose name contains it (case-insensitive); empty means the default
// device.
func NewMalgoCapturer(windowSize, sampleRate int, deviceName string, logger *slog.Logger) *MalgoCapturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoCapturer{
		ring:       NewRing(windowSize),
		sampleRate: sampleRate,
		deviceName: deviceName,
		logger:     logger,
	}
}

// Start initializes the miniaudio context and capture device.
func (c *MalgoCapturer) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isCapturing {
		return ErrAlreadyCapturing
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: init malgo context: %v", ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if c.deviceName != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			c.logger.Warn("malgo device enumeration failed, using default", "err", err)
		} else {
			names := make([]string, len(infos))
			for i := range infos {
				names[i] = infos[i].Name()
			}
			if i := matchDevice(names, c.deviceName); i >= 0 {
				deviceConfig.Capture.DeviceID = infos[i].ID.Pointer()
				c.logger.Info("malgo capture device selected", "device", names[i])
			} else {
				c.logger.Warn("no capture device matches, using default",
					"device", c.deviceName,
					"available", names,
				)
			}
		}
	}

	onRecvFrames := func(_, in []byte, frameCount uint32) {
		if len(in) == 0 {
			return
		}
		samples := unsafe.Slice((*float32)(unsafe.Pointer(&in[0])), int(frameCount))
		c.ring.Write(samples)
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%w: init capture device: %v", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%w: start capture device: %v", ErrDeviceUnavailable, err)
	}

	// The device may not honour the requested rate.
	if rate := int(device.SampleRate()); rate > 0 {
		c.sampleRate = rate
	}

	c.ring.Reset()
	c.ctx = mctx
	c.device = device
	c.isCapturing = true
	c.logger.Info("malgo capture started", "sample_rate", c.sampleRate)
	return nil
}

// Stop uninitializes the device and context. It is a no-op when not
// capturing.
func (c *MalgoCapturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCapturing {
		return nil
	}

	c.device.Uninit()
	c.device = nil
	err := c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	c.isCapturing = false
	c.logger.Info("malgo capture stopped")
	if err != nil {
		return fmt.Errorf("uninit malgo context: %w", err)
	}
	return nil
}

// Read copies the latest window into dst
func (c *MalgoCapturer) Read(dst []float32) (int, error) {
	if !c.IsCapturing() {
		return 0, ErrNotCapturing
	}
	return c.ring.Latest(dst), nil
}

// SampleRate returns the device sample rate, which is only final after Start.
func (c *MalgoCapturer) SampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampleRate
}

// IsCapturing returns true if currently capturing audio
func (c *MalgoCapturer) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCapturing
}

// matchDevice returns the index of the first name containing want, ignoring
// case, or -1.
func matchDevice(names []string, want string) int {
	want = strings.ToLower(want)
	for i, name := range names {
		if strings.Contains(strings.ToLower(name), want) {
			return i
		}
	}
	return -1
}
