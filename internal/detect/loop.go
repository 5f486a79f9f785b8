// Package detect drives pitch detection: on every frame it refills the
// analysis window from a capturer, runs the detector and reports the
// frequency to a callback.
package detect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xlemi/stringtuner/internal/audio"
	"github.com/0xlemi/stringtuner/internal/observe"
	"github.com/0xlemi/stringtuner/internal/pitch"
)

// DefaultInterval paces cycles at display refresh rate.
const DefaultInterval = time.Second / 60

// FrequencyHandler receives each detected frequency in Hz.
type FrequencyHandler func(hz float64)

// LevelHandler receives the input level of each analyzed window.
type LevelHandler func(rms, db float64)

// Option configures a Loop.
type Option func(*Loop)

// WithInterval sets the time between cycles. Zero runs cycles back to back.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d >= 0 {
			l.interval = d
		}
	}
}

// WithWindowSize sets the analysis window; it must match the detector's.
func WithWindowSize(n int) Option {
	return func(l *Loop) { l.windowSize = n }
}

// WithGain sets the input amplification applied on refill.
func WithGain(g float32) Option {
	return func(l *Loop) { l.gain = g }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithLevelHandler reports the RMS level of every window, including silent
// ones.
func WithLevelHandler(h LevelHandler) Option {
	return func(l *Loop) { l.onLevel = h }
}

// WithSourceName labels the session in logs and metrics.
func WithSourceName(name string) Option {
	return func(l *Loop) { l.sourceName = name }
}

// Loop owns one detection session at a time: the capturer handle, the
// analysis window and the cycle goroutine.
type Loop struct {
	src         audio.Capturer
	detector    pitch.Detector
	onFrequency FrequencyHandler
	onLevel     LevelHandler

	interval   time.Duration
	windowSize int
	gain       float32
	sourceName string
	logger     *slog.Logger
	metrics    *observe.Metrics

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	releaseErr error

	// delivering is set while a handler runs on the cycle goroutine.
	delivering atomic.Bool
}

// New creates a stopped loop.
func New(src audio.Capturer, detector pitch.Detector, onFrequency FrequencyHandler, opts ...Option) *Loop {
	l := &Loop{
		src:         src,
		detector:    detector,
		onFrequency: onFrequency,
		interval:    DefaultInterval,
		windowSize:  pitch.DefaultConfig().WindowSize,
		gain:        1,
		sourceName:  "input",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// Start acquires the source and begins cycling. It is a no-op while a session
// is running. If the source cannot be started it is released again and the
// error is returned.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	if err := l.src.Start(ctx); err != nil {
		if stopErr := l.src.Stop(); stopErr != nil {
			l.logger.Warn("release after failed start", "source", l.sourceName, "err", stopErr)
		}
		return fmt.Errorf("detect: start %s: %w", l.sourceName, err)
	}

	buf, err := audio.NewSampleBuffer(l.windowSize, l.src.SampleRate())
	if err != nil {
		if stopErr := l.src.Stop(); stopErr != nil {
			l.logger.Warn("release after failed start", "source", l.sourceName, "err", stopErr)
		}
		return fmt.Errorf("detect: %w", err)
	}
	buf.SetGain(l.gain)

	if l.cancel != nil {
		l.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.releaseErr = nil
	l.running = true

	l.metrics.SessionStarted(ctx, l.sourceName)
	l.logger.Info("detection started",
		"source", l.sourceName,
		"sample_rate", buf.SampleRate(),
		"window", buf.Len(),
		"interval", l.interval,
	)

	go l.run(runCtx, buf, l.done)
	return nil
}

// Stop cancels the session and waits for the cycle goroutine to release the
// source. No callbacks are delivered after it returns. Stop is safe to call
// when nothing is running and returns nil on repeated calls.
//
// Called from a handler, Stop only cancels: the session ends once the
// handler returns, and a later Stop or Done observes the release.
func (l *Loop) Stop() error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	if cancel == nil {
		l.mu.Unlock()
		return nil
	}
	if l.delivering.Load() {
		l.mu.Unlock()
		cancel()
		return nil
	}
	l.cancel = nil
	l.mu.Unlock()

	cancel()
	<-done

	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.releaseErr
	l.releaseErr = nil
	return err
}

// Running reports whether a session is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Done is closed when the current session ends, whether by Stop, context
// cancellation or source exhaustion. It is closed already when no session
// was ever started.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return l.done
}

func (l *Loop) run(ctx context.Context, buf *audio.SampleBuffer, done chan struct{}) {
	defer func() {
		err := l.src.Stop()
		if err != nil {
			l.logger.Warn("release source", "source", l.sourceName, "err", err)
		}
		l.mu.Lock()
		l.running = false
		l.releaseErr = err
		l.mu.Unlock()
		l.metrics.SessionEnded(context.WithoutCancel(ctx), l.sourceName)
		l.logger.Info("detection stopped", "source", l.sourceName)
		close(done)
	}()

	var tick <-chan time.Time
	if l.interval > 0 {
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if !l.cycle(ctx, buf) {
			return
		}
		if tick == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-tick:
		}
	}
}

// cycle runs one refill and estimate. It returns false when the session
// should end.
func (l *Loop) cycle(ctx context.Context, buf *audio.SampleBuffer) bool {
	start := time.Now()

	degraded, err := buf.Refill(l.src)
	switch {
	case errors.Is(err, io.EOF):
		l.logger.Info("source exhausted", "source", l.sourceName)
		return false
	case errors.Is(err, audio.ErrNotCapturing):
		l.logger.Warn("source stopped underneath the loop", "source", l.sourceName)
		return false
	case err != nil:
		// The window is zeroed; the next tick tries again.
		l.logger.Warn("read failed", "source", l.sourceName, "err", err)
		l.metrics.RecordCycle(ctx, observe.OutcomeError, time.Since(start))
		return true
	}
	if degraded {
		l.logger.Debug("short read, window zero-padded", "source", l.sourceName)
		l.metrics.RecordDegraded(ctx)
	}

	window := buf.Buffer()
	if l.onLevel != nil && ctx.Err() == nil {
		rms, db := pitch.Level(window.Samples)
		l.deliver(func() { l.onLevel(rms, db) })
	}

	est, err := l.detector.Estimate(window)
	if err != nil {
		l.logger.Error("estimate failed", "source", l.sourceName, "err", err)
		l.metrics.RecordCycle(ctx, observe.OutcomeError, time.Since(start))
		return false
	}

	switch {
	case est.Gated:
		l.metrics.RecordCycle(ctx, observe.OutcomeGated, time.Since(start))
	case !est.Found():
		l.metrics.RecordCycle(ctx, observe.OutcomeNoPitch, time.Since(start))
	default:
		l.metrics.RecordCycle(ctx, observe.OutcomeDetected, time.Since(start))
		l.metrics.RecordFrequency(ctx, est.Frequency)
		if ctx.Err() != nil {
			return false
		}
		l.logger.Debug("pitch detected",
			"hz", est.Frequency,
			"lag", est.Lag,
			"correlation", est.Correlation,
		)
		if l.onFrequency != nil {
			l.deliver(func() { l.onFrequency(est.Frequency) })
		}
	}
	return true
}

func (l *Loop) deliver(handler func()) {
	l.delivering.Store(true)
	defer l.delivering.Store(false)
	handler()
}
