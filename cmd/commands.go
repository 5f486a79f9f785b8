package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/0xlemi/stringtuner/internal/audio"
	"github.com/0xlemi/stringtuner/internal/config"
	"github.com/0xlemi/stringtuner/internal/detect"
	"github.com/0xlemi/stringtuner/internal/observe"
	"github.com/0xlemi/stringtuner/internal/pitch"
	"github.com/0xlemi/stringtuner/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// toneAmplitude keeps the synthetic tone well above the confidence bar.
const toneAmplitude = 0.8

// app carries state shared by subcommands once flags are parsed.
type app struct {
	configPath  string
	logLevel    string
	logFile     string
	backend     string
	device      string
	stringID    string
	method      string
	metricsAddr string
	toneFreq    float64
	gain        float64
	realtime    bool
	hop         int

	cfg    *config.Config
	logger *slog.Logger
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stderr: stderr}

	root := &cobra.Command{
		Use:           "stringtuner",
		Short:         "Guitar tuner for the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", os.Getenv("STRINGTUNER_CONFIG"), "path to a YAML config file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFile, "log-file", "", "write logs to this file")
	pf.StringVar(&a.stringID, "string", "", "target string: E2, A2, D3, G3, B3, E4")
	pf.StringVar(&a.method, "method", "", "detection method: autocorrelation, spectral")

	root.AddCommand(
		newListenCmd(a),
		newReplayCmd(a),
		newNoteCmd(a),
		newTuningsCmd(a),
	)
	return root
}

// load reads the config and applies explicitly set flags over it.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = config.LogLevel(a.logLevel)
	}
	if flags.Changed("backend") {
		cfg.Audio.Backend = config.Backend(a.backend)
	}
	if flags.Changed("device") {
		cfg.Audio.Device = a.device
	}
	if flags.Changed("string") {
		cfg.Tuning.String = a.stringID
	}
	if flags.Changed("method") {
		cfg.Detector.Method = a.method
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.ListenAddr = a.metricsAddr
	}
	if flags.Changed("tone-freq") {
		cfg.Audio.ToneFrequency = a.toneFreq
	}
	if flags.Changed("gain") {
		cfg.Audio.Gain = a.gain
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg

	var logOut io.Writer = a.stderr
	if a.logFile != "" {
		f, err := os.OpenFile(a.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		cobra.OnFinalize(func() { f.Close() })
		logOut = f
	} else if cmd.Name() == "listen" {
		// The TUI owns the terminal.
		logOut = io.Discard
	}
	a.logger = newLogger(logOut, cfg.SlogLevel())
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) detector() (pitch.Detector, error) {
	return pitch.NewDetector(a.cfg.Detector.Method, a.cfg.Detector.Pitch())
}

func (a *app) mapper() pitch.Mapper {
	return pitch.Mapper{A4: a.cfg.Tuning.A4}
}

// newCapturer builds the live input selected by the config.
func (a *app) newCapturer() (audio.Capturer, error) {
	c := a.cfg.Audio
	window := a.cfg.Detector.WindowSize
	switch c.Backend {
	case config.BackendPortAudio:
		return audio.NewPortAudioCapturer(window, c.SampleRate, c.Channels, a.logger), nil
	case config.BackendMalgo:
		return audio.NewMalgoCapturer(window, c.SampleRate, c.Device, a.logger), nil
	case config.BackendTone:
		return audio.NewToneCapturer(c.ToneFrequency, toneAmplitude, c.SampleRate), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

func newListenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Tune from a live input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.listen(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&a.backend, "backend", "", "capture backend: portaudio, malgo, tone")
	f.StringVar(&a.device, "device", "", "capture device name substring (malgo)")
	f.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.Float64Var(&a.toneFreq, "tone-freq", 0, "frequency of the tone backend in Hz")
	f.Float64Var(&a.gain, "gain", 0, "input amplification")
	return cmd
}

func (a *app) listen(ctx context.Context) error {
	cfg := a.cfg

	if cfg.Metrics.ListenAddr != "" {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				a.logger.Warn("metrics shutdown", "err", err)
			}
		}()
	}

	src, err := a.newCapturer()
	if err != nil {
		return err
	}
	det, err := a.detector()
	if err != nil {
		return err
	}

	model := ui.NewModel(pitch.Standard, pitch.StringID(cfg.Tuning.String), a.mapper(), string(cfg.Audio.Backend))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	loop := detect.New(src, det,
		func(hz float64) {
			p.Send(ui.FrequencyMsg{Hz: hz, At: time.Now()})
		},
		detect.WithLevelHandler(func(rms, db float64) {
			p.Send(ui.LevelMsg{RMS: rms, DB: db})
		}),
		detect.WithInterval(cfg.Loop.Interval),
		detect.WithWindowSize(cfg.Detector.WindowSize),
		detect.WithGain(float32(cfg.Audio.Gain)),
		detect.WithLogger(a.logger),
		detect.WithSourceName(string(cfg.Audio.Backend)),
	)
	if err := loop.Start(ctx); err != nil {
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			return fmt.Errorf("%w (try --backend tone)", err)
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		if errors.Is(err, tea.ErrInterrupted) || (errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-loop.Done():
			p.Send(ui.ErrMsg{Err: errors.New("input stopped")})
		case <-gctx.Done():
		}
		return nil
	})
	if addr := cfg.Metrics.ListenAddr; addr != "" {
		g.Go(func() error {
			return observe.Serve(gctx, addr, observe.Handler(nil), a.logger)
		})
	}

	err = g.Wait()
	return errors.Join(err, loop.Stop())
}

func newReplayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay FILE.wav",
		Short: "Run detection over a WAV file and print each reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.replay(ctx, cmd.OutOrStdout(), args[0], cmd.Flags().Changed("string"))
		},
	}
	f := cmd.Flags()
	f.BoolVar(&a.realtime, "realtime", false, "pace analysis at the file's playback speed")
	f.IntVar(&a.hop, "hop", 0, "frames advanced per window (default half the window)")
	f.Float64Var(&a.gain, "gain", 0, "input amplification")
	return cmd
}

func (a *app) replay(ctx context.Context, out io.Writer, path string, fixedTarget bool) error {
	cfg := a.cfg
	det, err := a.detector()
	if err != nil {
		return err
	}

	src := audio.NewWavCapturer(path, cfg.Detector.WindowSize, a.hop, a.logger)
	interval := time.Duration(0)
	if a.realtime {
		info, err := audio.ProbeWav(path)
		if err != nil {
			return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
		}
		interval = time.Duration(src.Hop()) * time.Second / time.Duration(info.SampleRate)
	}

	mapper := a.mapper()
	fixed, _ := pitch.Standard.Lookup(pitch.StringID(cfg.Tuning.String))
	var freqs []float64

	loop := detect.New(src, det,
		func(hz float64) {
			target := fixed
			if !fixedTarget {
				target, _ = pitch.Standard.Closest(hz)
			}
			r, err := target.ReadWith(mapper, hz)
			if err != nil {
				a.logger.Warn("reading failed", "hz", hz, "err", err)
				return
			}
			freqs = append(freqs, hz)
			fmt.Fprintf(out, "%8.3fs  %8.2f Hz  %-4s  %+7.1f cents from %s  %s\n",
				src.Position().Seconds(), hz, r.Note, r.Cents, target.ID, r.Status)
		},
		detect.WithInterval(interval),
		detect.WithWindowSize(cfg.Detector.WindowSize),
		detect.WithGain(float32(cfg.Audio.Gain)),
		detect.WithLogger(a.logger),
		detect.WithSourceName("wav"),
	)
	if err := loop.Start(ctx); err != nil {
		return err
	}
	select {
	case <-loop.Done():
	case <-ctx.Done():
	}
	if err := loop.Stop(); err != nil {
		return err
	}

	if len(freqs) == 0 {
		fmt.Fprintln(out, "no pitch detected")
		return nil
	}
	sort.Float64s(freqs)
	median := freqs[len(freqs)/2]
	note, cents, err := mapper.Nearest(median)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d readings, median %.2f Hz (%s %+.1f cents)\n", len(freqs), median, note, cents)
	return nil
}

func newNoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "note HZ",
		Short: "Show the note and tuning offset for a frequency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var hz float64
			if _, err := fmt.Sscan(args[0], &hz); err != nil {
				return fmt.Errorf("parse frequency %q: %w", args[0], err)
			}
			return a.note(cmd.OutOrStdout(), hz, cmd.Flags().Changed("string"))
		},
	}
}

func (a *app) note(out io.Writer, hz float64, fixedTarget bool) error {
	mapper := a.mapper()
	note, cents, err := mapper.Nearest(hz)
	if err != nil {
		return err
	}

	var target pitch.TuningNote
	if fixedTarget {
		target, _ = pitch.Standard.Lookup(pitch.StringID(a.cfg.Tuning.String))
	} else if target, err = pitch.Standard.Closest(hz); err != nil {
		return err
	}
	r, err := target.ReadWith(mapper, hz)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%.2f Hz is %s (MIDI %d, %+.1f cents)\n", hz, note, note.MIDI, cents)
	fmt.Fprintf(out, "String %s (%.2f Hz): %+.1f cents, %s\n", target.ID, target.Frequency, r.Cents, r.Status)
	return nil
}

func newTuningsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tunings",
		Short: "List the standard tuning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			mapper := a.mapper()
			fmt.Fprintf(out, "%s tuning (A4 = %.1f Hz)\n", pitch.Standard.Name, a.cfg.Tuning.A4)
			for i, s := range pitch.Standard.Strings {
				note, cents, err := mapper.Nearest(s.Frequency)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %d  %-2s  %-3s %7.2f Hz  (%s %+.1f cents)\n", i+1, s.Label, s.ID, s.Frequency, note, cents)
			}
			return nil
		},
	}
}
