package pitch

import (
	"errors"
	"math"
	"testing"

	"github.com/0xlemi/stringtuner/internal/audio"
)

// generateSine creates a sine wave buffer for tests.
func generateSine(freq float64, sampleRate, n int, amplitude float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// generatePluck approximates a plucked string: a fundamental with two
// decaying harmonics.
func generatePluck(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = float32(0.5*math.Sin(2*math.Pi*freq*t) +
			0.35*math.Sin(2*math.Pi*2*freq*t) +
			0.2*math.Sin(2*math.Pi*3*freq*t))
	}
	return out
}

func newAutocorrelator(t *testing.T, cfg Config) *Autocorrelator {
	t.Helper()
	a, err := NewAutocorrelator(cfg)
	if err != nil {
		t.Fatalf("NewAutocorrelator: %v", err)
	}
	return a
}

func assertWithin(t *testing.T, got, want, tolerance float64) {
	t.Helper()
	if diff := math.Abs(got-want) / want; diff > tolerance {
		t.Errorf("got %.2f Hz, want %.2f Hz (off by %.2f%%)", got, want, diff*100)
	}
}

func TestAutocorrelatorSines(t *testing.T) {
	tests := []struct {
		name       string
		freq       float64
		sampleRate int
		minLag     int
		amplitude  float64
	}{
		{"E2", 82.41, 44100, 80, 0.8},
		{"A2", 110, 44100, 80, 0.8},
		{"D3", 146.83, 44100, 80, 0.8},
		{"G3", 196, 44100, 80, 0.8},
		{"B3", 246.94, 44100, 80, 0.8},
		{"E4", 329.63, 44100, 80, 0.8},
		{"A4", 440, 44100, 80, 0.8},
		{"E2 at 48k", 82.41, 48000, 80, 0.8},
		{"A4 at 48k", 440, 48000, 80, 0.8},
		{"80 Hz", 80, 44100, 40, 0.8},
		{"600 Hz", 600, 44100, 40, 0.5},
		{"800 Hz", 800, 44100, 40, 0.5},
		{"1 kHz", 1000, 44100, 40, 0.8},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cfg.MinLag = tt.minLag
			a := newAutocorrelator(t, cfg)

			buf := &audio.AudioBuffer{
				Samples:    generateSine(tt.freq, tt.sampleRate, cfg.WindowSize, tt.amplitude),
				SampleRate: tt.sampleRate,
			}
			est, err := a.Estimate(buf)
			if err != nil {
				t.Fatalf("Estimate: %v", err)
			}
			if !est.Found() {
				t.Fatalf("no pitch found (correlation %.3f)", est.Correlation)
			}
			assertWithin(t, est.Frequency, tt.freq, 0.02)
		})
	}
}

func TestAutocorrelatorHarmonicRichSignal(t *testing.T) {
	for _, freq := range []float64{82.41, 110, 146.83, 196, 246.94, 329.63} {
		a := newAutocorrelator(t, DefaultConfig())
		est, err := a.Estimate(&audio.AudioBuffer{
			Samples:    generatePluck(freq, 44100, 2048),
			SampleRate: 44100,
		})
		if err != nil {
			t.Fatalf("Estimate(%v): %v", freq, err)
		}
		assertWithin(t, est.Frequency, freq, 0.02)
	}
}

func TestAutocorrelatorWithoutOctaveGuardFindsSubharmonic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OctaveGuard = 0
	a := newAutocorrelator(t, cfg)

	est, err := a.Estimate(&audio.AudioBuffer{
		Samples:    generatePluck(196, 44100, 2048),
		SampleRate: 44100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !est.Found() || est.Frequency > 100 {
		t.Fatalf("got %.2f Hz, want the strict maximum below 100 Hz", est.Frequency)
	}
}

func TestAutocorrelatorSilenceIsGated(t *testing.T) {
	cfg := DefaultConfig()
	a := newAutocorrelator(t, cfg)

	tests := map[string][]float32{
		"zeros": make([]float32, cfg.WindowSize),
		"quiet": generateSine(220, 44100, cfg.WindowSize, 0.01),
	}
	for name, samples := range tests {
		t.Run(name, func(t *testing.T) {
			est, err := a.Estimate(&audio.AudioBuffer{Samples: samples, SampleRate: 44100})
			if err != nil {
				t.Fatal(err)
			}
			if !est.Gated {
				t.Error("buffer was not gated")
			}
			if est.Found() {
				t.Errorf("found %.2f Hz in silence", est.Frequency)
			}
			if est.LagsScanned != 0 {
				t.Errorf("LagsScanned = %d, want 0", est.LagsScanned)
			}
		})
	}
}

func TestAutocorrelatorLowConfidence(t *testing.T) {
	cfg := DefaultConfig()
	a := newAutocorrelator(t, cfg)

	// Loud enough to pass the gate, too quiet to clear the confidence bar.
	est, err := a.Estimate(&audio.AudioBuffer{
		Samples:    generateSine(220, 44100, cfg.WindowSize, 0.3),
		SampleRate: 44100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if est.Gated || est.Found() {
		t.Fatalf("got gated=%v freq=%v, want a scanned miss", est.Gated, est.Frequency)
	}
	lo, hi := a.LagRange()
	if est.LagsScanned != hi-lo+1 {
		t.Errorf("LagsScanned = %d, want %d", est.LagsScanned, hi-lo+1)
	}
}

func TestAutocorrelatorPeriodBeyondLagRange(t *testing.T) {
	cfg := DefaultConfig()
	a := newAutocorrelator(t, cfg)

	tests := []struct {
		freq  float64
		found bool
	}{
		{40, false}, // period 1102 samples, past the 1024 lag cap
		{60, true},
		{75, true},
	}
	for _, tt := range tests {
		est, err := a.Estimate(&audio.AudioBuffer{
			Samples:    generateSine(tt.freq, 44100, cfg.WindowSize, 0.8),
			SampleRate: 44100,
		})
		if err != nil {
			t.Fatalf("Estimate(%v): %v", tt.freq, err)
		}
		if !tt.found {
			if est.Found() {
				t.Errorf("%v Hz: got %.2f Hz at lag %d, want no pitch", tt.freq, est.Frequency, est.Lag)
			}
			if est.Gated || !(est.Correlation > cfg.ConfidenceThreshold) {
				t.Errorf("%v Hz: gated=%v correlation=%v, want a confident scan rejected at the range edge",
					tt.freq, est.Gated, est.Correlation)
			}
			continue
		}
		if !est.Found() {
			t.Errorf("%v Hz: no pitch", tt.freq)
			continue
		}
		assertWithin(t, est.Frequency, tt.freq, 0.02)
	}
}

func TestAutocorrelatorExactThreshold(t *testing.T) {
	cfg := Config{
		WindowSize:          12,
		RMSThreshold:        0.01,
		ConfidenceThreshold: 0.1,
		MinLag:              2,
		MaxLag:              10,
	}
	a := newAutocorrelator(t, cfg)

	// Lag 2 sees one product of 1 over 10 pairs: exactly 0.1.
	samples := []float32{1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	est, err := a.Estimate(&audio.AudioBuffer{Samples: samples, SampleRate: 8000})
	if err != nil {
		t.Fatal(err)
	}
	if est.Correlation != 0.1 {
		t.Fatalf("best correlation = %v, want exactly 0.1", est.Correlation)
	}
	if est.Found() {
		t.Errorf("found %v Hz at exactly the threshold", est.Frequency)
	}

	// One more pulse lifts lag 2 to 0.2.
	samples[4] = 1
	est, err = a.Estimate(&audio.AudioBuffer{Samples: samples, SampleRate: 8000})
	if err != nil {
		t.Fatal(err)
	}
	if est.Lag != 2 || est.Frequency != 4000 {
		t.Errorf("got lag=%d freq=%v, want lag 2 at 4000 Hz", est.Lag, est.Frequency)
	}
}

func TestAutocorrelatorContractViolations(t *testing.T) {
	a := newAutocorrelator(t, DefaultConfig())

	tests := []struct {
		name string
		buf  *audio.AudioBuffer
		want error
	}{
		{"nil buffer", nil, ErrEmptyBuffer},
		{"empty buffer", &audio.AudioBuffer{SampleRate: 44100}, ErrEmptyBuffer},
		{"wrong length", &audio.AudioBuffer{Samples: make([]float32, 1024), SampleRate: 44100}, ErrWindowMismatch},
		{"zero rate", &audio.AudioBuffer{Samples: make([]float32, 2048)}, ErrInvalidSampleRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Estimate(tt.buf); !errors.Is(err, tt.want) {
				t.Fatalf("got err %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewAutocorrelatorRejectsShortWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 81
	if _, err := NewAutocorrelator(cfg); !errors.Is(err, ErrWindowTooShort) {
		t.Fatalf("got err %v, want ErrWindowTooShort", err)
	}
}

func TestLagRangeDefaultsAndClamps(t *testing.T) {
	tests := []struct {
		name           string
		window, maxLag int
		wantHi         int
	}{
		{"default half window", 2048, 0, 1024},
		{"explicit", 2048, 500, 500},
		{"clamped", 2048, 4000, 2046},
		{"short window", 100, 0, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.WindowSize = tt.window
			cfg.MaxLag = tt.maxLag
			lo, hi := newAutocorrelator(t, cfg).LagRange()
			if lo != 80 || hi != tt.wantHi {
				t.Errorf("LagRange = %d..%d, want 80..%d", lo, hi, tt.wantHi)
			}
		})
	}
}

func BenchmarkAutocorrelator(b *testing.B) {
	a, _ := NewAutocorrelator(DefaultConfig())
	buf := &audio.AudioBuffer{Samples: generateSine(110, 44100, 2048, 0.8), SampleRate: 44100}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.Estimate(buf)
	}
}
