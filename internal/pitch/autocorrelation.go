package pitch

import (
	"fmt"

	"github.com/0xlemi/stringtuner/internal/audio"
)

// Autocorrelator estimates pitch from the lag that maximizes the normalized
// autocorrelation of the window. It keeps a scratch slice and must not be
// shared between goroutines.
type Autocorrelator struct {
	cfg    Config
	gate   Gate
	minLag int
	maxLag int
	corr   []float64 // indexed by lag
}

// NewAutocorrelator validates cfg and allocates the scan buffer.
func NewAutocorrelator(cfg Config) (*Autocorrelator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lo, hi := cfg.lagRange()
	return &Autocorrelator{
		cfg:    cfg,
		gate:   Gate{Threshold: cfg.RMSThreshold},
		minLag: lo,
		maxLag: hi,
		corr:   make([]float64, hi+1),
	}, nil
}

// LagRange returns the inclusive lag bounds scanned per window.
func (a *Autocorrelator) LagRange() (minLag, maxLag int) {
	return a.minLag, a.maxLag
}

// Estimate scans lags minLag..maxLag. Each correlation is the mean product of
// the overlapping samples. A pitch is reported only when the best value is
// strictly above the confidence threshold and the reported lag is a peak:
// a lag on the edge of the range whose outside neighbour correlates better
// belongs to a period the range cannot hold.
func (a *Autocorrelator) Estimate(buffer *audio.AudioBuffer) (Estimate, error) {
	if err := checkBuffer(buffer, a.cfg.WindowSize); err != nil {
		return Estimate{}, fmt.Errorf("autocorrelation: %w", err)
	}

	samples := buffer.Samples
	est := Estimate{RMS: RMS(samples)}
	if est.RMS < a.gate.Threshold {
		est.Gated = true
		return est, nil
	}

	bestLag := -1
	best := 0.0
	for lag := a.minLag; lag <= a.maxLag; lag++ {
		c := meanProduct(samples, lag)
		a.corr[lag] = c
		if bestLag < 0 || c > best {
			best = c
			bestLag = lag
		}
	}
	est.LagsScanned = a.maxLag - a.minLag + 1
	est.Correlation = best

	if bestLag < 0 || !(best > a.cfg.ConfidenceThreshold) {
		return est, nil
	}

	lag := a.fundamentalLag(bestLag, best)
	if a.outsideRange(samples, lag) {
		return est, nil
	}
	est.Lag = lag
	est.Frequency = float64(buffer.SampleRate) / float64(lag)
	return est, nil
}

// outsideRange reports whether lag sits on an edge of the scanned range
// while the correlation keeps rising past it.
func (a *Autocorrelator) outsideRange(samples []float32, lag int) bool {
	c := a.corr[lag]
	switch lag {
	case a.minLag:
		return meanProduct(samples, lag-1) > c
	case a.maxLag:
		return meanProduct(samples, lag+1) > c
	}
	return false
}

func meanProduct(samples []float32, lag int) float64 {
	n := len(samples)
	sum := 0.0
	for i := 0; i < n-lag; i++ {
		sum += float64(samples[i]) * float64(samples[i+lag])
	}
	return sum / float64(n-lag)
}

// fundamentalLag returns the earliest interior local peak before bestLag that
// reaches OctaveGuard*best. Multiples of the period correlate almost as well
// as the period itself, so the global maximum can land on one of them.
func (a *Autocorrelator) fundamentalLag(bestLag int, best float64) int {
	if a.cfg.OctaveGuard <= 0 {
		return bestLag
	}
	floor := a.cfg.OctaveGuard * best
	for lag := a.minLag + 1; lag < bestLag; lag++ {
		c := a.corr[lag]
		if c >= floor && c >= a.corr[lag-1] && c >= a.corr[lag+1] {
			return lag
		}
	}
	return bestLag
}
