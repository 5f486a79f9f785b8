package pitch

import "math"

// silenceDB is reported for buffers with no measurable energy.
const silenceDB = -100.0

// Gate rejects buffers whose RMS level is below Threshold.
type Gate struct {
	Threshold float64
}

// IsSignalPresent reports whether RMS(samples) >= Threshold.
func (g Gate) IsSignalPresent(samples []float32) bool {
	return RMS(samples) >= g.Threshold
}

// RMS returns the root mean square of samples, 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	sumSquares := 0.0
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// Level returns the RMS and its dBFS value, floored at -100 dB.
func Level(samples []float32) (rms, db float64) {
	rms = RMS(samples)
	db = silenceDB
	if rms > 0.00001 {
		db = math.Max(20*math.Log10(rms), silenceDB)
	}
	return rms, db
}
