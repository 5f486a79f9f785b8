package pitch

import (
	"fmt"
	"math"
	"strings"
)

// StringID identifies a guitar string by its open note.
type StringID string

// Standard tuning strings, low to high.
const (
	E2 StringID = "E2"
	A2 StringID = "A2"
	D3 StringID = "D3"
	G3 StringID = "G3"
	B3 StringID = "B3"
	E4 StringID = "E4"
)

// TuningNote is the target for one string.
type TuningNote struct {
	ID        StringID
	Frequency float64
	Label     string
}

// Tuning is an ordered set of string targets.
type Tuning struct {
	Name    string
	Strings []TuningNote
}

// Standard is EADGBE.
var Standard = Tuning{
	Name: "Standard",
	Strings: []TuningNote{
		{ID: E2, Frequency: 82.41, Label: "E"},
		{ID: A2, Frequency: 110.00, Label: "A"},
		{ID: D3, Frequency: 146.83, Label: "D"},
		{ID: G3, Frequency: 196.00, Label: "G"},
		{ID: B3, Frequency: 246.94, Label: "B"},
		{ID: E4, Frequency: 329.63, Label: "e"},
	},
}

// Lookup finds a string by ID, ignoring case.
func (t Tuning) Lookup(id StringID) (TuningNote, bool) {
	if i := t.Index(id); i >= 0 {
		return t.Strings[i], true
	}
	return TuningNote{}, false
}

// Index returns the position of id, or -1.
func (t Tuning) Index(id StringID) int {
	for i, s := range t.Strings {
		if strings.EqualFold(string(s.ID), string(id)) {
			return i
		}
	}
	return -1
}

// Closest returns the string whose target is nearest to freq in cents.
func (t Tuning) Closest(freq float64) (TuningNote, error) {
	if !validFrequency(freq) {
		return TuningNote{}, fmt.Errorf("%w: %v", ErrInvalidFrequency, freq)
	}
	if len(t.Strings) == 0 {
		return TuningNote{}, fmt.Errorf("pitch: tuning %q has no strings", t.Name)
	}
	best := t.Strings[0]
	bestDist := math.Inf(1)
	for _, s := range t.Strings {
		if d := math.Abs(math.Log2(freq / s.Frequency)); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, nil
}

// Status classifies a cents offset for display.
type Status int

const (
	InTune Status = iota
	SlightlyFlat
	SlightlySharp
	TooLow
	TooHigh
)

// Display thresholds in cents.
const (
	inTuneCents    = 2
	slightlyCents  = 10
	activeCents    = 50
	needleScale    = 0.9
	needleMaxAngle = 45
)

func (s Status) String() string {
	switch s {
	case InTune:
		return "In Tune"
	case SlightlyFlat:
		return "Slightly Flat"
	case SlightlySharp:
		return "Slightly Sharp"
	case TooLow:
		return "Too Low"
	case TooHigh:
		return "Too High"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Assess classifies cents.
func Assess(cents float64) Status {
	abs := math.Abs(cents)
	switch {
	case abs < inTuneCents:
		return InTune
	case abs < slightlyCents && cents < 0:
		return SlightlyFlat
	case abs < slightlyCents:
		return SlightlySharp
	case cents < 0:
		return TooLow
	default:
		return TooHigh
	}
}

// Active reports whether cents is close enough to highlight the target note.
func Active(cents float64) bool {
	return math.Abs(cents) <= activeCents
}

// Needle returns the gauge deflection in degrees, clamped to ±45.
func Needle(cents float64) float64 {
	return math.Max(-needleMaxAngle, math.Min(needleMaxAngle, cents*needleScale))
}

// Reading is one detected frequency measured against a target string.
type Reading struct {
	Frequency float64
	Note      NoteInfo
	Target    TuningNote
	Cents     float64
	Status    Status
	Active    bool
	Needle    float64
}

// Read measures freq against the string with A4 = 440 Hz.
func (n TuningNote) Read(freq float64) (Reading, error) {
	return n.ReadWith(Mapper{}, freq)
}

// ReadWith measures freq against the string using m for note naming.
func (n TuningNote) ReadWith(m Mapper, freq float64) (Reading, error) {
	note, err := m.Note(freq)
	if err != nil {
		return Reading{}, err
	}
	cents, err := m.Cents(freq, n.Frequency)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		Frequency: freq,
		Note:      note,
		Target:    n,
		Cents:     cents,
		Status:    Assess(cents),
		Active:    Active(cents),
		Needle:    Needle(cents),
	}, nil
}
