package pitch

import (
	"fmt"
	"math"
)

// A4Frequency is the concert pitch reference.
const A4Frequency = 440.0

const a4MIDI = 69

// NoteNames lists the pitch classes in chromatic order starting at C.
var NoteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteInfo represents a musical note
type NoteInfo struct {
	Name   string // e.g., "A", "A#", "B"
	Octave int    // e.g., 4 for middle C (C4)
	MIDI   int
}

func (n NoteInfo) String() string {
	return fmt.Sprintf("%s%d", n.Name, n.Octave)
}

// Mapper converts frequencies to notes and cents against an A4 reference.
// The zero value uses 440 Hz.
type Mapper struct {
	A4 float64
}

func (m Mapper) reference() float64 {
	if validFrequency(m.A4) {
		return m.A4
	}
	return A4Frequency
}

// Note returns the equal-tempered note nearest to freq.
func (m Mapper) Note(freq float64) (NoteInfo, error) {
	if !validFrequency(freq) {
		return NoteInfo{}, fmt.Errorf("%w: %v", ErrInvalidFrequency, freq)
	}
	midi := int(math.Round(12*math.Log2(freq/m.reference()))) + a4MIDI
	return noteFromMIDI(midi), nil
}

// Cents returns 1200*log2(freq/target): negative when flat, positive when
// sharp.
func (m Mapper) Cents(freq, target float64) (float64, error) {
	if !validFrequency(freq) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFrequency, freq)
	}
	if !validFrequency(target) {
		return 0, fmt.Errorf("%w: target %v", ErrInvalidFrequency, target)
	}
	return 1200 * math.Log2(freq/target), nil
}

// Frequency returns the equal-tempered frequency of a MIDI note.
func (m Mapper) Frequency(midi int) float64 {
	return m.reference() * math.Pow(2, float64(midi-a4MIDI)/12)
}

// Nearest returns the nearest note and the cents offset from it.
func (m Mapper) Nearest(freq float64) (NoteInfo, float64, error) {
	note, err := m.Note(freq)
	if err != nil {
		return NoteInfo{}, 0, err
	}
	cents, err := m.Cents(freq, m.Frequency(note.MIDI))
	if err != nil {
		return NoteInfo{}, 0, err
	}
	return note, cents, nil
}

// FrequencyToNote maps freq to a note with A4 = 440 Hz.
func FrequencyToNote(freq float64) (NoteInfo, error) {
	return Mapper{}.Note(freq)
}

// FrequencyToCents returns the offset of freq from target in cents.
func FrequencyToCents(freq, target float64) (float64, error) {
	return Mapper{}.Cents(freq, target)
}

func noteFromMIDI(midi int) NoteInfo {
	// Euclidean mod and floor division keep very low notes well formed.
	idx := ((midi % 12) + 12) % 12
	octave := (midi-idx)/12 - 1
	return NoteInfo{
		Name:   NoteNames[idx],
		Octave: octave,
		MIDI:   midi,
	}
}

func validFrequency(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
