package main

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STRINGTUNER_CONFIG", "")
	t.Setenv("STRINGTUNER_STRING", "")

	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// writeSineWav writes a mono 16-bit PCM WAV of a sine and returns its path.
func writeSineWav(t *testing.T, freq float64, rate, n int) string {
	t.Helper()

	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(0.8 * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}

	var buf bytes.Buffer
	dataSize := uint32(n * 2)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVEfmt ")
	for _, v := range []any{
		uint32(16),       // fmt chunk size
		uint16(1),        // PCM
		uint16(1),        // mono
		uint32(rate),     // sample rate
		uint32(rate * 2), // byte rate
		uint16(2),        // block align
		uint16(16),       // bits per sample
	} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	binary.Write(&buf, binary.LittleEndian, samples)

	path := filepath.Join(t.TempDir(), "pluck.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNoteCommand(t *testing.T) {
	out, err := execute(t, "note", "440")
	if err != nil {
		t.Fatalf("note: %v", err)
	}
	if !strings.Contains(out, "is A4") || !strings.Contains(out, "MIDI 69") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "String E4") {
		t.Errorf("440 Hz should be measured against the nearest string E4:\n%s", out)
	}
}

func TestNoteCommandWithString(t *testing.T) {
	out, err := execute(t, "note", "82.41", "--string", "E2")
	if err != nil {
		t.Fatalf("note: %v", err)
	}
	if !strings.Contains(out, "is E2") || !strings.Contains(out, "In Tune") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestNoteCommandRejectsInvalidFrequency(t *testing.T) {
	if _, err := execute(t, "note", "0"); err == nil {
		t.Error("expected error for 0 Hz")
	}
	if _, err := execute(t, "note", "loud"); err == nil {
		t.Error("expected error for non-numeric input")
	}
}

func TestTuningsCommand(t *testing.T) {
	out, err := execute(t, "tunings")
	if err != nil {
		t.Fatalf("tunings: %v", err)
	}
	for _, want := range []string{"Standard tuning", "82.41", "110.00", "146.83", "196.00", "246.94", "329.63"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestReplayCommand(t *testing.T) {
	path := writeSineWav(t, 110, 44100, 44100/2)

	out, err := execute(t, "replay", path, "--log-level", "error")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	summary := lines[len(lines)-1]
	if !strings.Contains(summary, "readings, median") || !strings.Contains(summary, "A2") {
		t.Errorf("unexpected summary %q in:\n%s", summary, out)
	}
	if !strings.Contains(out, "from A2") {
		t.Errorf("readings not measured against A2:\n%s", out)
	}
}

func TestReplayMissingFile(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(t.TempDir(), "missing.wav"), "--log-level", "error")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestInvalidFlagValue(t *testing.T) {
	_, err := execute(t, "note", "440", "--method", "yin")
	if err == nil || !strings.Contains(err.Error(), "detector.method") {
		t.Fatalf("got err %v, want detector.method validation error", err)
	}
}

func TestConfigFileFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuner.yaml")
	os.WriteFile(path, []byte("tuning:\n  a4: 432\n"), 0o644)

	out, err := execute(t, "tunings", "--config", path)
	if err != nil {
		t.Fatalf("tunings: %v", err)
	}
	if !strings.Contains(out, "A4 = 432.0 Hz") {
		t.Errorf("config not applied:\n%s", out)
	}
}
