package audio

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestToneCapturerReadBeforeStart(t *testing.T) {
	c := NewToneCapturer(440, 0.5, 44100)
	if _, err := c.Read(make([]float32, 16)); !errors.Is(err, ErrNotCapturing) {
		t.Fatalf("got err %v, want ErrNotCapturing", err)
	}
}

func TestToneCapturerPhaseContinues(t *testing.T) {
	const rate = 8000
	c := NewToneCapturer(250, 0.5, rate)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	first := make([]float32, 10)
	second := make([]float32, 10)
	c.Read(first)
	n, err := c.Read(second)
	if err != nil || n != len(second) {
		t.Fatalf("Read = %d, %v", n, err)
	}

	for i, got := range append(first, second...) {
		want := 0.5 * math.Sin(2*math.Pi*250*float64(i)/rate)
		if math.Abs(float64(got)-want) > 1e-5 {
			t.Fatalf("sample %d = %v, want %v", i, got, want)
		}
	}
}

func TestToneCapturerStopIdempotent(t *testing.T) {
	c := NewToneCapturer(440, 0.5, 44100)
	c.Start(context.Background())
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if c.IsCapturing() {
		t.Error("still capturing after Stop")
	}
}

func TestToneCapturerStartCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewToneCapturer(440, 0.5, 44100)
	if err := c.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got err %v, want context.Canceled", err)
	}
}

func TestDownmix(t *testing.T) {
	got := downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
