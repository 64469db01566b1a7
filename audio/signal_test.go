package audio

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-soundmatch/errs"
)

func TestNormalizeReturnsNewBuffer(t *testing.T) {
	s := New([]float64{0.1, -0.25, 0.2}, 44100)
	n := s.Normalize(1.0)
	if math.Abs(n.Peak()-1.0) > 1e-12 {
		t.Fatalf("peak = %f, want 1", n.Peak())
	}
	if s.Samples[1] != -0.25 {
		t.Fatalf("Normalize mutated source: %v", s.Samples)
	}
	silent := New(make([]float64, 8), 44100).Normalize(1.0)
	for _, v := range silent.Samples {
		if v != 0 {
			t.Fatalf("silent signal changed: %v", silent.Samples)
		}
	}
}

func TestResizeTrimsAndPads(t *testing.T) {
	s, err := NewInterleaved([]float64{1, 2, 3, 4, 5, 6}, 2, 8000)
	if err != nil {
		t.Fatal(err)
	}
	short := s.Resize(2)
	if got := short.Samples; len(got) != 4 || got[3] != 4 {
		t.Fatalf("trim = %v", got)
	}
	long := s.Resize(5)
	if long.Frames() != 5 || long.Samples[9] != 0 || long.Samples[5] != 6 {
		t.Fatalf("pad = %v", long.Samples)
	}
	long.Samples[0] = 99
	if s.Samples[0] != 1 {
		t.Fatal("Resize aliased the source buffer")
	}
}

func TestMonoAveragesChannels(t *testing.T) {
	s, err := NewInterleaved([]float64{1, 3, -1, 1}, 2, 8000)
	if err != nil {
		t.Fatal(err)
	}
	m := s.Mono()
	if m.Channels != 1 || m.Samples[0] != 2 || m.Samples[1] != 0 {
		t.Fatalf("mono = %+v", m)
	}
}

func TestValidateRejectsRaggedBuffer(t *testing.T) {
	_, err := NewInterleaved([]float64{1, 2, 3}, 2, 8000)
	if !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected shape error, got %v", err)
	}
	if err := (&Signal{Samples: nil, Channels: 1}).Validate(); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error for zero rate, got %v", err)
	}
}

func TestResampleChangesLength(t *testing.T) {
	s := Sine(440, 0.5, 48000, 0.5)
	r, err := s.Resample(24000)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if r.SampleRate != 24000 {
		t.Fatalf("rate = %d", r.SampleRate)
	}
	want := s.Frames() / 2
	if d := r.Frames() - want; d < -64 || d > 64 {
		t.Fatalf("frames = %d, want about %d", r.Frames(), want)
	}
	same, err := s.Resample(48000)
	if err != nil || same.Frames() != s.Frames() {
		t.Fatalf("identity resample: %v frames=%d", err, same.Frames())
	}
	if _, err := s.Resample(0); !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tone.wav")
	s := Sine(220, 0.1, 22050, 0.5)
	if err := SaveWAV(path, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.SampleRate != 22050 || got.Channels != 1 || got.Frames() != s.Frames() {
		t.Fatalf("loaded %d Hz %d ch %d frames", got.SampleRate, got.Channels, got.Frames())
	}
	for i := range s.Samples {
		if math.Abs(got.Samples[i]-s.Samples[i]) > 1e-3 {
			t.Fatalf("sample %d = %f, want %f", i, got.Samples[i], s.Samples[i])
		}
	}
}
