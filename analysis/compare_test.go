package analysis

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-soundmatch/audio"
)

func TestCompareIdenticalSignalsHasLowDistance(t *testing.T) {
	sr := 48000
	x := makeDecaySine(sr, 440.0, 1.5, 0.7)
	m := CompareSamples(x, x, sr)
	if m.Score > 0.05 {
		t.Fatalf("expected very low score for identical signals, got %f", m.Score)
	}
	if m.Similarity < 0.85 {
		t.Fatalf("expected high similarity for identical signals, got %f", m.Similarity)
	}
	if m.LagSamples != 0 {
		t.Fatalf("lag = %d, want 0", m.LagSamples)
	}
}

func TestCompareDifferentSignalsHasHigherDistance(t *testing.T) {
	sr := 48000
	a := makeDecaySine(sr, 261.63, 1.8, 0.8)
	b := makeDecaySine(sr, 330.0, 0.8, 0.25)
	m := CompareSamples(a, b, sr)
	if m.Score < 0.25 {
		t.Fatalf("expected higher score for different signals, got %f", m.Score)
	}
}

func TestCompareSilenceScoresOne(t *testing.T) {
	m := CompareSamples(make([]float64, 4096), makeDecaySine(8000, 440, 0.5, 0.2), 8000)
	if m.Score != 1 || m.Similarity != 0 {
		t.Fatalf("silent reference: score %v similarity %v", m.Score, m.Similarity)
	}
}

func TestCompareResamplesCandidate(t *testing.T) {
	ref := audio.New(makeDecaySine(44100, 440, 1, 0.5), 44100)
	cand, err := ref.Resample(22050)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Compare(ref, cand)
	if err != nil {
		t.Fatal(err)
	}
	if m.SampleRate != 44100 {
		t.Fatalf("sample rate = %d", m.SampleRate)
	}
	if m.AlignedFrames == 0 || m.TimeRMSE > 0.05 {
		t.Fatalf("resampled copy: aligned %d, time rmse %v", m.AlignedFrames, m.TimeRMSE)
	}
}

func TestEstimateLagFindsPositiveShift(t *testing.T) {
	const (
		n      = 8192
		shift  = 237
		maxLag = 600
	)
	ref := randomSignal(n, 7)
	cand := make([]float64, n)
	copy(cand, ref[shift:])

	if got := estimateLag(ref, cand, maxLag); got != shift {
		t.Fatalf("estimateLag() = %d, want %d", got, shift)
	}
}

func TestEstimateLagFindsNegativeShift(t *testing.T) {
	const (
		n      = 8192
		shift  = -191
		maxLag = 600
	)
	ref := randomSignal(n, 11)
	cand := make([]float64, n)
	copy(cand[-shift:], ref)

	if got := estimateLag(ref, cand, maxLag); got != shift {
		t.Fatalf("estimateLag() = %d, want %d", got, shift)
	}
}

func TestEstimateLagMatchesDirect(t *testing.T) {
	ref := randomSignal(6000, 23)
	cand := make([]float64, 6000)
	copy(cand, ref[443:])

	got := estimateLag(ref, cand, 1000)
	want := estimateLagDirect(ref, cand, 1000)
	if got != want {
		t.Fatalf("estimateLag() = %d, direct = %d", got, want)
	}
}

func TestDecaySlope(t *testing.T) {
	sr := 48000
	x := makeDecaySine(sr, 440, 2, 0.5)
	slope := decaySlope(envelope(x), float64(envHop)/float64(sr))
	// exp(-t/0.5) falls 20*log10(e)/0.5 dB per second.
	want := -20 / math.Ln10 / 0.5
	if math.Abs(slope-want) > 1.5 {
		t.Fatalf("slope = %v dB/s, want about %v", slope, want)
	}
}

func BenchmarkCompare(b *testing.B) {
	const n = 48000 * 3
	ref, cand := benchmarkSignals(n)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CompareSamples(ref, cand, 48000)
	}
}

func makeDecaySine(sr int, freq float64, durationSec float64, decaySec float64) []float64 {
	n := max(int(float64(sr)*durationSec), 1)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sr)
		out[i] = math.Exp(-t/decaySec) * math.Sin(2*math.Pi*freq*t)
	}
	return out
}

func randomSignal(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()*2 - 1
	}
	return out
}

func benchmarkSignals(n int) ([]float64, []float64) {
	a := make([]float64, n)
	c := make([]float64, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n)
		a[i] = 0.7*math.Sin(2*math.Pi*57*t) + 0.25*math.Sin(2*math.Pi*311*t)
		c[i] = 0.68*math.Sin(2*math.Pi*57*t+0.05) + 0.27*math.Sin(2*math.Pi*320*t)
	}
	return a, c
}
