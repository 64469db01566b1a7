package estimator

import (
	"fmt"
	"math"
	"sync/atomic"
	"testing"

	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/features"
	"github.com/cwbudde/algo-soundmatch/synth"
)

const testRate = 8000

// toneRenderer renders a stateless two-partial tone controlled by three
// parameters: frequency, amplitude and the level of the second partial.
type toneRenderer struct {
	overridden map[int]float64
	workers    int
	failAbove  float64
	failAll    bool
	calls      atomic.Int64
	// onRender runs with the call count before each render.
	onRender func(n int64)
}

func (r *toneRenderer) Render(p synth.Patch, s synth.RenderSettings) (*audio.Signal, error) {
	n := r.calls.Add(1)
	if r.onRender != nil {
		r.onRender(n)
	}
	if r.failAll {
		return nil, errs.Render("render_patch", fmt.Errorf("synth unavailable"))
	}
	v := p.Map()
	if r.failAbove > 0 && v[0] > r.failAbove {
		return nil, errs.Render("render_patch", fmt.Errorf("frequency knob %g too high", v[0]))
	}
	samples := int(math.Round(s.RenderLength * testRate))
	freq := 200 + 800*v[0]
	out := make([]float64, samples)
	for i := range out {
		t := float64(i) / testRate
		out[i] = v[1] * (math.Sin(2*math.Pi*freq*t) + v[2]*math.Sin(4*math.Pi*freq*t))
	}
	return audio.New(out, testRate), nil
}

func (r *toneRenderer) Parameters() []synth.Parameter {
	return []synth.Parameter{{Index: 0, Name: "freq"}, {Index: 1, Name: "amp"}, {Index: 2, Name: "harmonic"}}
}

func (r *toneRenderer) Overridden() map[int]float64 {
	out := make(map[int]float64, len(r.overridden))
	for k, v := range r.overridden {
		out[k] = v
	}
	return out
}

func (r *toneRenderer) SampleRate() int { return testRate }

func (r *toneRenderer) Concurrency() int { return max(r.workers, 1) }

func testRender() synth.RenderSettings {
	return synth.RenderSettings{NoteLength: 0.2, RenderLength: 0.25, Note: 60, Velocity: 100}
}

func testMFCC(t testing.TB) *features.Extractor {
	t.Helper()
	cfg := features.DefaultConfig(features.KindMFCC)
	cfg.SampleRate = testRate
	cfg.FrameSize = 256
	cfg.HopSize = 128
	cfg.Coefficients = 13
	cfg.Mels = 40
	ex, err := features.New(cfg)
	if err != nil {
		t.Fatalf("mfcc extractor: %v", err)
	}
	return ex
}

func testSpectral(t testing.TB) *features.Extractor {
	t.Helper()
	cfg := features.DefaultConfig(features.KindSpectral)
	cfg.SampleRate = testRate
	cfg.FrameSize = 256
	cfg.HopSize = 128
	cfg.ContrastFMin = 100
	cfg.ContrastBands = 4
	ex, err := features.New(cfg)
	if err != nil {
		t.Fatalf("spectral extractor: %v", err)
	}
	return ex
}

// targetFor renders patch values with r and extracts one vector per extractor.
func targetFor(t testing.TB, r synth.Renderer, values []float64, exs ...features.FeatureExtractor) []features.Vector {
	t.Helper()
	patch := make(synth.Patch, len(values))
	for i, v := range values {
		patch[i] = synth.ParamValue{Index: i, Value: v}
	}
	sig, err := r.Render(patch, testRender())
	if err != nil {
		t.Fatal(err)
	}
	out := make([]features.Vector, len(exs))
	for i, ex := range exs {
		v, err := ex.Features(sig)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = v
	}
	return out
}

func seed(v int64) *int64 { return &v }
