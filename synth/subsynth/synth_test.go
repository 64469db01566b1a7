package subsynth

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/preset"
	"github.com/cwbudde/algo-soundmatch/synth"
)

func newTestSynth(t testing.TB) *Synth {
	t.Helper()
	s, err := New(Config{SampleRate: 22050, ControlRate: 32})
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	return s
}

func shortNote() synth.RenderSettings {
	return synth.RenderSettings{NoteLength: 0.2, RenderLength: 0.3, Note: 60, Velocity: 100}
}

func TestRenderLengthAndFinite(t *testing.T) {
	for w, name := range []string{"sine", "saw", "square", "triangle"} {
		t.Run(name, func(t *testing.T) {
			s := newTestSynth(t)
			patch := synth.Patch{
				{Index: ParamWaveform, Value: (float64(w) + 0.5) / 4},
				{Index: ParamDelayMix, Value: 0.5},
				{Index: ParamReverbMix, Value: 0.3},
				{Index: ParamFilterEnv, Value: 0.4},
			}
			if err := s.SetPatch(patch); err != nil {
				t.Fatal(err)
			}
			out, err := s.RenderPatch(shortNote())
			if err != nil {
				t.Fatal(err)
			}
			if got, want := out.Frames(), int(math.Round(0.3*22050)); got != want {
				t.Fatalf("frames = %d, want %d", got, want)
			}
			for i, v := range out.Samples {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Fatalf("sample %d is not finite: %v", i, v)
				}
			}
			if out.Peak() == 0 {
				t.Fatal("render is silent")
			}
		})
	}
}

func TestRenderDeterministic(t *testing.T) {
	s := newTestSynth(t)
	s.RandomizePatch(rand.New(rand.NewSource(3)), false)
	a, err := s.RenderPatch(shortNote())
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.RenderPatch(shortNote())
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a.Samples[i], b.Samples[i])
		}
	}
}

func TestSetPatchClampsAndSkipsOverridden(t *testing.T) {
	s := newTestSynth(t)
	if err := s.SetOverriddenParameters(map[int]float64{ParamGain: 0.4}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPatch(synth.Patch{{Index: ParamCutoff, Value: 1.7}, {Index: ParamNoise, Value: -2}, {Index: ParamGain, Value: 1}}); err != nil {
		t.Fatal(err)
	}
	got := s.Patch().Map()
	if got[ParamCutoff] != 1 || got[ParamNoise] != 0 {
		t.Fatalf("values not clamped: cutoff=%v noise=%v", got[ParamCutoff], got[ParamNoise])
	}
	if got[ParamGain] != 0.4 {
		t.Fatalf("overridden gain changed to %v", got[ParamGain])
	}

	err := s.SetPatch(synth.Patch{{Index: numParams, Value: 0.5}})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error for unknown index, got %v", err)
	}
}

func TestRandomizeSkipsOverridden(t *testing.T) {
	s := newTestSynth(t)
	if err := s.SetOverriddenParameters(map[int]float64{ParamAttack: 0.123}); err != nil {
		t.Fatal(err)
	}
	s.RandomizePatch(rand.New(rand.NewSource(1)), true)
	if v := s.Patch().Map()[ParamAttack]; v != 0.123 {
		t.Fatalf("attack = %v, want 0.123", v)
	}
	if free := synth.FreeIndices(s); len(free) != numParams-1 {
		t.Fatalf("free indices = %d, want %d", len(free), numParams-1)
	}
}

func TestRenderRejectsBadSettings(t *testing.T) {
	s := newTestSynth(t)
	bad := []synth.RenderSettings{
		{NoteLength: 0.1, RenderLength: 0, Note: 60, Velocity: 100},
		{NoteLength: -1, RenderLength: 0.1, Note: 60, Velocity: 100},
		{NoteLength: 0.1, RenderLength: 0.1, Note: 200, Velocity: 100},
	}
	for _, rs := range bad {
		if _, err := s.RenderPatch(rs); err == nil {
			t.Fatalf("expected error for %+v", rs)
		}
	}
}

func TestLoadPatchRoundTrip(t *testing.T) {
	src := newTestSynth(t)
	src.RandomizePatch(rand.New(rand.NewSource(9)), false)
	if err := src.SetOverriddenParameters(map[int]float64{ParamOctave: 0.5}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := preset.Write(&buf, preset.Snapshot(src)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"desc": "Osc Octave"`) {
		t.Fatalf("state missing parameter description:\n%s", buf.String())
	}

	dst := newTestSynth(t)
	if err := dst.LoadPatch(&buf); err != nil {
		t.Fatal(err)
	}
	want, got := src.Patch(), dst.Patch()
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("param %d = %v, want %v", i, got[i], want[i])
		}
	}
	if v, ok := dst.Overridden()[ParamOctave]; !ok || v != 0.5 {
		t.Fatalf("override not restored: %v", dst.Overridden())
	}
}

func TestParameterIndex(t *testing.T) {
	for i, name := range ParameterNames() {
		idx, ok := ParameterIndex(name)
		if !ok || idx != i {
			t.Fatalf("ParameterIndex(%q) = %d, %v", name, idx, ok)
		}
	}
	if idx, ok := ParameterIndex("filter cutoff"); !ok || idx != ParamCutoff {
		t.Fatalf("case-insensitive lookup = %d, %v", idx, ok)
	}
	if _, ok := ParameterIndex("nope"); ok {
		t.Fatal("unknown name resolved")
	}
}

func TestGenerateIRPeak(t *testing.T) {
	ir, err := generateIR(defaultReverbConfig(22050, 0.5))
	if err != nil {
		t.Fatal(err)
	}
	peak := 0.0
	for _, v := range ir {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if math.Abs(peak-0.5) > 1e-4 {
		t.Fatalf("IR peak = %v, want 0.5", peak)
	}
}

func TestReverbConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*reverbConfig)
	}{
		{"sample rate", func(c *reverbConfig) { c.SampleRate = 100 }},
		{"decay", func(c *reverbConfig) { c.DecayS = 0 }},
		{"early count", func(c *reverbConfig) { c.EarlyCount = -1 }},
		{"late level", func(c *reverbConfig) { c.LateLevel = -0.1 }},
		{"normalize peak", func(c *reverbConfig) { c.NormalizePeak = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultReverbConfig(22050, 0.5)
			tc.mutate(&cfg)
			if _, err := generateIR(cfg); err == nil {
				t.Fatal("expected error for invalid reverb config")
			}
		})
	}
}

func BenchmarkRenderPatch(b *testing.B) {
	s := newTestSynth(b)
	s.RandomizePatch(rand.New(rand.NewSource(1)), false)
	rs := synth.DefaultRenderSettings()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.RenderPatch(rs); err != nil {
			b.Fatal(err)
		}
	}
}
