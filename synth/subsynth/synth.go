// Package subsynth is a small subtractive synthesizer implementing
// synth.Port: one band-limited oscillator plus noise into a resonant
// biquad, an ADSR amplifier, a feedback delay and a convolution reverb.
//
// Rendering is deterministic for a given patch and note.
package subsynth

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"

	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/dsp"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/preset"
	"github.com/cwbudde/algo-soundmatch/synth"
)

// Config holds engine settings that are not patch parameters.
type Config struct {
	SampleRate int
	// ControlRate is the number of samples between filter envelope updates.
	ControlRate int
}

// DefaultConfig is 44.1 kHz with filter envelope updates every 32 samples.
func DefaultConfig() Config {
	return Config{SampleRate: 44100, ControlRate: 32}
}

// Validate checks the sample and control rates.
func (c Config) Validate() error {
	if c.SampleRate < 8000 {
		return errs.Config("subsynth", "sample rate too low: %d", c.SampleRate)
	}
	if c.ControlRate < 1 {
		return errs.Config("subsynth", "control rate must be >= 1")
	}
	return nil
}

// Synth is not safe for concurrent use.
type Synth struct {
	cfg        Config
	values     [numParams]float64
	overridden map[int]float64
	irCache    map[int][]float32
}

var _ synth.Port = (*Synth)(nil)

// New returns a synth loaded with the default patch.
func New(cfg Config) (*Synth, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Synth{
		cfg:        cfg,
		overridden: map[int]float64{},
		irCache:    map[int][]float32{},
	}
	for i, d := range paramDefs {
		s.values[i] = d.def
	}
	return s, nil
}

// NewFactory returns a synth.Factory building independent instances.
func NewFactory(cfg Config) synth.Factory {
	return func() (synth.Port, error) { return New(cfg) }
}

func (s *Synth) SampleRate() int { return s.cfg.SampleRate }

func (s *Synth) LoadPatch(r io.Reader) error {
	return preset.Apply(s, r)
}

// SetPatch applies p, clamping values to [0,1]. Overridden parameters
// keep their fixed values.
func (s *Synth) SetPatch(p synth.Patch) error {
	for _, pv := range p {
		if pv.Index < 0 || pv.Index >= numParams {
			return errs.Validation("set_patch", "unknown parameter index %d", pv.Index)
		}
	}
	for _, pv := range p {
		if _, fixed := s.overridden[pv.Index]; fixed {
			continue
		}
		s.values[pv.Index] = synth.Clamp01(pv.Value)
	}
	return nil
}

func (s *Synth) Patch() synth.Patch {
	out := make(synth.Patch, numParams)
	for i := range out {
		out[i] = synth.ParamValue{Index: i, Value: s.values[i]}
	}
	return out
}

func (s *Synth) Parameters() []synth.Parameter {
	out := make([]synth.Parameter, numParams)
	for i, d := range paramDefs {
		out[i] = synth.Parameter{Index: i, Name: d.name, Value: s.values[i]}
	}
	return out
}

// SetOverriddenParameters replaces the override set and applies the values.
func (s *Synth) SetOverriddenParameters(values map[int]float64) error {
	for idx := range values {
		if idx < 0 || idx >= numParams {
			return errs.Validation("set_overridden", "unknown parameter index %d", idx)
		}
	}
	s.overridden = make(map[int]float64, len(values))
	for idx, v := range values {
		v = synth.Clamp01(v)
		s.overridden[idx] = v
		s.values[idx] = v
	}
	return nil
}

func (s *Synth) Overridden() map[int]float64 {
	out := make(map[int]float64, len(s.overridden))
	for k, v := range s.overridden {
		out[k] = v
	}
	return out
}

// RandomizePatch draws every parameter uniformly from rng, leaving
// overridden ones alone when skipOverridden is set.
func (s *Synth) RandomizePatch(rng *rand.Rand, skipOverridden bool) {
	for i := 0; i < numParams; i++ {
		if _, fixed := s.overridden[i]; fixed && skipOverridden {
			continue
		}
		s.values[i] = rng.Float64()
	}
}

// RenderPatch renders one note with the current patch.
func (s *Synth) RenderPatch(rs synth.RenderSettings) (*audio.Signal, error) {
	if rs.RenderLength <= 0 {
		return nil, fmt.Errorf("render length must be > 0, got %g", rs.RenderLength)
	}
	if rs.NoteLength < 0 {
		return nil, fmt.Errorf("note length must be >= 0, got %g", rs.NoteLength)
	}
	if rs.Note < 0 || rs.Note > 127 || rs.Velocity < 0 || rs.Velocity > 127 {
		return nil, fmt.Errorf("note %d / velocity %d outside MIDI range", rs.Note, rs.Velocity)
	}

	sr := float64(s.cfg.SampleRate)
	n := int(math.Round(rs.RenderLength * sr))
	p := decode(s.values)
	env := newADSR(p, rs.NoteLength)

	freq := noteToFreq(float64(rs.Note) + float64(12*p.octave) + p.fineSemis)
	if freq > 0.45*sr {
		freq = 0.45 * sr
	}
	dt := freq / sr
	rng := rand.New(rand.NewSource(int64(rs.Note)*7919 + 1))

	filter := dsp.NewFilter(dsp.FilterType(p.filterType), p.cutoffHz, sr, p.q)
	amp := p.gain * float64(rs.Velocity) / 127.0

	out := make([]float64, n)
	phase := 0.0
	tri := 0.0
	for i := 0; i < n; i++ {
		t := float64(i) / sr
		level := env.level(t)
		if p.filterEnv > 0 && i%s.cfg.ControlRate == 0 {
			filter.Design(dsp.FilterType(p.filterType), p.cutoffHz*pow2(5*p.filterEnv*level), sr, p.q)
		}

		var x float64
		switch p.waveform {
		case Saw:
			x = 2*phase - 1 - polyBLEP(phase, dt)
		case Square:
			x = square(phase, dt)
		case Triangle:
			// Leaky integration of the band-limited square.
			tri = 0.999*tri + 4*dt*square(phase, dt)
			x = tri
		default:
			x = math.Sin(2 * math.Pi * phase)
		}
		if p.noise > 0 {
			x = (1-p.noise)*x + p.noise*(2*rng.Float64()-1)
		}
		phase += dt
		if phase >= 1 {
			phase -= 1
		}
		out[i] = filter.Process(x) * level * amp
	}

	if p.delayMix > 0 {
		applyDelay(out, int(p.delayS*sr), 0.35, p.delayMix)
	}
	if p.reverbMix > 1e-3 {
		ir, err := s.impulse(p.reverbS)
		if err != nil {
			return nil, err
		}
		wet, err := applyReverb(out, ir, p.reverbMix)
		if err != nil {
			return nil, err
		}
		out = wet
	}
	return audio.New(out, s.cfg.SampleRate), nil
}

// impulse returns the reverb IR for a decay time, cached at 10 ms steps.
func (s *Synth) impulse(decayS float64) ([]float32, error) {
	key := int(math.Round(decayS * 100))
	if ir, ok := s.irCache[key]; ok {
		return ir, nil
	}
	ir, err := generateIR(defaultReverbConfig(s.cfg.SampleRate, float64(key)/100))
	if err != nil {
		return nil, err
	}
	s.irCache[key] = ir
	return ir, nil
}

func applyDelay(buf []float64, delay int, feedback, mix float64) {
	if delay < 1 {
		return
	}
	d := dsp.NewDelayLine(delay)
	for i, x := range buf {
		y := d.Read(delay)
		d.Write(x + feedback*y)
		buf[i] = x + mix*y
	}
}

// polyBLEP is the two-sample polynomial band-limited step residual.
func polyBLEP(t, dt float64) float64 {
	switch {
	case t < dt:
		t /= dt
		return t + t - t*t - 1
	case t > 1-dt:
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func square(phase, dt float64) float64 {
	x := 1.0
	if phase >= 0.5 {
		x = -1
	}
	x += polyBLEP(phase, dt)
	p2 := phase + 0.5
	if p2 >= 1 {
		p2 -= 1
	}
	return x - polyBLEP(p2, dt)
}

// ParameterNames lists parameter names in index order.
func ParameterNames() []string {
	out := make([]string, numParams)
	for i, d := range paramDefs {
		out[i] = d.name
	}
	return out
}

// ParameterIndex resolves a parameter name, ignoring case.
func ParameterIndex(name string) (int, bool) {
	for idx, d := range paramDefs {
		if strings.EqualFold(d.name, name) {
			return idx, true
		}
	}
	return 0, false
}
