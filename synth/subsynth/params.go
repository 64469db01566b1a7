package subsynth

import "math"

// Parameter indices.
const (
	ParamWaveform = iota
	ParamOctave
	ParamFineTune
	ParamNoise
	ParamFilterType
	ParamCutoff
	ParamResonance
	ParamFilterEnv
	ParamAttack
	ParamDecay
	ParamSustain
	ParamRelease
	ParamDelayTime
	ParamDelayMix
	ParamReverbSize
	ParamReverbMix
	ParamGain
	numParams
)

type paramDef struct {
	name string
	def  float64
}

var paramDefs = [numParams]paramDef{
	ParamWaveform:   {"Osc Waveform", 0.0},
	ParamOctave:     {"Osc Octave", 0.5},
	ParamFineTune:   {"Osc Fine Tune", 0.5},
	ParamNoise:      {"Noise Level", 0.0},
	ParamFilterType: {"Filter Type", 0.0},
	ParamCutoff:     {"Filter Cutoff", 1.0},
	ParamResonance:  {"Filter Resonance", 0.1},
	ParamFilterEnv:  {"Filter Env Amount", 0.0},
	ParamAttack:     {"Amp Attack", 0.05},
	ParamDecay:      {"Amp Decay", 0.3},
	ParamSustain:    {"Amp Sustain", 0.8},
	ParamRelease:    {"Amp Release", 0.2},
	ParamDelayTime:  {"Delay Time", 0.3},
	ParamDelayMix:   {"Delay Mix", 0.0},
	ParamReverbSize: {"Reverb Size", 0.3},
	ParamReverbMix:  {"Reverb Mix", 0.0},
	ParamGain:       {"Output Gain", 0.8},
}

// Waveform selects the oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Saw
	Square
	Triangle
)

// quantize maps v in [0,1] onto n evenly sized steps.
func quantize(v float64, n int) int {
	i := int(v * float64(n))
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// expRange maps v in [0,1] exponentially onto [lo, hi].
func expRange(v, lo, hi float64) float64 {
	return lo * math.Pow(hi/lo, v)
}

// voiceParams is the native-unit view of a normalized patch.
type voiceParams struct {
	waveform   Waveform
	octave     int
	fineSemis  float64
	noise      float64
	filterType int
	cutoffHz   float64
	q          float64
	filterEnv  float64
	attackS    float64
	decayS     float64
	sustain    float64
	releaseS   float64
	delayS     float64
	delayMix   float64
	reverbS    float64
	reverbMix  float64
	gain       float64
}

func decode(v [numParams]float64) voiceParams {
	return voiceParams{
		waveform:   Waveform(quantize(v[ParamWaveform], 4)),
		octave:     quantize(v[ParamOctave], 5) - 2,
		fineSemis:  2*v[ParamFineTune] - 1,
		noise:      v[ParamNoise],
		filterType: quantize(v[ParamFilterType], 3),
		cutoffHz:   expRange(v[ParamCutoff], 40, 18000),
		q:          expRange(v[ParamResonance], 0.5, 12),
		filterEnv:  v[ParamFilterEnv],
		attackS:    expRange(v[ParamAttack], 0.001, 2.0),
		decayS:     expRange(v[ParamDecay], 0.005, 3.0),
		sustain:    v[ParamSustain],
		releaseS:   expRange(v[ParamRelease], 0.005, 3.0),
		delayS:     expRange(v[ParamDelayTime], 0.02, 0.6),
		delayMix:   0.6 * v[ParamDelayMix],
		reverbS:    expRange(v[ParamReverbSize], 0.1, 2.0),
		reverbMix:  v[ParamReverbMix],
		gain:       v[ParamGain],
	}
}
