package subsynth

import "github.com/cwbudde/algo-approx"

// adsr is a linear-attack, exponential decay/release envelope.
type adsr struct {
	attack, decay, sustain, release float64

	noteOff  float64
	offLevel float64
}

func newADSR(p voiceParams, noteOff float64) adsr {
	e := adsr{
		attack:  p.attackS,
		decay:   p.decayS,
		sustain: p.sustain,
		release: p.releaseS,
		noteOff: noteOff,
	}
	e.offLevel = e.held(noteOff)
	return e
}

func (e adsr) held(t float64) float64 {
	if t < e.attack {
		return t / e.attack
	}
	d := t - e.attack
	return e.sustain + (1-e.sustain)*fexp(-d/(0.2*e.decay))
}

// level returns the envelope value at time t seconds after note-on.
func (e adsr) level(t float64) float64 {
	if t < e.noteOff {
		return e.held(t)
	}
	r := t - e.noteOff
	return e.offLevel * fexp(-r/(0.2*e.release))
}

// fexp is e^x through the fast float32 exponential, flushed to zero far
// below audibility.
func fexp(x float64) float64 {
	if x < -80 {
		return 0
	}
	return float64(approx.FastExp(float32(x)))
}

// pow2 is 2^x through the fast exponential.
func pow2(x float64) float64 {
	const ln2 = 0.69314718055994530942
	return fexp(x * ln2)
}

// noteToFreq converts a MIDI note number to Hz.
func noteToFreq(note float64) float64 {
	return 440.0 * pow2((note-69)/12.0)
}
