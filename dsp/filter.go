// Package dsp contains the small signal-processing building blocks shared
// by the built-in synthesizer and the feature extractors.
package dsp

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// FilterType selects the response of a Biquad.
type FilterType int

const (
	Lowpass FilterType = iota
	Highpass
	Bandpass
)

// Biquad implements a second-order IIR filter (no heap allocations in Process)
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64
	y1, y2 float64
}

// NewBiquad creates a new biquad filter with coefficients already divided by a0.
func NewBiquad(b0, b1, b2, a1, a2 float64) *Biquad {
	return &Biquad{b0: b0, b1: b1, b2: b2, a1: a1, a2: a2}
}

// NewFilter designs an RBJ cookbook filter. cutoff is clamped below Nyquist.
func NewFilter(kind FilterType, cutoff, sampleRate, q float64) *Biquad {
	b := &Biquad{}
	b.Design(kind, cutoff, sampleRate, q)
	return b
}

// Design recomputes the coefficients without touching the state.
func (b *Biquad) Design(kind FilterType, cutoff, sampleRate, q float64) {
	nyq := 0.5 * sampleRate
	if cutoff > 0.99*nyq {
		cutoff = 0.99 * nyq
	}
	if cutoff < 1 {
		cutoff = 1
	}
	if q < 0.05 {
		q = 0.05
	}
	w0 := 2.0 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)
	cosw0 := math.Cos(w0)

	var b0, b1, b2 float64
	switch kind {
	case Highpass:
		b0 = (1.0 + cosw0) / 2.0
		b1 = -(1.0 + cosw0)
		b2 = (1.0 + cosw0) / 2.0
	case Bandpass:
		b0 = alpha
		b1 = 0
		b2 = -alpha
	default:
		b0 = (1.0 - cosw0) / 2.0
		b1 = 1.0 - cosw0
		b2 = (1.0 - cosw0) / 2.0
	}
	a0 := 1.0 + alpha
	b.b0 = b0 / a0
	b.b1 = b1 / a0
	b.b2 = b2 / a0
	b.a1 = -2.0 * cosw0 / a0
	b.a2 = (1.0 - alpha) / a0
}

// Process filters one sample (Direct Form I).
func (b *Biquad) Process(input float64) float64 {
	output := b.b0*input + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	output = dspcore.FlushDenormals(output)

	b.x2 = b.x1
	b.x1 = input
	b.y2 = b.y1
	b.y1 = output

	return output
}

// ProcessBlock filters buf in place.
func (b *Biquad) ProcessBlock(buf []float64) {
	for i, v := range buf {
		buf[i] = b.Process(v)
	}
}

// Reset clears the filter state
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}
