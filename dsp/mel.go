package dsp

import "math"

const (
	melFSP       = 200.0 / 3.0
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSP
	melLogStep   = 0.06875177742094912 // ln(6.4) / 27
)

// HzToMel converts frequency to the Slaney mel scale.
func HzToMel(f float64) float64 {
	if f < melMinLogHz {
		return f / melFSP
	}
	return melMinLogMel + math.Log(f/melMinLogHz)/melLogStep
}

// MelToHz is the inverse of HzToMel.
func MelToHz(m float64) float64 {
	if m < melMinLogMel {
		return m * melFSP
	}
	return melMinLogHz * math.Exp(melLogStep*(m-melMinLogMel))
}

// MelFilterbank builds nMels triangular filters over nFFT/2+1 bins with
// Slaney area normalization. fmax <= 0 means Nyquist.
func MelFilterbank(sampleRate, nFFT, nMels int, fmin, fmax float64) [][]float64 {
	if fmax <= 0 {
		fmax = float64(sampleRate) / 2
	}
	bins := nFFT/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nFFT)
	}
	melMin, melMax := HzToMel(fmin), HzToMel(fmax)
	pts := make([]float64, nMels+2)
	for i := range pts {
		pts[i] = MelToHz(melMin + (melMax-melMin)*float64(i)/float64(nMels+1))
	}

	fb := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		lo, c, hi := pts[m], pts[m+1], pts[m+2]
		row := make([]float64, bins)
		norm := 2.0 / (hi - lo)
		for k, f := range fftFreqs {
			var v float64
			switch {
			case f >= lo && f <= c && c > lo:
				v = (f - lo) / (c - lo)
			case f > c && f <= hi && hi > c:
				v = (hi - f) / (hi - c)
			}
			row[k] = v * norm
		}
		fb[m] = row
	}
	return fb
}

// DCT2Ortho returns the first n coefficients of the orthonormal DCT-II of x.
func DCT2Ortho(x []float64, n int) []float64 {
	N := len(x)
	out := make([]float64, n)
	if N == 0 {
		return out
	}
	s0 := math.Sqrt(1.0 / float64(N))
	sk := math.Sqrt(2.0 / float64(N))
	for k := 0; k < n && k < N; k++ {
		var sum float64
		for i, v := range x {
			sum += v * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(N)))
		}
		if k == 0 {
			out[k] = sum * s0
		} else {
			out[k] = sum * sk
		}
	}
	return out
}
