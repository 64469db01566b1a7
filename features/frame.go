package features

import (
	"math"
	"math/cmplx"
	"sync"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-soundmatch/errs"
)

type forwardFunc func(dst []complex128, src []float64)

// planCache hands out one real FFT per goroutine and size so that a single
// Extractor can be shared by concurrent fitness workers.
type planCache struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

type fftScratch struct {
	forward forwardFunc
	in      []float64
	out     []complex128
}

func (c *planCache) get(n int) (*fftScratch, error) {
	c.mu.Lock()
	if c.pools == nil {
		c.pools = make(map[int]*sync.Pool)
	}
	p := c.pools[n]
	if p == nil {
		p = &sync.Pool{}
		c.pools[n] = p
	}
	c.mu.Unlock()

	if s, ok := p.Get().(*fftScratch); ok {
		return s, nil
	}
	plan, err := algofft.NewPlanReal64(n)
	if err != nil {
		return nil, errs.Config("fft", "unsupported FFT size %d: %v", n, err)
	}
	return &fftScratch{
		forward: func(dst []complex128, src []float64) { plan.Forward(dst, src) },
		in:      make([]float64, n),
		out:     make([]complex128, n/2+1),
	}, nil
}

func (c *planCache) put(n int, s *fftScratch) {
	c.mu.Lock()
	p := c.pools[n]
	c.mu.Unlock()
	if p != nil {
		p.Put(s)
	}
}

// frameCount returns the number of frames produced for n samples.
func frameCount(n, frame, hop int, pad bool) (int, error) {
	if pad {
		n = paddedLen(n, frame)
	}
	if n < frame {
		return 0, errs.Shape("framing", "signal of %d samples is shorter than one frame (%d) and padding is disabled", n, frame)
	}
	return 1 + (n-frame)/hop, nil
}

func paddedLen(n, frame int) int {
	p := n + 2*(frame/2)
	if p < frame {
		p = frame
	}
	return p
}

// centerPad zero pads x by frame/2 on both sides.
func centerPad(x []float64, frame int) []float64 {
	out := make([]float64, paddedLen(len(x), frame))
	copy(out[frame/2:], x)
	return out
}

// stft computes the windowed short-time spectra of x, one slice of
// frame/2+1 bins per frame. The returned spectra are freshly allocated.
func (e *Extractor) stft(x []float64) ([][]complex128, error) {
	cfg := e.cfg
	frames, err := frameCount(len(x), cfg.FrameSize, cfg.HopSize, cfg.Pad)
	if err != nil {
		return nil, err
	}
	if cfg.Pad {
		x = centerPad(x, cfg.FrameSize)
	}
	sc, err := e.plans.get(cfg.FrameSize)
	if err != nil {
		return nil, err
	}
	defer e.plans.put(cfg.FrameSize, sc)

	bins := cfg.FrameSize/2 + 1
	out := make([][]complex128, frames)
	for f := 0; f < frames; f++ {
		start := f * cfg.HopSize
		seg := x[start : start+cfg.FrameSize]
		for i, v := range seg {
			sc.in[i] = v * e.window[i]
		}
		sc.forward(sc.out, sc.in)
		spec := make([]complex128, bins)
		copy(spec, sc.out)
		out[f] = spec
	}
	return out, nil
}

// magnitudes reduces spectra to |X|^power (power 1 or 2).
func magnitudes(spectra [][]complex128, power int) [][]float64 {
	out := make([][]float64, len(spectra))
	for f, spec := range spectra {
		row := make([]float64, len(spec))
		for k, c := range spec {
			m := real(c)*real(c) + imag(c)*imag(c)
			if power == 1 {
				m = math.Sqrt(m)
			}
			row[k] = m
		}
		out[f] = row
	}
	return out
}

// convertSpectrum reports one spectrum as t. Two-component types
// interleave (magnitude|power|real, phase|imag) per bin.
func convertSpectrum(spec []complex128, t SpectrumType) []float64 {
	comp := t.components()
	out := make([]float64, len(spec)*comp)
	for k, c := range spec {
		switch t {
		case SpectrumComplex:
			out[2*k] = real(c)
			out[2*k+1] = imag(c)
		case SpectrumMagnitude:
			out[k] = cmplx.Abs(c)
		case SpectrumPower:
			out[k] = real(c)*real(c) + imag(c)*imag(c)
		case SpectrumMagnitudePhase:
			out[2*k] = cmplx.Abs(c)
			out[2*k+1] = cmplx.Phase(c)
		case SpectrumPowerPhase:
			out[2*k] = real(c)*real(c) + imag(c)*imag(c)
			out[2*k+1] = cmplx.Phase(c)
		}
	}
	return out
}

// arrange lays a (frames x features) matrix out as a Vector honoring the
// TimeMajor flag. comp is the per-element component count.
func arrange(rows [][]float64, features, comp int, timeMajor bool) ([]float64, []int) {
	frames := len(rows)
	data := make([]float64, frames*features*comp)
	if timeMajor {
		for t, row := range rows {
			copy(data[t*features*comp:], row)
		}
	} else {
		for t, row := range rows {
			for k := 0; k < features; k++ {
				for c := 0; c < comp; c++ {
					data[(k*frames+t)*comp+c] = row[k*comp+c]
				}
			}
		}
	}
	var shape []int
	if timeMajor {
		shape = []int{frames, features}
	} else {
		shape = []int{features, frames}
	}
	if comp > 1 {
		shape = append(shape, comp)
	}
	return data, shape
}
