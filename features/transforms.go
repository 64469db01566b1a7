package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-soundmatch/dsp"
	"github.com/cwbudde/algo-soundmatch/errs"
)

type transformFunc func(e *Extractor, x []float64) (data []float64, shape []int, layout Layout, err error)

func transformFor(k Kind) transformFunc {
	switch k {
	case KindSTFT:
		return stftTransform
	case KindFFT:
		return fftTransform
	case KindMFCC:
		return mfccTransform
	case KindMel:
		return melTransform
	case KindSpectral:
		return spectralTransform
	}
	return nil
}

func layoutOf(timeMajor bool) Layout {
	if timeMajor {
		return TimeMajor
	}
	return FeatureMajor
}

func stftTransform(e *Extractor, x []float64) ([]float64, []int, Layout, error) {
	spectra, err := e.stft(x)
	if err != nil {
		return nil, nil, "", err
	}
	rows := make([][]float64, len(spectra))
	for f, spec := range spectra {
		rows[f] = convertSpectrum(spec, e.cfg.Spectrum)
	}
	bins := e.cfg.FrameSize/2 + 1
	data, shape := arrange(rows, bins, e.cfg.Spectrum.components(), e.cfg.TimeMajor)
	return data, shape, layoutOf(e.cfg.TimeMajor), nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (e *Extractor) fftSize(numSamples int) int {
	if e.cfg.FFTSize > 0 {
		return e.cfg.FFTSize
	}
	n := nextPow2(numSamples)
	if n < 2 {
		n = 2
	}
	return n
}

func fftTransform(e *Extractor, x []float64) ([]float64, []int, Layout, error) {
	n := e.fftSize(len(x))
	if e.cfg.FFTSize > 0 && len(x) < n && !e.cfg.Pad {
		return nil, nil, "", errs.Shape("fft", "signal of %d samples is shorter than fft size %d and padding is disabled", len(x), n)
	}
	sc, err := e.plans.get(n)
	if err != nil {
		return nil, nil, "", err
	}
	defer e.plans.put(n, sc)
	for i := range sc.in {
		sc.in[i] = 0
	}
	copy(sc.in, x)
	sc.forward(sc.out, sc.in)
	data := convertSpectrum(sc.out, e.cfg.Spectrum)
	shape := []int{n/2 + 1}
	if c := e.cfg.Spectrum.components(); c > 1 {
		shape = append(shape, c)
	}
	return data, shape, Summary, nil
}

// melSpectrogram returns per-frame mel band powers.
func (e *Extractor) melSpectrogram(x []float64) ([][]float64, error) {
	spectra, err := e.stft(x)
	if err != nil {
		return nil, err
	}
	power := magnitudes(spectra, 2)
	out := make([][]float64, len(power))
	for f, p := range power {
		row := make([]float64, len(e.melBank))
		for m, filt := range e.melBank {
			var sum float64
			for k, w := range filt {
				if w != 0 {
					sum += w * p[k]
				}
			}
			row[m] = sum
		}
		out[f] = row
	}
	return out, nil
}

// logMel converts all mel energies to dB relative to 1.0 with a shared
// top-dB floor.
func logMel(rows [][]float64, topDB float64) {
	if len(rows) == 0 {
		return
	}
	width := len(rows[0])
	flat := make([]float64, 0, len(rows)*width)
	for _, r := range rows {
		flat = append(flat, r...)
	}
	dsp.PowerToDB(flat, 1.0, 1e-10, topDB)
	for i, r := range rows {
		copy(r, flat[i*width:(i+1)*width])
	}
}

func mfccTransform(e *Extractor, x []float64) ([]float64, []int, Layout, error) {
	mel, err := e.melSpectrogram(x)
	if err != nil {
		return nil, nil, "", err
	}
	logMel(mel, e.cfg.TopDB)
	rows := make([][]float64, len(mel))
	for f, m := range mel {
		rows[f] = dsp.DCT2Ortho(m, e.cfg.Coefficients)
	}
	data, shape := arrange(rows, e.cfg.Coefficients, 1, e.cfg.TimeMajor)
	return data, shape, layoutOf(e.cfg.TimeMajor), nil
}

func melTransform(e *Extractor, x []float64) ([]float64, []int, Layout, error) {
	mel, err := e.melSpectrogram(x)
	if err != nil {
		return nil, nil, "", err
	}
	if e.cfg.LogMel {
		logMel(mel, e.cfg.TopDB)
	}
	data, shape := arrange(mel, e.cfg.Mels, 1, e.cfg.TimeMajor)
	return data, shape, layoutOf(e.cfg.TimeMajor), nil
}

// spectralTransform summarizes centroid, bandwidth, flatness, rolloff and
// per-band contrast by their mean and population variance over time.
func spectralTransform(e *Extractor, x []float64) ([]float64, []int, Layout, error) {
	spectra, err := e.stft(x)
	if err != nil {
		return nil, nil, "", err
	}
	mag := magnitudes(spectra, 1)
	freqs := e.binFreqs
	nb := e.cfg.ContrastBands + 1

	frames := len(mag)
	tracks := make([][]float64, 4+nb)
	for i := range tracks {
		tracks[i] = make([]float64, frames)
	}
	for f, s := range mag {
		c := centroid(s, freqs)
		tracks[0][f] = c
		tracks[1][f] = bandwidth(s, freqs, c)
		tracks[2][f] = flatness(s)
		tracks[3][f] = rolloff(s, freqs, e.cfg.RolloffPercent)
		con := contrast(s, e.bands)
		for b := 0; b < nb; b++ {
			tracks[4+b][f] = con[b]
		}
	}

	data := make([]float64, 0, 2*len(tracks))
	for _, tr := range tracks {
		mean, variance := stat.PopMeanVariance(tr, nil)
		data = append(data, mean, variance)
	}
	return data, []int{len(data)}, Summary, nil
}

func centroid(s, freqs []float64) float64 {
	var num, den float64
	for k, v := range s {
		num += freqs[k] * v
		den += v
	}
	if den <= 0 {
		return 0
	}
	return num / den
}

func bandwidth(s, freqs []float64, c float64) float64 {
	var den float64
	for _, v := range s {
		den += v
	}
	if den <= 0 {
		return 0
	}
	var sum float64
	for k, v := range s {
		d := freqs[k] - c
		sum += (v / den) * d * d
	}
	return math.Sqrt(sum)
}

func flatness(s []float64) float64 {
	const amin = 1e-10
	var logSum, sum float64
	for _, v := range s {
		p := v * v
		if p < amin {
			p = amin
		}
		logSum += math.Log(p)
		sum += p
	}
	n := float64(len(s))
	return math.Exp(logSum/n) / (sum / n)
}

func rolloff(s, freqs []float64, pct float64) float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	threshold := pct * total
	var cum float64
	for k, v := range s {
		cum += v
		if cum >= threshold {
			return freqs[k]
		}
	}
	return freqs[len(freqs)-1]
}

// contrastBand selects the bins of one octave band. trimLast drops the
// highest selected bin from the sorted statistics, matching band overlap.
type contrastBand struct {
	lo, hi   int
	count    int
	trimLast bool
}

func contrastBands(freqs []float64, fmin float64, bands int) []contrastBand {
	edges := make([]float64, bands+2)
	for i := 1; i < len(edges); i++ {
		edges[i] = fmin * math.Pow(2, float64(i-1))
	}
	out := make([]contrastBand, bands+1)
	for b := 0; b <= bands; b++ {
		lo, hi := -1, -1
		for k, f := range freqs {
			if f >= edges[b] && f <= edges[b+1] {
				if lo < 0 {
					lo = k
				}
				hi = k
			}
		}
		if lo < 0 {
			lo, hi = 0, 0
		}
		if b > 0 && lo > 0 {
			lo--
		}
		if b == bands {
			hi = len(freqs) - 1
		}
		out[b] = contrastBand{lo: lo, hi: hi, count: hi - lo + 1, trimLast: b < bands}
	}
	return out
}

func contrast(s []float64, bands []contrastBand) []float64 {
	const quantile = 0.02
	out := make([]float64, len(bands))
	buf := make([]float64, 0, len(s))
	for b, band := range bands {
		buf = append(buf[:0], s[band.lo:band.hi+1]...)
		if band.trimLast && len(buf) > 1 {
			buf = buf[:len(buf)-1]
		}
		sort.Float64s(buf)
		idx := int(math.Round(quantile * float64(band.count)))
		if idx < 1 {
			idx = 1
		}
		if idx > len(buf) {
			idx = len(buf)
		}
		var valley, peak float64
		for i := 0; i < idx; i++ {
			valley += buf[i]
			peak += buf[len(buf)-1-i]
		}
		valley /= float64(idx)
		peak /= float64(idx)
		out[b] = powerDB(peak) - powerDB(valley)
	}
	return out
}

func powerDB(x float64) float64 {
	if x < 1e-10 {
		x = 1e-10
	}
	return 10 * math.Log10(x)
}
