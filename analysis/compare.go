package analysis

import (
	"math"

	algofft "github.com/cwbudde/algo-fft"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/dsp"
)

// Metrics contains distance and similarity measurements between two audio signals.
type Metrics struct {
	SampleRate int `json:"sample_rate"`

	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	LagSamples      int `json:"lag_samples"`

	TimeRMSE        float64 `json:"time_rmse"`
	EnvelopeRMSEDB  float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB  float64 `json:"spectral_rmse_db"`
	RefDecayDBPerS  float64 `json:"ref_decay_db_per_s"`
	CandDecayDBPerS float64 `json:"cand_decay_db_per_s"`
	DecayDiffDBPerS float64 `json:"decay_diff_db_per_s"`

	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

const (
	envFrame     = 256
	envHop       = 128
	minAligned   = 256
	maxAlignSecs = 12
)

// Compare mixes both signals to mono, resamples the candidate to the
// reference rate and compares them. Score is in [0,1], 0 for identical
// signals; Similarity is exp(-4*Score).
func Compare(reference, candidate *audio.Signal) (Metrics, error) {
	if err := reference.Validate(); err != nil {
		return Metrics{}, err
	}
	if err := candidate.Validate(); err != nil {
		return Metrics{}, err
	}
	cand := candidate.Mono()
	if cand.SampleRate != reference.SampleRate {
		var err error
		if cand, err = cand.Resample(reference.SampleRate); err != nil {
			return Metrics{}, err
		}
	}
	return CompareSamples(reference.Mono().Samples, cand.Samples, reference.SampleRate), nil
}

// CompareSamples compares two mono buffers at the same sample rate.
// Degenerate input (silence, too short after alignment) scores 1.
func CompareSamples(reference, candidate []float64, sampleRate int) Metrics {
	m := Metrics{
		SampleRate:      sampleRate,
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
		Score:           1,
	}
	if sampleRate <= 0 {
		return m
	}
	ref := scaleToRMS(skipSilence(reference, 1e-6), 0.1)
	cand := scaleToRMS(skipSilence(candidate, 1e-6), 0.1)
	if len(ref) == 0 || len(cand) == 0 {
		return m
	}

	maxLag := min(sampleRate/2, len(ref)-1, len(cand)-1)
	m.LagSamples = estimateLag(ref, cand, max(maxLag, 1))
	ref, cand = alignByLag(ref, cand, m.LagSamples)
	n := min(len(ref), len(cand), sampleRate*maxAlignSecs)
	if n < minAligned {
		return m
	}
	ref, cand = ref[:n], cand[:n]
	m.AlignedFrames = n

	m.TimeRMSE, _ = RMSE(ref, cand)

	refEnv := envelope(ref)
	candEnv := envelope(cand)
	if k := min(len(refEnv), len(candEnv)); k > 0 {
		var sum float64
		for i := 0; i < k; i++ {
			d := dsp.AmpToDB(refEnv[i], 1e-12) - dsp.AmpToDB(candEnv[i], 1e-12)
			sum += d * d
		}
		m.EnvelopeRMSEDB = math.Sqrt(sum / float64(k))
	}

	m.SpectralRMSEDB = spectralRMSEDB(ref, cand)

	hop := float64(envHop) / float64(sampleRate)
	m.RefDecayDBPerS = decaySlope(refEnv, hop)
	m.CandDecayDBPerS = decaySlope(candEnv, hop)
	if finite(m.RefDecayDBPerS) && finite(m.CandDecayDBPerS) {
		m.DecayDiffDBPerS = math.Abs(m.RefDecayDBPerS - m.CandDecayDBPerS)
	}

	score := 0.30*unit(m.TimeRMSE/0.25) +
		0.25*unit(m.EnvelopeRMSEDB/30) +
		0.30*unit(m.SpectralRMSEDB/30) +
		0.15*unit(m.DecayDiffDBPerS/40)
	m.Score = unit(score)
	m.Similarity = unit(math.Exp(-4 * m.Score))
	return m
}

func skipSilence(x []float64, threshold float64) []float64 {
	for i, v := range x {
		if math.Abs(v) > threshold {
			return x[i:]
		}
	}
	return nil
}

func scaleToRMS(x []float64, target float64) []float64 {
	out := append([]float64(nil), x...)
	r := rms(x)
	if r <= 1e-12 {
		return out
	}
	g := target / r
	for i := range out {
		out[i] *= g
	}
	return out
}

// estimateLag returns the shift L in [-maxLag, maxLag] maximizing
// sum ref[i+L]*cand[i], computed as one FFT convolution of ref with the
// reversed candidate.
func estimateLag(ref, cand []float64, maxLag int) int {
	a := make([]float32, len(ref))
	for i, v := range ref {
		a[i] = float32(v)
	}
	b := make([]float32, len(cand))
	for i, v := range cand {
		b[len(cand)-1-i] = float32(v)
	}
	corr := make([]float32, len(a)+len(b)-1)
	if err := algofft.ConvolveReal(corr, a, b); err != nil {
		return estimateLagDirect(ref, cand, maxLag)
	}
	zero := len(cand) - 1
	best, bestLag := math.Inf(-1), 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		idx := zero + lag
		if idx < 0 || idx >= len(corr) {
			continue
		}
		if v := float64(corr[idx]); v > best {
			best, bestLag = v, lag
		}
	}
	return bestLag
}

func estimateLagDirect(ref, cand []float64, maxLag int) int {
	best, bestLag := math.Inf(-1), 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		if s := dotAtLag(ref, cand, lag); s > best {
			best, bestLag = s, lag
		}
	}
	return bestLag
}

func dotAtLag(a, b []float64, lag int) float64 {
	ai, bi := 0, 0
	if lag >= 0 {
		ai = lag
	} else {
		bi = -lag
	}
	var sum float64
	for i := 0; ai+i < len(a) && bi+i < len(b); i++ {
		sum += a[ai+i] * b[bi+i]
	}
	return sum
}

func alignByLag(ref, cand []float64, lag int) ([]float64, []float64) {
	if lag >= 0 {
		if lag >= len(ref) {
			return nil, nil
		}
		return ref[lag:], cand
	}
	if -lag >= len(cand) {
		return nil, nil
	}
	return ref, cand[-lag:]
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func envelope(x []float64) []float64 {
	if len(x) < envFrame {
		return nil
	}
	n := 1 + (len(x)-envFrame)/envHop
	out := make([]float64, n)
	for i := range out {
		out[i] = rms(x[i*envHop : i*envHop+envFrame])
	}
	return out
}

// spectralRMSEDB compares Hann-windowed magnitude spectra of the first
// power-of-two block (512..4096 samples) of both signals.
func spectralRMSEDB(a, b []float64) float64 {
	n := 4096
	for n > min(len(a), len(b)) {
		n /= 2
	}
	if n < 512 {
		return 0
	}
	ma, err := magnitudeSpectrum(a[:n])
	if err != nil {
		return 0
	}
	mb, err := magnitudeSpectrum(b[:n])
	if err != nil {
		return 0
	}
	bins := n / 2
	var sum float64
	for k := 1; k < bins; k++ {
		d := dsp.AmpToDB(ma[k], 1e-12) - dsp.AmpToDB(mb[k], 1e-12)
		sum += d * d
	}
	return math.Sqrt(sum / float64(bins-1))
}

func magnitudeSpectrum(x []float64) ([]float64, error) {
	win, err := dsp.Window("hann", len(x))
	if err != nil {
		return nil, err
	}
	plan, err := algofft.NewPlanReal64(len(x))
	if err != nil {
		return nil, err
	}
	in := make([]float64, len(x))
	for i, v := range x {
		in[i] = v * win[i]
	}
	out := make([]complex128, len(x)/2+1)
	forward := func(dst []complex128, src []float64) { plan.Forward(dst, src) }
	forward(out, in)
	mag := make([]float64, len(out))
	for i, c := range out {
		mag[i] = math.Hypot(real(c), imag(c))
	}
	return mag, nil
}

// decaySlope fits a line to the dB envelope from its peak down to 60 dB
// below it. NaN when the decay segment is too short.
func decaySlope(env []float64, hopSec float64) float64 {
	if len(env) < 8 || hopSec <= 0 {
		return math.NaN()
	}
	db := make([]float64, len(env))
	peak, peakIdx := math.Inf(-1), 0
	for i, v := range env {
		db[i] = dsp.AmpToDB(v, 1e-12)
		if db[i] > peak {
			peak, peakIdx = db[i], i
		}
	}
	start := peakIdx + 1
	if start >= len(env)-4 {
		return math.NaN()
	}
	end := len(env)
	for i := start; i < len(env); i++ {
		if db[i] < peak-60 {
			end = i
			break
		}
	}
	if end-start < 6 {
		return math.NaN()
	}
	xs := make([]float64, end-start)
	for i := range xs {
		xs[i] = float64(i) * hopSec
	}
	_, slope := stat.LinearRegression(xs, db[start:end], nil, false)
	return slope
}

func unit(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
