package subsynth

import (
	"fmt"
	"math"
	"math/rand"

	algofft "github.com/cwbudde/algo-fft"
)

// reverbConfig controls synthetic room impulse generation.
type reverbConfig struct {
	SampleRate    int
	DecayS        float64
	Seed          int64
	DirectLevel   float64
	EarlyCount    int
	LateLevel     float64
	NormalizePeak float64
}

func defaultReverbConfig(sampleRate int, decayS float64) reverbConfig {
	return reverbConfig{
		SampleRate:    sampleRate,
		DecayS:        decayS,
		Seed:          1,
		DirectLevel:   0.0,
		EarlyCount:    12,
		LateLevel:     0.35,
		NormalizePeak: 0.5,
	}
}

func (c reverbConfig) validate() error {
	if c.SampleRate < 8000 {
		return fmt.Errorf("sample rate too low: %d", c.SampleRate)
	}
	if c.DecayS <= 0 {
		return fmt.Errorf("decay seconds must be > 0")
	}
	if c.EarlyCount < 0 {
		return fmt.Errorf("early count must be >= 0")
	}
	if c.LateLevel < 0 || c.DirectLevel < 0 {
		return fmt.Errorf("levels must be >= 0")
	}
	if c.NormalizePeak <= 0 {
		return fmt.Errorf("normalize peak must be > 0")
	}
	return nil
}

// generateIR synthesizes a mono impulse response: early reflections plus a
// low-passed exponentially decaying noise tail.
func generateIR(cfg reverbConfig) ([]float32, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n := int(math.Round(1.5 * cfg.DecayS * float64(cfg.SampleRate)))
	if n < 1 {
		n = 1
	}
	ir := make([]float64, n)
	rng := rand.New(rand.NewSource(cfg.Seed))

	ir[0] += cfg.DirectLevel

	for i := 0; i < cfg.EarlyCount; i++ {
		t := 0.003 + 0.040*rng.Float64()
		idx := int(t * float64(cfg.SampleRate))
		if idx <= 0 || idx >= n {
			continue
		}
		amp := (0.15 + 0.35*rng.Float64()) * math.Exp(-t*20.0)
		if rng.Intn(2) == 0 {
			amp = -amp
		}
		ir[idx] += amp
	}

	// -60 dB at DecayS.
	tau := cfg.DecayS / 6.9
	lp := 0.0
	for i := 0; i < n; i++ {
		t := float64(i) / float64(cfg.SampleRate)
		lp = 0.7*lp + 0.3*rng.NormFloat64()
		ir[i] += cfg.LateLevel * math.Exp(-t/tau) * lp
	}

	highpassDC(ir, 0.995)

	peak := 0.0
	for _, v := range ir {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak < 1e-12 {
		peak = 1e-12
	}
	s := cfg.NormalizePeak / peak
	out := make([]float32, n)
	for i, v := range ir {
		out[i] = float32(v * s)
	}
	return out, nil
}

func highpassDC(x []float64, r float64) {
	var x1, y1 float64
	for i, v := range x {
		y := v - x1 + r*y1
		x1 = v
		y1 = y
		x[i] = y
	}
}

// applyReverb mixes the convolution of dry with ir into a copy of dry,
// truncated to the dry length.
func applyReverb(dry []float64, ir []float32, mix float64) ([]float64, error) {
	a := make([]float32, len(dry))
	for i, v := range dry {
		a[i] = float32(v)
	}
	wet := make([]float32, len(a)+len(ir)-1)
	if err := algofft.ConvolveReal(wet, a, ir); err != nil {
		return nil, err
	}
	out := make([]float64, len(dry))
	for i, v := range dry {
		out[i] = (1-mix)*v + mix*float64(wet[i])
	}
	return out, nil
}
