package estimator

import (
	"math"
	"math/rand"
	"strings"

	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/synth"
)

// Crossover selects the GA recombination operator.
type Crossover string

const (
	CrossoverBlend   Crossover = "blend"
	CrossoverUniform Crossover = "uniform"
	CrossoverSBX     Crossover = "sbx"
)

// ParseCrossover resolves a crossover name.
func ParseCrossover(s string) (Crossover, error) {
	switch c := Crossover(strings.ToLower(strings.TrimSpace(s))); c {
	case CrossoverBlend, CrossoverUniform, CrossoverSBX:
		return c, nil
	case "":
		return CrossoverBlend, nil
	}
	return "", errs.Config("crossover", "unknown crossover %q (valid: blend, uniform, sbx)", s)
}

// randomGenes draws n genes uniform in [0,1].
func randomGenes(rng *rand.Rand, n int) []float64 {
	g := make([]float64, n)
	for i := range g {
		g[i] = rng.Float64()
	}
	return g
}

// tournament fills a mating pool of len(pop) winners of size-k
// tournaments. Lower fitness wins; equal fitness goes to the lower index.
func tournament(rng *rand.Rand, pop []*individual, k int) []*individual {
	out := make([]*individual, len(pop))
	for i := range out {
		win := rng.Intn(len(pop))
		for j := 1; j < k; j++ {
			c := rng.Intn(len(pop))
			if pop[c].fit < pop[win].fit || (pop[c].fit == pop[win].fit && c < win) {
				win = c
			}
		}
		out[i] = pop[win].clone()
	}
	return out
}

// blend is BLX-alpha: each gene pair is mixed with its own gamma.
func blend(rng *rand.Rand, a, b []float64, alpha float64) {
	for i := range a {
		gamma := (1+2*alpha)*rng.Float64() - alpha
		x, y := a[i], b[i]
		a[i] = synth.Clamp01((1-gamma)*x + gamma*y)
		b[i] = synth.Clamp01(gamma*x + (1-gamma)*y)
	}
}

func uniform(rng *rand.Rand, a, b []float64) {
	for i := range a {
		if rng.Float64() < 0.5 {
			a[i], b[i] = b[i], a[i]
		}
	}
}

// sbx is bounded simulated binary crossover on [0,1].
func sbx(rng *rand.Rand, a, b []float64, eta float64) {
	const lo, hi = 0.0, 1.0
	exp := 1 / (eta + 1)
	spread := func(beta, u float64) float64 {
		alpha := 2 - math.Pow(beta, -(eta+1))
		if u <= 1/alpha {
			return math.Pow(u*alpha, exp)
		}
		return math.Pow(1/(2-u*alpha), exp)
	}
	for i := range a {
		if rng.Float64() > 0.5 {
			continue
		}
		if math.Abs(a[i]-b[i]) <= 1e-14 {
			continue
		}
		x1, x2 := math.Min(a[i], b[i]), math.Max(a[i], b[i])
		u := rng.Float64()
		bq := spread(1+2*(x1-lo)/(x2-x1), u)
		c1 := 0.5 * (x1 + x2 - bq*(x2-x1))
		bq = spread(1+2*(hi-x2)/(x2-x1), u)
		c2 := 0.5 * (x1 + x2 + bq*(x2-x1))
		c1, c2 = synth.Clamp01(c1), synth.Clamp01(c2)
		if rng.Float64() <= 0.5 {
			a[i], b[i] = c2, c1
		} else {
			a[i], b[i] = c1, c2
		}
	}
}

// offsetMutate perturbs each gene with probability p by a uniform offset
// in [-scale, scale]. It reports whether any gene changed.
func offsetMutate(rng *rand.Rand, g []float64, p, scale float64) bool {
	changed := false
	for i := range g {
		if rng.Float64() < p {
			g[i] = synth.Clamp01(g[i] + (2*rng.Float64()-1)*scale)
			changed = true
		}
	}
	return changed
}

// polynomialMutate is bounded polynomial mutation on [0,1], each gene
// with probability indpb.
func polynomialMutate(rng *rand.Rand, g []float64, eta, indpb float64) bool {
	changed := false
	exp := 1 / (eta + 1)
	for i, x := range g {
		if rng.Float64() > indpb {
			continue
		}
		u := rng.Float64()
		var dq float64
		if u < 0.5 {
			v := 2*u + (1-2*u)*math.Pow(1-x, eta+1)
			dq = math.Pow(v, exp) - 1
		} else {
			v := 2*(1-u) + 2*(u-0.5)*math.Pow(x, eta+1)
			dq = 1 - math.Pow(v, exp)
		}
		g[i] = synth.Clamp01(x + dq)
		changed = true
	}
	return changed
}
