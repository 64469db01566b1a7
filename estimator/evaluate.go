package estimator

import (
	"math"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-soundmatch/analysis"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/features"
)

type individual struct {
	genes []float64
	obj   []float64
	// fit is the scalar used for single-objective selection.
	fit   float64
	valid bool
}

func (ind *individual) clone() *individual {
	return &individual{
		genes: append([]float64(nil), ind.genes...),
		obj:   append([]float64(nil), ind.obj...),
		fit:   ind.fit,
		valid: ind.valid,
	}
}

func (ind *individual) invalidate() {
	ind.valid = false
	ind.obj = nil
}

// objectiveFunc maps candidate features to objective values.
type objectiveFunc func(cand []features.Vector) ([]float64, error)

// distanceObjectives returns objectives computed by dist between each
// candidate and its target. bands > 1 splits each flattened vector into
// that many contiguous bands, one objective per band.
func distanceObjectives(targets []features.Vector, dist analysis.DistanceFunc, bands int) objectiveFunc {
	bands = max(bands, 1)
	return func(cand []features.Vector) ([]float64, error) {
		out := make([]float64, 0, len(targets)*bands)
		for i, t := range targets {
			if err := features.Compatible(t, cand[i]); err != nil {
				return nil, err
			}
			for _, r := range bandRanges(len(t.Data), bands) {
				d, err := dist(t.Data[r[0]:r[1]], cand[i].Data[r[0]:r[1]])
				if err != nil {
					return nil, err
				}
				out = append(out, d)
			}
		}
		return out, nil
	}
}

func bandRanges(n, bands int) [][2]int {
	if bands > n {
		bands = n
	}
	out := make([][2]int, bands)
	for b := 0; b < bands; b++ {
		out[b] = [2]int{b * n / bands, (b + 1) * n / bands}
	}
	return out
}

// evaluate computes objectives for every invalid individual. Work is
// spread over the configured workers; results land by index and the
// error reported is the one of the lowest failing index. No further work
// is handed out once an evaluation fails. Cancellation is left to the
// callers, which check at generation boundaries.
func (b *base) evaluate(pop []*individual, objectives objectiveFunc) (int, error) {
	var todo []int
	for i, ind := range pop {
		if !ind.valid {
			todo = append(todo, i)
		}
	}
	if len(todo) == 0 {
		return 0, nil
	}
	failures := make([]error, len(pop))
	var failed atomic.Bool
	run := func(i int) {
		cand, err := b.candidateFeatures(pop[i].genes)
		if err == nil {
			pop[i].obj, err = objectives(cand)
		}
		if err != nil {
			failures[i] = err
			failed.Store(true)
			return
		}
		var sum float64
		for _, v := range pop[i].obj {
			sum += v
		}
		pop[i].fit = sum
		pop[i].valid = true
	}

	workers := min(b.workers, len(todo))
	if workers <= 1 {
		for _, i := range todo {
			run(i)
			if failed.Load() {
				break
			}
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					if !failed.Load() {
						run(i)
					}
				}
			}()
		}
		for _, i := range todo {
			if failed.Load() {
				break
			}
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	}

	for _, err := range failures {
		if err != nil {
			if errs.KindOf(err) == errs.KindUnknown {
				err = errs.Wrap(errs.KindEstimator, "fitness", err)
			}
			return len(todo), err
		}
	}
	return len(todo), nil
}

func fitnessStats(gen, evals int, pop []*individual) GenerationStats {
	fits := make([]float64, len(pop))
	for i, ind := range pop {
		fits[i] = ind.fit
	}
	mean, variance := stat.PopMeanVariance(fits, nil)
	st := GenerationStats{
		Gen:   gen,
		Evals: evals,
		Min:   floats.Min(fits),
		Max:   floats.Max(fits),
		Mean:  mean,
		Std:   math.Sqrt(variance),
	}
	if m := len(pop[0].obj); m > 1 {
		st.ObjectiveMin = make([]float64, m)
		col := make([]float64, len(pop))
		for j := 0; j < m; j++ {
			for i, ind := range pop {
				col[i] = ind.obj[j]
			}
			st.ObjectiveMin[j] = floats.Min(col)
		}
	}
	return st
}

// best returns the index of the lowest fitness, ties to the lower index.
func best(pop []*individual) int {
	bi := 0
	for i, ind := range pop {
		if ind.fit < pop[bi].fit {
			bi = i
		}
	}
	return bi
}
