// Package evaluation scores predicted audio against targets. Scores are
// kept per target and per source (one source per matching method), with
// summary statistics per source and metric.
package evaluation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/errs"
)

// Metrics maps a metric name to its value.
type Metrics map[string]float64

// Scores is target key -> source key -> metrics.
type Scores map[string]map[string]Metrics

// Summary condenses one metric over all targets.
type Summary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Stats is source key -> metric -> summary.
type Stats map[string]map[string]Summary

// TargetEvaluator scores each prediction against one target.
type TargetEvaluator interface {
	EvaluateTarget(target *audio.Signal, predictions []*audio.Signal) ([]Metrics, error)
}

// Evaluation runs a TargetEvaluator over all targets.
type Evaluation struct {
	targets     []*audio.Signal
	estimations [][]*audio.Signal
	eval        TargetEvaluator
	scores      Scores
	stats       Stats
}

// TargetKey and SourceKey name the entries of Scores.
func TargetKey(i int) string { return fmt.Sprintf("target_%d", i) }
// SourceKey names the j-th estimation source in Scores.
func SourceKey(j int) string { return fmt.Sprintf("source_%d", j) }

// New binds targets and estimations. estimations holds one list per
// source, each with one prediction per target in target order.
func New(targets []*audio.Signal, estimations [][]*audio.Signal, ev TargetEvaluator) (*Evaluation, error) {
	if ev == nil {
		return nil, errs.Config("evaluation", "nil evaluator")
	}
	if len(targets) == 0 {
		return nil, errs.Validation("evaluation", "no targets")
	}
	for i, t := range targets {
		if err := t.Validate(); err != nil {
			return nil, errs.Validation("evaluation", "target %d: %v", i, err)
		}
	}
	for j, src := range estimations {
		if len(src) != len(targets) {
			return nil, errs.Shape("evaluation", "source %d has %d predictions for %d targets", j, len(src), len(targets))
		}
		for i, p := range src {
			if err := p.Validate(); err != nil {
				return nil, errs.Validation("evaluation", "source %d prediction %d: %v", j, i, err)
			}
		}
	}
	return &Evaluation{targets: targets, estimations: estimations, eval: ev}, nil
}

// Evaluate recomputes all scores and clears cached stats.
func (e *Evaluation) Evaluate() error {
	scores := make(Scores, len(e.targets))
	for i, target := range e.targets {
		preds := make([]*audio.Signal, len(e.estimations))
		for j, src := range e.estimations {
			preds[j] = src[i]
		}
		results, err := e.eval.EvaluateTarget(target, preds)
		if err != nil {
			return fmt.Errorf("evaluate target %d: %w", i, err)
		}
		if len(results) != len(preds) {
			return errs.Shape("evaluation", "target %d: %d results for %d predictions", i, len(results), len(preds))
		}
		row := make(map[string]Metrics, len(results))
		for j, m := range results {
			row[SourceKey(j)] = m
		}
		scores[TargetKey(i)] = row
	}
	e.scores = scores
	e.stats = nil
	return nil
}

// Scores returns the scores of the last Evaluate call, or nil.
func (e *Evaluation) Scores() Scores { return e.scores }

// Stats summarizes the scores per source and metric. It returns nil
// before Evaluate.
func (e *Evaluation) Stats() Stats {
	if e.scores == nil {
		return nil
	}
	if e.stats == nil {
		e.stats = Summarize(e.scores)
	}
	return e.stats
}

// Summarize groups scores by source and metric and summarizes each group.
func Summarize(scores Scores) Stats {
	grouped := map[string]map[string][]float64{}
	targets := make([]string, 0, len(scores))
	for t := range scores {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, t := range targets {
		for src, metrics := range scores[t] {
			g := grouped[src]
			if g == nil {
				g = map[string][]float64{}
				grouped[src] = g
			}
			for name, v := range metrics {
				g[name] = append(g[name], v)
			}
		}
	}
	out := make(Stats, len(grouped))
	for src, g := range grouped {
		out[src] = make(map[string]Summary, len(g))
		for name, values := range g {
			out[src][name] = summarize(values)
		}
	}
	return out
}

func summarize(x []float64) Summary {
	if len(x) == 0 {
		return Summary{}
	}
	mean, variance := stat.PopMeanVariance(x, nil)
	return Summary{
		Mean:   mean,
		Median: median(x),
		Std:    math.Sqrt(variance),
		Min:    floats.Min(x),
		Max:    floats.Max(x),
	}
}

func median(x []float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return 0.5 * (s[n/2-1] + s[n/2])
}
