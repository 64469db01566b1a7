package evaluation

import (
	"fmt"
	"sort"

	"github.com/cwbudde/algo-soundmatch/analysis"
	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/features"
)

// FeatureEval scores predictions with an extractor and a set of named
// distances (see analysis.DistanceNames). Predictions must produce
// vectors of the target's shape.
type FeatureEval struct {
	Extractor features.FeatureExtractor
	Distances []string
}

var _ TargetEvaluator = FeatureEval{}

func (e FeatureEval) EvaluateTarget(target *audio.Signal, predictions []*audio.Signal) ([]Metrics, error) {
	if e.Extractor == nil {
		return nil, errs.Config("feature_eval", "nil extractor")
	}
	names := e.Distances
	if len(names) == 0 {
		names = []string{"mae", "mse", "euclidean", "manhattan"}
	}
	fns := make([]analysis.DistanceFunc, len(names))
	for i, n := range names {
		fn, err := analysis.DistanceByName(n)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	ref, err := e.Extractor.Features(target)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	out := make([]Metrics, len(predictions))
	for j, p := range predictions {
		v, err := e.Extractor.Features(p)
		if err != nil {
			return nil, fmt.Errorf("prediction %d: %w", j, err)
		}
		if err := features.Compatible(ref, v); err != nil {
			return nil, fmt.Errorf("prediction %d: %w", j, err)
		}
		m := make(Metrics, len(names))
		for i, fn := range fns {
			d, err := fn(ref.Data, v.Data)
			if err != nil {
				return nil, err
			}
			m[names[i]] = d
		}
		out[j] = m
	}
	return out, nil
}

// CompareEval reports the time, envelope and spectral comparison from
// analysis.Compare.
type CompareEval struct{}

var _ TargetEvaluator = CompareEval{}

func (CompareEval) EvaluateTarget(target *audio.Signal, predictions []*audio.Signal) ([]Metrics, error) {
	out := make([]Metrics, len(predictions))
	for j, p := range predictions {
		c, err := analysis.Compare(target, p)
		if err != nil {
			return nil, fmt.Errorf("prediction %d: %w", j, err)
		}
		out[j] = Metrics{
			"time_rmse":           c.TimeRMSE,
			"envelope_rmse_db":    c.EnvelopeRMSEDB,
			"spectral_rmse_db":    c.SpectralRMSEDB,
			"decay_diff_db_per_s": c.DecayDiffDBPerS,
			"score":               c.Score,
			"similarity":          c.Similarity,
		}
	}
	return out, nil
}

// Names returns the metric names of m in sorted order.
func (m Metrics) Names() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
