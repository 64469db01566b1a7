package evaluation

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/shanghuiyang/dtw"
	"github.com/unixpickle/speechrecog/mfcc"

	"github.com/cwbudde/algo-soundmatch/analysis"
	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/errs"
)

// Metric names reported by MFCCEval.
const (
	MetricMAE       = "mean_abs_error"
	MetricMSE       = "mean_squared_error"
	MetricEuclidean = "euclidean_distance"
	MetricManhattan = "manhattan_distance"
	MetricDTW       = "dtw_distance"
)

const (
	evalMelCount = 13
	evalLowFreq  = 133.33
)

// MFCCEval compares cepstra computed with an MFCC implementation that is
// independent of the features package, so matches are not scored with
// the representation they were optimized on.
//
// The frame-wise metrics use the common prefix of both frame sequences.
// MetricDTW aligns the full sequences with dynamic time warping and a
// per-frame Euclidean cost.
type MFCCEval struct {
	// SampleRate is the analysis rate. 0 means the rate of each target.
	SampleRate int
	// DisableDTW skips the warping metric, which is quadratic in the
	// number of frames.
	DisableDTW bool
}

var _ TargetEvaluator = MFCCEval{}

func (e MFCCEval) EvaluateTarget(target *audio.Signal, predictions []*audio.Signal) ([]Metrics, error) {
	rate := e.SampleRate
	if rate <= 0 {
		rate = target.SampleRate
	}
	ref, err := cepstra(target, rate)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	out := make([]Metrics, len(predictions))
	for j, p := range predictions {
		est, err := cepstra(p, rate)
		if err != nil {
			return nil, fmt.Errorf("prediction %d: %w", j, err)
		}
		m, err := e.compare(ref, est)
		if err != nil {
			return nil, fmt.Errorf("prediction %d: %w", j, err)
		}
		out[j] = m
	}
	return out, nil
}

func (e MFCCEval) compare(ref, est [][]float64) (Metrics, error) {
	n := len(ref)
	if len(est) < n {
		n = len(est)
	}
	if n == 0 {
		return nil, errs.Shape("mfcc_eval", "no complete analysis frames")
	}
	a, b := flatten(ref[:n]), flatten(est[:n])
	m := Metrics{}
	for name, dist := range map[string]string{
		MetricMAE:       "mae",
		MetricMSE:       "mse",
		MetricEuclidean: "euclidean",
		MetricManhattan: "manhattan",
	} {
		fn, err := analysis.DistanceByName(dist)
		if err != nil {
			return nil, err
		}
		v, err := fn(a, b)
		if err != nil {
			return nil, err
		}
		m[name] = v
	}
	if !e.DisableDTW {
		d, err := warpDistance(ref, est)
		if err != nil {
			return nil, err
		}
		m[MetricDTW] = d
	}
	return m, nil
}

// cepstra returns one coefficient vector per analysis frame.
func cepstra(s *audio.Signal, rate int) ([][]float64, error) {
	mono := s.Mono()
	if mono.SampleRate != rate {
		var err error
		if mono, err = mono.Resample(rate); err != nil {
			return nil, err
		}
	}
	src := &mfcc.SliceSource{Slice: mono.Samples}
	coeffs := mfcc.MFCC(src, rate, &mfcc.Options{MelCount: evalMelCount, LowFreq: evalLowFreq})
	var frames [][]float64
	for {
		c, err := coeffs.NextCoeffs()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		frames = append(frames, append([]float64(nil), c...))
	}
	return frames, nil
}

func warpDistance(a, b [][]float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, errs.Shape("mfcc_eval", "empty frame sequence")
	}
	var mismatch error
	d, err := dtw.New().Distance(a, b, func(x, y interface{}) float64 {
		xs, _ := x.([]float64)
		ys, _ := y.([]float64)
		if len(xs) != len(ys) {
			mismatch = errs.Shape("mfcc_eval", "frame widths %d and %d differ", len(xs), len(ys))
			return math.Inf(1)
		}
		var sum float64
		for i := range xs {
			diff := xs[i] - ys[i]
			sum += diff * diff
		}
		return math.Sqrt(sum)
	})
	if mismatch != nil {
		return 0, mismatch
	}
	if err != nil {
		return 0, err
	}
	return d, nil
}

func flatten(rows [][]float64) []float64 {
	var out []float64
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
