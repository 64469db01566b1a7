package evaluation

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/features"
)

const evalRate = 16000

func tone(freq float64) *audio.Signal { return audio.Sine(freq, 0.5, evalRate, 0.5) }

func TestMFCCEvalIdenticalIsZero(t *testing.T) {
	target := tone(440)
	res, err := MFCCEval{}.EvaluateTarget(target, []*audio.Signal{target.Clone(), tone(1500)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("got %d results", len(res))
	}
	for _, name := range []string{MetricMAE, MetricMSE, MetricEuclidean, MetricManhattan, MetricDTW} {
		if v, ok := res[0][name]; !ok || math.Abs(v) > 1e-9 {
			t.Fatalf("%s for identical audio = %v (present %v)", name, v, ok)
		}
		if res[1][name] <= 0 {
			t.Fatalf("%s for different audio = %v", name, res[1][name])
		}
	}
}

func TestMFCCEvalLengthMismatch(t *testing.T) {
	target := tone(440)
	shorter := audio.Sine(440, 0.3, evalRate, 0.5)
	res, err := MFCCEval{}.EvaluateTarget(target, []*audio.Signal{shorter})
	if err != nil {
		t.Fatal(err)
	}
	for name, v := range res[0] {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			t.Fatalf("%s = %v", name, v)
		}
	}
}

func TestMFCCEvalDisableDTW(t *testing.T) {
	res, err := MFCCEval{DisableDTW: true}.EvaluateTarget(tone(440), []*audio.Signal{tone(660)})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res[0][MetricDTW]; ok {
		t.Fatal("dtw metric reported although disabled")
	}
}

func TestEvaluationScoresAndStats(t *testing.T) {
	targets := []*audio.Signal{tone(330), tone(440), tone(550)}
	exact := []*audio.Signal{targets[0].Clone(), targets[1].Clone(), targets[2].Clone()}
	off := []*audio.Signal{tone(900), tone(1200), tone(1700)}

	ev, err := New(targets, [][]*audio.Signal{exact, off}, MFCCEval{DisableDTW: true})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Stats() != nil {
		t.Fatal("stats before evaluation")
	}
	if err := ev.Evaluate(); err != nil {
		t.Fatal(err)
	}
	scores := ev.Scores()
	if len(scores) != 3 {
		t.Fatalf("got %d targets", len(scores))
	}
	for i := range targets {
		row, ok := scores[TargetKey(i)]
		if !ok || len(row) != 2 {
			t.Fatalf("target %d row = %v", i, row)
		}
	}
	stats := ev.Stats()
	if got := stats[SourceKey(0)][MetricMAE]; got.Max > 1e-9 {
		t.Fatalf("exact source summary = %+v", got)
	}
	s := stats[SourceKey(1)][MetricMAE]
	if !(s.Min > 0 && s.Min <= s.Median && s.Median <= s.Max && s.Mean >= s.Min && s.Mean <= s.Max) {
		t.Fatalf("inconsistent summary %+v", s)
	}
}

func TestSummarize(t *testing.T) {
	scores := Scores{
		"target_0": {"source_0": {"m": 1}},
		"target_1": {"source_0": {"m": 2}},
		"target_2": {"source_0": {"m": 10}},
		"target_3": {"source_0": {"m": 3}},
	}
	s := Summarize(scores)["source_0"]["m"]
	want := Summary{Mean: 4, Median: 2.5, Std: math.Sqrt(12.5), Min: 1, Max: 10}
	if math.Abs(s.Mean-want.Mean) > 1e-12 || s.Median != want.Median || math.Abs(s.Std-want.Std) > 1e-12 || s.Min != want.Min || s.Max != want.Max {
		t.Fatalf("summary = %+v, want %+v", s, want)
	}
}

func TestNewValidates(t *testing.T) {
	targets := []*audio.Signal{tone(440), tone(550)}
	cases := []struct {
		name string
		est  [][]*audio.Signal
		ev   TargetEvaluator
		want error
	}{
		{"nil evaluator", nil, nil, errs.ErrConfig},
		{"short source", [][]*audio.Signal{{tone(440)}}, MFCCEval{}, errs.ErrShape},
		{"bad prediction", [][]*audio.Signal{{tone(440), {SampleRate: 0, Channels: 1}}}, MFCCEval{}, errs.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(targets, tc.est, tc.ev); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
	if _, err := New(nil, nil, MFCCEval{}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("no targets: %v", err)
	}
}

func TestFeatureEval(t *testing.T) {
	cfg := features.DefaultConfig(features.KindMFCC)
	cfg.SampleRate = evalRate
	cfg.FrameSize = 512
	cfg.HopSize = 256
	cfg.Coefficients = 13
	cfg.Mels = 40
	ex, err := features.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	target := tone(440)
	res, err := FeatureEval{Extractor: ex, Distances: []string{"rmse", "cosine"}}.EvaluateTarget(target, []*audio.Signal{target.Clone(), tone(880)})
	if err != nil {
		t.Fatal(err)
	}
	if res[0]["rmse"] > 1e-12 || res[1]["rmse"] <= 0 {
		t.Fatalf("rmse = %v / %v", res[0]["rmse"], res[1]["rmse"])
	}
	if got := res[1].Names(); len(got) != 2 || got[0] != "cosine" || got[1] != "rmse" {
		t.Fatalf("names = %v", got)
	}
	if _, err := (FeatureEval{Extractor: ex, Distances: []string{"bogus"}}).EvaluateTarget(target, nil); !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("unknown distance: %v", err)
	}
}

func TestCompareEval(t *testing.T) {
	target := tone(440)
	res, err := CompareEval{}.EvaluateTarget(target, []*audio.Signal{target.Clone()})
	if err != nil {
		t.Fatal(err)
	}
	if res[0]["score"] > 0.05 || res[0]["similarity"] < 0.8 {
		t.Fatalf("identical compare = %v", res[0])
	}
}
