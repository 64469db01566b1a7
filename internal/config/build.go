package config

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-soundmatch/analysis"
	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/estimator"
	"github.com/cwbudde/algo-soundmatch/features"
	fitcommon "github.com/cwbudde/algo-soundmatch/internal/fitcommon"
	"github.com/cwbudde/algo-soundmatch/match"
	"github.com/cwbudde/algo-soundmatch/preset"
	"github.com/cwbudde/algo-soundmatch/synth"
	"github.com/cwbudde/algo-soundmatch/synth/subsynth"
)

// FeatureConfig converts the features section. The sample rate follows
// the synth.
func (c Config) FeatureConfig() (features.Config, error) {
	kind := features.Kind(c.Features.Type)
	fc := features.DefaultConfig(kind)
	fc.SampleRate = c.Synth.SampleRate
	fc.FrameSize = c.Features.FrameSize
	fc.HopSize = c.Features.HopSize
	fc.Coefficients = c.Features.CoefficientCount
	fc.Mels = c.Features.Mels
	fc.TimeMajor = c.Features.TimeMajor
	if err := fc.Validate(); err != nil {
		return features.Config{}, err
	}
	return fc, nil
}

// Extractor builds the configured extractor. Unless scale_axis is none,
// the extractor's scaler is fitted on random patches rendered through r.
func (c Config) Extractor(r synth.Renderer, seed int64) (*features.Extractor, error) {
	fc, err := c.FeatureConfig()
	if err != nil {
		return nil, err
	}
	if c.Features.ScaleAxis == "" || c.Features.ScaleAxis == string(features.AxisNone) {
		return features.New(fc)
	}
	axis, err := features.ParseAxis(c.Features.ScaleAxis)
	if err != nil {
		return nil, err
	}
	ex, err := features.New(fc, features.WithScaleAxis(axis))
	if err != nil {
		return nil, err
	}
	if err := fitOnRandomPatches(ex, r, c.RenderSettings(), seed); err != nil {
		return nil, err
	}
	return ex, nil
}

// SynthConfig converts the synth section.
func (c Config) SynthConfig() subsynth.Config {
	return subsynth.Config{SampleRate: c.Synth.SampleRate, ControlRate: c.Synth.ControlRate}
}

func (c Config) RenderSettings() synth.RenderSettings {
	return synth.RenderSettings{
		NoteLength:   c.Synth.NoteLength,
		RenderLength: c.Synth.RenderLength,
		Note:         c.Synth.Note,
		Velocity:     c.Synth.Velocity,
	}
}

// Overrides resolves synth.overrides keys, given as parameter names or
// indices, to parameter indices.
func (c Config) Overrides() (map[int]float64, error) {
	out := make(map[int]float64, len(c.Synth.Overrides))
	for key, v := range c.Synth.Overrides {
		idx, ok := subsynth.ParameterIndex(key)
		if !ok {
			n, err := strconv.Atoi(key)
			if err != nil || n < 0 || n >= len(subsynth.ParameterNames()) {
				return nil, errs.Config("config", "unknown synth parameter %q", key)
			}
			idx = n
		}
		if v < 0 || v > 1 {
			return nil, errs.Config("config", "override %q = %g outside [0,1]", key, v)
		}
		out[idx] = v
	}
	return out, nil
}

// Pool builds synth.workers built-in synths with the configured patch
// file and overrides applied. Overrides win over values in the patch file.
func (c Config) Pool() (*synth.Pool, error) {
	overrides, err := c.Overrides()
	if err != nil {
		return nil, err
	}
	n := fitcommon.ResolveWorkers(c.Synth.Workers)
	sc := c.SynthConfig()
	patchPath := c.Synth.Patch
	factory := func() (synth.Port, error) {
		s, err := subsynth.New(sc)
		if err != nil {
			return nil, err
		}
		if patchPath != "" {
			if err := preset.Load(patchPath, s); err != nil {
				return nil, err
			}
		}
		merged := s.Overridden()
		for idx, v := range overrides {
			merged[idx] = v
		}
		if err := s.SetOverriddenParameters(merged); err != nil {
			return nil, err
		}
		return s, nil
	}
	return synth.NewPool(factory, n, nil)
}

// GAConfig converts the ga section.
func (c Config) GAConfig(log logrus.FieldLogger) (estimator.GAConfig, error) {
	g := estimator.DefaultGAConfig()
	g.PopSize = c.GA.PopSize
	g.Generations = c.GA.NGen
	g.CrossoverProb = c.GA.CxPb
	g.MutationProb = c.GA.MutPb
	g.Seed = c.GA.Seed
	g.Workers = c.GA.Workers
	g.Render = c.RenderSettings()
	g.Logger = log
	var err error
	if g.Crossover, err = estimator.ParseCrossover(c.GA.Crossover); err != nil {
		return g, err
	}
	if g.Distance, err = analysis.DistanceByName(c.GA.Distance); err != nil {
		return g, err
	}
	return g, g.Validate()
}

// NSGAConfig converts the nsga section. The seed and worker count are
// shared with the ga section.
func (c Config) NSGAConfig(log logrus.FieldLogger) (estimator.NSGAConfig, error) {
	n := estimator.DefaultNSGAConfig()
	n.PopSize = c.NSGA.PopSize
	n.Generations = c.NSGA.NGen
	n.CrossoverProb = c.NSGA.CxPb
	n.MutationProb = c.NSGA.MutPb
	n.Divisions = c.NSGA.Divisions
	n.Bands = c.NSGA.Bands
	n.Seed = c.GA.Seed
	n.Workers = c.GA.Workers
	n.Render = c.RenderSettings()
	n.Logger = log
	var err error
	if n.Distance, err = analysis.DistanceByName(c.NSGA.Distance); err != nil {
		return n, err
	}
	return n, n.Validate()
}

// MayflyConfig converts the mayfly section.
func (c Config) MayflyConfig(log logrus.FieldLogger) (estimator.MayflyConfig, error) {
	m := estimator.DefaultMayflyConfig()
	m.Variant = c.Mayfly.Variant
	m.PopSize = c.Mayfly.PopSize
	m.MaxEvals = c.Mayfly.MaxEvals
	m.RoundEvals = c.Mayfly.RoundEvals
	m.Seed = c.GA.Seed
	m.Render = c.RenderSettings()
	m.Logger = log
	return m, m.Validate()
}

// NewEstimator builds the configured estimator over r and ex.
func (c Config) NewEstimator(r synth.Renderer, ex []features.FeatureExtractor, log logrus.FieldLogger) (estimator.Estimator, error) {
	switch c.Estimator {
	case "ga":
		cfg, err := c.GAConfig(log)
		if err != nil {
			return nil, err
		}
		est, err := estimator.NewGA(r, ex, cfg)
		if err != nil {
			return nil, err
		}
		return est, nil
	case "nsga3":
		cfg, err := c.NSGAConfig(log)
		if err != nil {
			return nil, err
		}
		est, err := estimator.NewNSGA3(r, ex, cfg)
		if err != nil {
			return nil, err
		}
		return est, nil
	case "mayfly":
		cfg, err := c.MayflyConfig(log)
		if err != nil {
			return nil, err
		}
		est, err := estimator.NewMayfly(r, ex, cfg)
		if err != nil {
			return nil, err
		}
		return est, nil
	}
	return nil, errs.Config("config", "unknown estimator %q", c.Estimator)
}

// Matcher wires pool, extractor, estimator and matcher from c.
func (c Config) Matcher(log logrus.FieldLogger) (*match.Matcher, error) {
	pool, err := c.Pool()
	if err != nil {
		return nil, fmt.Errorf("synth: %w", err)
	}
	var seed int64 = 1
	if c.GA.Seed != nil {
		seed = *c.GA.Seed
	}
	ex, err := c.Extractor(pool, seed)
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	est, err := c.NewEstimator(pool, []features.FeatureExtractor{ex}, log)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}
	return match.New(pool, est, match.WithTargetFitting(c.Match.FitTarget), match.WithLogger(log))
}

// scalerFitPatches is the number of random renders a scaler is fitted on.
const scalerFitPatches = 32

func fitOnRandomPatches(ex *features.Extractor, r synth.Renderer, rs synth.RenderSettings, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	over := r.Overridden()
	var free []int
	for _, p := range r.Parameters() {
		if _, ok := over[p.Index]; !ok {
			free = append(free, p.Index)
		}
	}
	sigs := make([]*audio.Signal, scalerFitPatches)
	for i := range sigs {
		values := make([]float64, len(free))
		for j := range values {
			values[j] = rng.Float64()
		}
		patch, err := synth.ExpandSubPatch(free, values, over)
		if err != nil {
			return err
		}
		if sigs[i], err = r.Render(patch, rs); err != nil {
			return fmt.Errorf("scaler fit render %d: %w", i, err)
		}
	}
	return ex.FitScaler(sigs...)
}
