// Package match runs a complete sound match: target features, estimation
// and a final render of the predicted patch.
package match

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-soundmatch/analysis"
	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/estimator"
	"github.com/cwbudde/algo-soundmatch/features"
	"github.com/cwbudde/algo-soundmatch/synth"
)

const (
	StageFeatures   = "feature extraction"
	StageEstimation = "estimation"
	StageRendering  = "rendering"
)

// Result is the outcome of one match.
type Result struct {
	Patch      synth.Patch
	Audio      *audio.Signal
	Prediction *estimator.Prediction
	// Metrics compares Audio against the target signal. It is nil for
	// MatchFeatures.
	Metrics *analysis.Metrics
}

// Matcher binds a renderer and an estimator.
type Matcher struct {
	renderer   synth.Renderer
	est        estimator.Estimator
	extractors []features.FeatureExtractor
	render     synth.RenderSettings
	fitTarget  bool
	log        logrus.FieldLogger
}

// Option customizes a Matcher.
type Option func(*Matcher)

// WithExtractors sets the extractors used to derive target features. It
// is required when the estimator does not implement
// estimator.InputValidator.
func WithExtractors(exs ...features.FeatureExtractor) Option {
	return func(m *Matcher) { m.extractors = exs }
}

// WithRenderSettings overrides the note used for the final render.
func WithRenderSettings(rs synth.RenderSettings) Option {
	return func(m *Matcher) { m.render = rs }
}

// WithTargetFitting resamples target signals to the renderer rate and
// pads or trims them to the render length before extraction.
func WithTargetFitting(enabled bool) Option {
	return func(m *Matcher) { m.fitTarget = enabled }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Matcher) { m.log = l }
}

type renderSettingser interface {
	RenderSettings() synth.RenderSettings
}

// New builds a Matcher. A single, non-reentrant port can be passed as
// synth.NewLocked(port).
func New(r synth.Renderer, est estimator.Estimator, opts ...Option) (*Matcher, error) {
	if r == nil {
		return nil, errs.Config("match", "nil renderer")
	}
	if est == nil {
		return nil, errs.Config("match", "nil estimator")
	}
	m := &Matcher{renderer: r, est: est, render: synth.DefaultRenderSettings()}
	if rs, ok := est.(renderSettingser); ok {
		m.render = rs.RenderSettings()
	}
	if v, ok := est.(estimator.InputValidator); ok {
		m.extractors = v.Extractors()
	}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		l := logrus.New()
		l.Out = io.Discard
		m.log = l
	}
	return m, nil
}

// Match derives target features from target, runs the estimator and
// renders the prediction.
func (m *Matcher) Match(ctx context.Context, target *audio.Signal) (*Result, error) {
	if len(m.extractors) == 0 {
		return nil, errs.Wrap(errs.KindConfig, StageFeatures, fmt.Errorf("no extractors configured for audio targets"))
	}
	if err := target.Validate(); err != nil {
		return nil, errs.WithStage(StageFeatures, err)
	}
	if m.fitTarget {
		var err error
		if target, err = m.fit(target); err != nil {
			return nil, errs.WithStage(StageFeatures, err)
		}
	}
	vecs := make([]features.Vector, len(m.extractors))
	for i, ex := range m.extractors {
		v, err := ex.Features(target)
		if err != nil {
			return nil, errs.WithStage(StageFeatures, fmt.Errorf("extractor %d (%s): %w", i, ex.Fingerprint(), err))
		}
		vecs[i] = v
	}
	res, err := m.MatchFeatures(ctx, vecs)
	if err != nil {
		return nil, err
	}
	metrics, err := analysis.Compare(target, res.Audio)
	if err != nil {
		m.log.WithError(err).Warn("comparing match against target")
	} else {
		res.Metrics = &metrics
	}
	return res, nil
}

// MatchFeatures runs the estimator on precomputed target vectors.
func (m *Matcher) MatchFeatures(ctx context.Context, targets []features.Vector) (*Result, error) {
	if v, ok := m.est.(estimator.InputValidator); ok {
		if err := v.ValidateTargets(targets); err != nil {
			return nil, errs.WithStage(StageEstimation, err)
		}
	}
	pred, err := m.est.Predict(ctx, targets)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindEstimator, StageEstimation, err)
	}
	m.log.WithFields(logrus.Fields{
		"fitness":     pred.Fitness,
		"evaluations": pred.Evaluations,
	}).Info("estimation finished")

	out, err := m.renderer.Render(pred.Patch, m.render)
	if err != nil {
		return nil, errs.WithStage(StageRendering, fmt.Errorf("note %d, %.2fs: %w", m.render.Note, m.render.RenderLength, err))
	}
	return &Result{Patch: pred.Patch, Audio: out, Prediction: pred}, nil
}

// MatchFile loads a WAV target and matches it.
func (m *Matcher) MatchFile(ctx context.Context, path string) (*Result, error) {
	sig, err := audio.LoadWAV(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, StageFeatures, err)
	}
	return m.Match(ctx, sig)
}

func (m *Matcher) fit(s *audio.Signal) (*audio.Signal, error) {
	out := s.Mono()
	if rate := m.renderer.SampleRate(); out.SampleRate != rate {
		var err error
		if out, err = out.Resample(rate); err != nil {
			return nil, err
		}
	}
	frames := int(math.Round(m.render.RenderLength * float64(out.SampleRate)))
	if frames != out.Frames() {
		out = out.Resize(frames)
	}
	return out, nil
}
