// Package estimator searches the synthesizer parameter space for the patch
// whose rendered features best match a target.
//
// Three estimators share one evaluation core: GA (single objective,
// tournament selection), NSGA3 (one objective per extractor or feature
// band, reference-point niching) and Mayfly (swarm search through
// github.com/cwbudde/mayfly). All of them draw random numbers on the
// calling goroutine only, so a fixed seed reproduces a run for any worker
// count.
package estimator

import (
	"context"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/features"
	"github.com/cwbudde/algo-soundmatch/synth"
)

// Estimator predicts a patch from target features, one vector per
// configured extractor.
type Estimator interface {
	Predict(ctx context.Context, targets []features.Vector) (*Prediction, error)
}

// InputValidator is implemented by estimators that can derive and check
// their own inputs.
type InputValidator interface {
	Extractors() []features.FeatureExtractor
	ValidateTargets(targets []features.Vector) error
}

// GenerationStats summarizes the fitness of one generation (or round).
type GenerationStats struct {
	Gen   int     `json:"gen"`
	Evals int     `json:"evals"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	// ObjectiveMin is the per-objective minimum for multi-objective runs.
	ObjectiveMin []float64 `json:"objective_min,omitempty"`
}

// Solution is one member of a returned Pareto front.
type Solution struct {
	Patch      synth.Patch `json:"patch"`
	Objectives []float64   `json:"objectives"`
}

// Prediction is the outcome of one Predict call.
type Prediction struct {
	Patch       synth.Patch       `json:"patch"`
	Fitness     float64           `json:"fitness"`
	Objectives  []float64         `json:"objectives,omitempty"`
	InitialBest float64           `json:"initial_best"`
	Evaluations int               `json:"evaluations"`
	History     []GenerationStats `json:"history"`
	Front       []Solution        `json:"front,omitempty"`
}

// shaper is implemented by extractors that can predict their output shape.
type shaper interface {
	OutputShape(numSamples int) ([]int, error)
}

// base holds what every estimator needs to turn genes into fitness.
type base struct {
	name       string
	renderer   synth.Renderer
	extractors []features.FeatureExtractor
	render     synth.RenderSettings
	workers    int
	log        logrus.FieldLogger

	free       []int
	overridden map[int]float64
}

func newBase(name string, r synth.Renderer, extractors []features.FeatureExtractor, render synth.RenderSettings, workers int, log logrus.FieldLogger) (base, error) {
	if r == nil {
		return base{}, errs.Config(name, "nil renderer")
	}
	if len(extractors) == 0 {
		return base{}, errs.Config(name, "at least one feature extractor is required")
	}
	for i, ex := range extractors {
		if ex == nil {
			return base{}, errs.Config(name, "extractor %d is nil", i)
		}
	}
	if render.RenderLength <= 0 {
		return base{}, errs.Config(name, "render length must be > 0, got %g", render.RenderLength)
	}
	if workers < 0 {
		return base{}, errs.Config(name, "workers must be >= 0, got %d", workers)
	}
	if workers == 0 {
		workers = r.Concurrency()
	}
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	b := base{
		name:       name,
		renderer:   r,
		extractors: extractors,
		render:     render,
		workers:    max(workers, 1),
		log:        log.WithField("estimator", name),
		overridden: r.Overridden(),
	}
	for _, p := range r.Parameters() {
		if _, ok := b.overridden[p.Index]; !ok {
			b.free = append(b.free, p.Index)
		}
	}
	if len(b.free) == 0 {
		return base{}, errs.Config(name, "every synthesizer parameter is overridden")
	}
	return b, nil
}

// Extractors returns the extractors targets must be computed with.
func (b *base) Extractors() []features.FeatureExtractor { return b.extractors }

// RenderSettings returns the note rendered for every candidate.
func (b *base) RenderSettings() synth.RenderSettings { return b.render }

// ValidateTargets checks count, configuration fingerprint and shape.
func (b *base) ValidateTargets(targets []features.Vector) error {
	if len(targets) != len(b.extractors) {
		return errs.Validation(b.name, "%d target vectors for %d extractors", len(targets), len(b.extractors))
	}
	numSamples := int(math.Round(b.render.RenderLength * float64(b.renderer.SampleRate())))
	for i, t := range targets {
		if err := t.Validate(); err != nil {
			return errs.Validation(b.name, "target %d: %v", i, err)
		}
		ex := b.extractors[i]
		if t.Key != "" && t.Key != ex.Fingerprint() {
			return errs.Validation(b.name, "target %d was extracted with a different configuration", i)
		}
		sh, ok := ex.(shaper)
		if !ok {
			continue
		}
		want, err := sh.OutputShape(numSamples)
		if err != nil {
			return errs.Validation(b.name, "target %d: %v", i, err)
		}
		if !shapeMatches(t, want) {
			return errs.Validation(b.name, "target %d has shape %v, estimator renders shape %v", i, t.Shape, want)
		}
	}
	return nil
}

func shapeMatches(v features.Vector, want []int) bool {
	n := 1
	for _, d := range want {
		n *= d
	}
	if len(v.Shape) == 1 && v.Shape[0] == n {
		return true
	}
	if len(v.Shape) != len(want) {
		return false
	}
	for i := range want {
		if v.Shape[i] != want[i] {
			return false
		}
	}
	return true
}

// expand turns genes for the free parameters into a full patch.
func (b *base) expand(genes []float64) (synth.Patch, error) {
	return synth.ExpandSubPatch(b.free, genes, b.overridden)
}

// candidateFeatures renders genes and extracts one vector per extractor.
func (b *base) candidateFeatures(genes []float64) ([]features.Vector, error) {
	patch, err := b.expand(genes)
	if err != nil {
		return nil, err
	}
	sig, err := b.renderer.Render(patch, b.render)
	if err != nil {
		return nil, err
	}
	out := make([]features.Vector, len(b.extractors))
	for i, ex := range b.extractors {
		v, err := ex.Features(sig)
		if err != nil {
			return nil, errs.WithStage("feature extraction", err)
		}
		out[i] = v
	}
	return out, nil
}

func newRand(seed *int64) (*rand.Rand, int64) {
	s := time.Now().UnixNano()
	if seed != nil {
		s = *seed
	}
	return rand.New(rand.NewSource(s)), s
}

func checkProb(op, name string, p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return errs.Config(op, "%s must be in [0,1], got %g", name, p)
	}
	return nil
}
