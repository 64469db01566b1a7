package estimator

import (
	"context"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-soundmatch/analysis"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/features"
	"github.com/cwbudde/algo-soundmatch/synth"
)

// GAConfig configures the single-objective genetic estimator.
type GAConfig struct {
	PopSize       int
	Generations   int
	CrossoverProb float64
	// MutationProb is the per-gene mutation probability.
	MutationProb   float64
	Seed           *int64
	TournamentSize int
	Crossover      Crossover
	BlendAlpha     float64
	SBXEta         float64
	MutationScale  float64
	Distance       analysis.DistanceFunc
	// Workers is the number of concurrent fitness evaluations; 0 uses the
	// renderer's concurrency.
	Workers int
	Render  synth.RenderSettings
	Logger  logrus.FieldLogger
}

// DefaultGAConfig returns the GA defaults. Seed is nil, so runs are
// seeded from the clock.
func DefaultGAConfig() GAConfig {
	return GAConfig{
		PopSize:        100,
		Generations:    25,
		CrossoverProb:  0.5,
		MutationProb:   0.3,
		TournamentSize: 3,
		Crossover:      CrossoverBlend,
		BlendAlpha:     0.5,
		SBXEta:         30,
		MutationScale:  0.1,
		Distance:       analysis.RMSE,
		Render:         synth.DefaultRenderSettings(),
	}
}

// Validate reports a config error for out-of-range sizes and
// probabilities.
func (c GAConfig) Validate() error {
	if c.PopSize < 2 {
		return errs.Config("ga", "pop size must be >= 2, got %d", c.PopSize)
	}
	if c.Generations < 1 {
		return errs.Config("ga", "generations must be >= 1, got %d", c.Generations)
	}
	if err := checkProb("ga", "crossover probability", c.CrossoverProb); err != nil {
		return err
	}
	if err := checkProb("ga", "mutation probability", c.MutationProb); err != nil {
		return err
	}
	if c.TournamentSize < 1 {
		return errs.Config("ga", "tournament size must be >= 1, got %d", c.TournamentSize)
	}
	if _, err := ParseCrossover(string(c.Crossover)); err != nil {
		return err
	}
	if c.BlendAlpha < 0 {
		return errs.Config("ga", "blend alpha must be >= 0")
	}
	if c.SBXEta <= 0 && c.Crossover == CrossoverSBX {
		return errs.Config("ga", "sbx eta must be > 0")
	}
	if c.MutationScale < 0 {
		return errs.Config("ga", "mutation scale must be >= 0")
	}
	return nil
}

// GA is a generational, non-elitist genetic algorithm with a hall of fame
// of one.
type GA struct {
	base
	cfg GAConfig
}

var (
	_ Estimator      = (*GA)(nil)
	_ InputValidator = (*GA)(nil)
)

// NewGA validates cfg and binds the estimator to a renderer and the
// extractors that define fitness. Several extractors add their distances.
func NewGA(r synth.Renderer, extractors []features.FeatureExtractor, cfg GAConfig) (*GA, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Distance == nil {
		cfg.Distance = analysis.RMSE
	}
	if cfg.Crossover == "" {
		cfg.Crossover = CrossoverBlend
	}
	b, err := newBase("ga", r, extractors, cfg.Render, cfg.Workers, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &GA{base: b, cfg: cfg}, nil
}

// Config returns the effective configuration.
func (g *GA) Config() GAConfig { return g.cfg }

// Predict runs the search against targets, one vector per extractor.
func (g *GA) Predict(ctx context.Context, targets []features.Vector) (*Prediction, error) {
	if err := g.ValidateTargets(targets); err != nil {
		return nil, err
	}
	rng, seed := newRand(g.cfg.Seed)
	objectives := distanceObjectives(targets, g.cfg.Distance, 1)
	log := g.log.WithField("seed", seed)

	pop := make([]*individual, g.cfg.PopSize)
	for i := range pop {
		pop[i] = &individual{genes: randomGenes(rng, len(g.free))}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	evals, err := g.evaluate(pop, objectives)
	if err != nil {
		return nil, err
	}
	total := evals
	hof := pop[best(pop)].clone()
	pred := &Prediction{InitialBest: hof.fit}
	pred.History = append(pred.History, fitnessStats(0, evals, pop))
	logGeneration(log, pred.History[0])

	for gen := 1; gen <= g.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offspring := tournament(rng, pop, g.cfg.TournamentSize)
		g.vary(rng, offspring)
		evals, err := g.evaluate(offspring, objectives)
		if err != nil {
			return nil, err
		}
		total += evals
		pop = offspring
		if b := pop[best(pop)]; b.fit < hof.fit {
			hof = b.clone()
		}
		st := fitnessStats(gen, evals, pop)
		pred.History = append(pred.History, st)
		logGeneration(log, st)
	}

	patch, err := g.expand(hof.genes)
	if err != nil {
		return nil, err
	}
	pred.Patch = patch
	pred.Fitness = hof.fit
	pred.Objectives = hof.obj
	pred.Evaluations = total
	return pred, nil
}

// vary applies crossover to consecutive pairs and per-gene mutation.
// Individuals that change lose their fitness.
func (g *GA) vary(rng *rand.Rand, pop []*individual) {
	for i := 1; i < len(pop); i += 2 {
		if rng.Float64() >= g.cfg.CrossoverProb {
			continue
		}
		a, b := pop[i-1].genes, pop[i].genes
		switch g.cfg.Crossover {
		case CrossoverUniform:
			uniform(rng, a, b)
		case CrossoverSBX:
			sbx(rng, a, b, g.cfg.SBXEta)
		default:
			blend(rng, a, b, g.cfg.BlendAlpha)
		}
		pop[i-1].invalidate()
		pop[i].invalidate()
	}
	for _, ind := range pop {
		if offsetMutate(rng, ind.genes, g.cfg.MutationProb, g.cfg.MutationScale) {
			ind.invalidate()
		}
	}
}

func logGeneration(log logrus.FieldLogger, st GenerationStats) {
	log.WithFields(logrus.Fields{
		"gen":   st.Gen,
		"evals": st.Evals,
		"min":   st.Min,
		"mean":  st.Mean,
		"max":   st.Max,
	}).Debug("generation")
}
