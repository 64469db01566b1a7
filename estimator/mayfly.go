package estimator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/mayfly"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-soundmatch/analysis"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/features"
	"github.com/cwbudde/algo-soundmatch/synth"
)

// MayflyVariants lists the supported algorithm variants.
var MayflyVariants = []string{"ma", "desma", "olce", "eobbma", "gsasma", "mpma", "aoblmoa"}

// MayflyConfig configures the swarm estimator. The search runs in rounds
// of at most RoundEvals evaluations until MaxEvals is spent.
type MayflyConfig struct {
	Variant    string
	PopSize    int
	MaxEvals   int
	RoundEvals int
	Seed       *int64
	Distance   analysis.DistanceFunc
	Render     synth.RenderSettings
	Logger     logrus.FieldLogger
}

// DefaultMayflyConfig returns a DESMA swarm of 10 with a 2000
// evaluation budget.
func DefaultMayflyConfig() MayflyConfig {
	return MayflyConfig{
		Variant:    "desma",
		PopSize:    10,
		MaxEvals:   2000,
		RoundEvals: 400,
		Distance:   analysis.RMSE,
		Render:     synth.DefaultRenderSettings(),
	}
}

// Validate checks the variant name and the budgets.
func (c MayflyConfig) Validate() error {
	if _, err := newMayflyConfig(c.Variant, 2, 1, 1); err != nil {
		return errs.Config("mayfly", "%v", err)
	}
	if c.PopSize < 2 {
		return errs.Config("mayfly", "pop size must be >= 2, got %d", c.PopSize)
	}
	if c.MaxEvals < 1 {
		return errs.Config("mayfly", "max evals must be >= 1, got %d", c.MaxEvals)
	}
	if c.RoundEvals < 1 {
		return errs.Config("mayfly", "round evals must be >= 1, got %d", c.RoundEvals)
	}
	return nil
}

// Mayfly minimizes the summed extractor distances with the mayfly
// optimizer. Evaluations are sequential on one renderer.
type Mayfly struct {
	base
	cfg MayflyConfig
}

var (
	_ Estimator      = (*Mayfly)(nil)
	_ InputValidator = (*Mayfly)(nil)
)

// NewMayfly builds a swarm estimator over the free parameters of r.
func NewMayfly(r synth.Renderer, extractors []features.FeatureExtractor, cfg MayflyConfig) (*Mayfly, error) {
	cfg.Variant = strings.ToLower(strings.TrimSpace(cfg.Variant))
	if cfg.Variant == "" {
		cfg.Variant = "desma"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Distance == nil {
		cfg.Distance = analysis.RMSE
	}
	b, err := newBase("mayfly", r, extractors, cfg.Render, 1, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &Mayfly{base: b, cfg: cfg}, nil
}

type swarmState struct {
	mu      sync.Mutex
	best    []float64
	bestFit float64
	bestObj []float64
	fits    []float64
	failure error
}

func (s *swarmState) record(genes []float64, obj []float64, fit float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fits = append(s.fits, fit)
	if fit < s.bestFit {
		s.bestFit = fit
		s.best = append([]float64(nil), genes...)
		s.bestObj = append([]float64(nil), obj...)
	}
}

// penalty is returned for evaluations that were skipped.
func (s *swarmState) penalty() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if math.IsInf(s.bestFit, 1) {
		return 1e12
	}
	return s.bestFit + 1
}

func (s *swarmState) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		s.failure = err
	}
}

func (s *swarmState) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Predict runs mayfly rounds until the evaluation budget is spent. Each
// round's statistics form one History entry.
func (m *Mayfly) Predict(ctx context.Context, targets []features.Vector) (*Prediction, error) {
	if err := m.ValidateTargets(targets); err != nil {
		return nil, err
	}
	_, seed := newRand(m.cfg.Seed)
	objectives := distanceObjectives(targets, m.cfg.Distance, 1)
	log := m.log.WithFields(logrus.Fields{"seed": seed, "variant": m.cfg.Variant})

	state := &swarmState{bestFit: math.Inf(1)}
	var evals int64
	pred := &Prediction{}
	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := m.cfg.MaxEvals - int(atomic.LoadInt64(&evals))
		if remaining <= 0 {
			break
		}
		budget := min(m.cfg.RoundEvals, remaining)
		iters := max(1, budget/(2*m.cfg.PopSize))
		mc, err := newMayflyConfig(m.cfg.Variant, m.cfg.PopSize, len(m.free), iters)
		if err != nil {
			return nil, errs.Config("mayfly", "%v", err)
		}
		mc.Rand = rand.New(rand.NewSource(seed + int64(round)*7919))

		state.mu.Lock()
		state.fits = state.fits[:0]
		state.mu.Unlock()
		roundEnd := int64(m.cfg.MaxEvals - remaining + budget)
		mc.ObjectiveFunc = func(pos []float64) float64 {
			if state.err() != nil || ctx.Err() != nil {
				return state.penalty()
			}
			if _, ok := reserveEval(&evals, roundEnd); !ok {
				return state.penalty()
			}
			genes := make([]float64, len(pos))
			for i, v := range pos {
				genes[i] = synth.Clamp01(v)
			}
			cand, err := m.candidateFeatures(genes)
			var obj []float64
			if err == nil {
				obj, err = objectives(cand)
			}
			if err != nil {
				state.fail(err)
				return state.penalty()
			}
			var fit float64
			for _, v := range obj {
				fit += v
			}
			state.record(genes, obj, fit)
			return fit
		}

		if _, err := runMayfly(mc); err != nil {
			return nil, errs.Estimator("mayfly", err)
		}
		if err := state.err(); err != nil {
			return nil, err
		}
		used := int(atomic.LoadInt64(&evals)) - (m.cfg.MaxEvals - remaining)
		st := roundStats(round, used, state)
		if round == 0 {
			pred.InitialBest = st.Min
		}
		pred.History = append(pred.History, st)
		logGeneration(log, st)
		if used == 0 {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if state.best == nil {
		return nil, errs.Estimator("mayfly", fmt.Errorf("no candidate evaluated"))
	}
	patch, err := m.expand(state.best)
	if err != nil {
		return nil, err
	}
	pred.Patch = patch
	pred.Fitness = state.bestFit
	pred.Objectives = state.bestObj
	pred.Evaluations = int(atomic.LoadInt64(&evals))
	return pred, nil
}

func roundStats(round, evals int, s *swarmState) GenerationStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	pop := make([]*individual, len(s.fits))
	for i, f := range s.fits {
		pop[i] = &individual{fit: f}
	}
	if len(pop) == 0 {
		return GenerationStats{Gen: round, Min: s.bestFit, Max: s.bestFit, Mean: s.bestFit}
	}
	return fitnessStats(round, evals, pop)
}

func newMayflyConfig(variant string, pop int, dims int, iters int) (*mayfly.Config, error) {
	var cfg *mayfly.Config
	switch variant {
	case "ma":
		cfg = mayfly.NewDefaultConfig()
	case "desma":
		cfg = mayfly.NewDESMAConfig()
	case "olce":
		cfg = mayfly.NewOLCEConfig()
	case "eobbma":
		cfg = mayfly.NewEOBBMAConfig()
	case "gsasma":
		cfg = mayfly.NewGSASMAConfig()
	case "mpma":
		cfg = mayfly.NewMPMAConfig()
	case "aoblmoa":
		cfg = mayfly.NewAOBLMOAConfig()
	default:
		return nil, fmt.Errorf("unsupported variant %q (valid: %s)", variant, strings.Join(MayflyVariants, ", "))
	}
	cfg.ProblemSize = dims
	cfg.LowerBound = 0.0
	cfg.UpperBound = 1.0
	cfg.MaxIterations = iters
	cfg.NPop = pop
	cfg.NPopF = pop
	cfg.NC = 2 * pop
	cfg.NM = max(1, int(math.Round(0.05*float64(pop))))
	return cfg, nil
}

// runMayfly converts optimizer panics into errors.
func runMayfly(cfg *mayfly.Config) (_ *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}

func reserveEval(evals *int64, limit int64) (int64, bool) {
	for {
		cur := atomic.LoadInt64(evals)
		if cur >= limit {
			return 0, false
		}
		if atomic.CompareAndSwapInt64(evals, cur, cur+1) {
			return cur + 1, true
		}
	}
}
