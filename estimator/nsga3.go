package estimator

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-soundmatch/analysis"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/features"
	"github.com/cwbudde/algo-soundmatch/synth"
)

// Selector picks the single returned individual from the final population.
type Selector struct {
	// ObjectiveIndex is used when Weights is empty.
	ObjectiveIndex int
	// Weights, when set, minimizes the weighted objective sum.
	Weights []float64
}

func (s Selector) score(obj []float64) float64 {
	if len(s.Weights) == 0 {
		return obj[s.ObjectiveIndex]
	}
	var sum float64
	for i, w := range s.Weights {
		sum += w * obj[i]
	}
	return sum
}

// NSGAConfig configures the multi-objective estimator.
type NSGAConfig struct {
	PopSize       int
	Generations   int
	CrossoverProb float64
	// MutationProb is per individual; a mutated individual changes each
	// gene with probability 1/genes.
	MutationProb float64
	Seed         *int64
	Divisions    int
	// RefPoints replaces the uniform lattice when set.
	RefPoints [][]float64
	SBXEta    float64
	PolyEta   float64
	Selector  Selector
	// Bands splits every extractor's vector into that many objectives.
	Bands    int
	Distance analysis.DistanceFunc
	Workers  int
	Render   synth.RenderSettings
	Logger   logrus.FieldLogger
}

// DefaultNSGAConfig returns the NSGA-III defaults: 12 divisions, one
// band per extractor and MAE objectives.
func DefaultNSGAConfig() NSGAConfig {
	return NSGAConfig{
		PopSize:       100,
		Generations:   25,
		CrossoverProb: 0.5,
		MutationProb:  0.5,
		Divisions:     12,
		SBXEta:        30,
		PolyEta:       20,
		Bands:         1,
		Distance:      analysis.MAE,
		Render:        synth.DefaultRenderSettings(),
	}
}

// Validate checks sizes, probabilities and distribution indices.
// Reference point dimensions are checked by NewNSGA3, once the objective
// count is known.
func (c NSGAConfig) Validate() error {
	if c.PopSize < 2 {
		return errs.Config("nsga3", "pop size must be >= 2, got %d", c.PopSize)
	}
	if c.Generations < 1 {
		return errs.Config("nsga3", "generations must be >= 1, got %d", c.Generations)
	}
	if err := checkProb("nsga3", "crossover probability", c.CrossoverProb); err != nil {
		return err
	}
	if err := checkProb("nsga3", "mutation probability", c.MutationProb); err != nil {
		return err
	}
	if c.Divisions < 1 && len(c.RefPoints) == 0 {
		return errs.Config("nsga3", "divisions must be >= 1, got %d", c.Divisions)
	}
	if c.SBXEta <= 0 || c.PolyEta <= 0 {
		return errs.Config("nsga3", "distribution indices must be > 0")
	}
	if c.Bands < 0 {
		return errs.Config("nsga3", "bands must be >= 0, got %d", c.Bands)
	}
	return nil
}

// NSGA3 is the reference-point based non-dominated sorting GA.
type NSGA3 struct {
	base
	cfg       NSGAConfig
	numObj    int
	refPoints [][]float64
}

var (
	_ Estimator      = (*NSGA3)(nil)
	_ InputValidator = (*NSGA3)(nil)
)

// NewNSGA3 builds the estimator. There is one objective per extractor
// and band.
func NewNSGA3(r synth.Renderer, extractors []features.FeatureExtractor, cfg NSGAConfig) (*NSGA3, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Distance == nil {
		cfg.Distance = analysis.MAE
	}
	cfg.Bands = max(cfg.Bands, 1)
	b, err := newBase("nsga3", r, extractors, cfg.Render, cfg.Workers, cfg.Logger)
	if err != nil {
		return nil, err
	}
	m := len(extractors) * cfg.Bands
	refs := cfg.RefPoints
	if len(refs) == 0 {
		refs = UniformReferencePoints(m, cfg.Divisions)
	}
	for i, rp := range refs {
		if len(rp) != m {
			return nil, errs.Config("nsga3", "reference point %d has %d dimensions, want %d objectives", i, len(rp), m)
		}
	}
	if len(cfg.Selector.Weights) > 0 && len(cfg.Selector.Weights) != m {
		return nil, errs.Config("nsga3", "selector has %d weights for %d objectives", len(cfg.Selector.Weights), m)
	}
	if cfg.Selector.ObjectiveIndex < 0 || cfg.Selector.ObjectiveIndex >= m {
		return nil, errs.Config("nsga3", "selector objective %d out of range [0,%d)", cfg.Selector.ObjectiveIndex, m)
	}
	return &NSGA3{base: b, cfg: cfg, numObj: m, refPoints: refs}, nil
}

// Objectives returns the number of objectives.
func (n *NSGA3) Objectives() int { return n.numObj }

// Predict runs the search. The returned Prediction carries front 0 of
// the final population in Front.
func (n *NSGA3) Predict(ctx context.Context, targets []features.Vector) (*Prediction, error) {
	if err := n.ValidateTargets(targets); err != nil {
		return nil, err
	}
	for i, t := range targets {
		if n.cfg.Bands > len(t.Data) {
			return nil, errs.Validation("nsga3", "target %d has %d values for %d bands", i, len(t.Data), n.cfg.Bands)
		}
	}
	rng, seed := newRand(n.cfg.Seed)
	objectives := distanceObjectives(targets, n.cfg.Distance, n.cfg.Bands)
	log := n.log.WithField("seed", seed)

	pop := make([]*individual, n.cfg.PopSize)
	for i := range pop {
		pop[i] = &individual{genes: randomGenes(rng, len(n.free))}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	evals, err := n.evaluate(pop, objectives)
	if err != nil {
		return nil, err
	}
	total := evals
	n.scalarize(pop)
	pred := &Prediction{InitialBest: pop[best(pop)].fit}
	pred.History = append(pred.History, fitnessStats(0, evals, pop))
	logGeneration(log, pred.History[0])

	for gen := 1; gen <= n.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offspring := make([]*individual, len(pop))
		for i, ind := range pop {
			offspring[i] = ind.clone()
		}
		n.vary(rng, offspring)
		evals, err := n.evaluate(offspring, objectives)
		if err != nil {
			return nil, err
		}
		total += evals
		pop = n.selectNext(rng, append(pop, offspring...), n.cfg.PopSize)
		n.scalarize(pop)
		st := fitnessStats(gen, evals, pop)
		pred.History = append(pred.History, st)
		logGeneration(log, st)
	}

	winner := pop[best(pop)]
	patch, err := n.expand(winner.genes)
	if err != nil {
		return nil, err
	}
	pred.Patch = patch
	pred.Fitness = winner.fit
	pred.Objectives = winner.obj
	pred.Evaluations = total

	objs := make([][]float64, len(pop))
	for i, ind := range pop {
		objs[i] = ind.obj
	}
	for _, i := range NonDominatedSort(objs)[0] {
		p, err := n.expand(pop[i].genes)
		if err != nil {
			return nil, err
		}
		pred.Front = append(pred.Front, Solution{Patch: p, Objectives: append([]float64(nil), pop[i].obj...)})
	}
	return pred, nil
}

// scalarize sets the selection scalar to the configured selector.
func (n *NSGA3) scalarize(pop []*individual) {
	for _, ind := range pop {
		ind.fit = n.cfg.Selector.score(ind.obj)
	}
}

func (n *NSGA3) vary(rng *rand.Rand, pop []*individual) {
	for i := 1; i < len(pop); i += 2 {
		if rng.Float64() < n.cfg.CrossoverProb {
			sbx(rng, pop[i-1].genes, pop[i].genes, n.cfg.SBXEta)
			pop[i-1].invalidate()
			pop[i].invalidate()
		}
	}
	indpb := 1 / float64(len(n.free))
	for _, ind := range pop {
		if rng.Float64() < n.cfg.MutationProb && polynomialMutate(rng, ind.genes, n.cfg.PolyEta, indpb) {
			ind.invalidate()
		}
	}
}

// dominates reports whether a is no worse than b everywhere and better
// somewhere (minimization).
func dominates(a, b []float64) bool {
	better := false
	for i := range a {
		if a[i] > b[i] {
			return false
		}
		if a[i] < b[i] {
			better = true
		}
	}
	return better
}

// NonDominatedSort partitions objs into Pareto fronts of indices. Front 0
// holds the non-dominated points; indices are ascending within a front.
func NonDominatedSort(objs [][]float64) [][]int {
	n := len(objs)
	if n == 0 {
		return nil
	}
	dominatedBy := make([]int, n)
	dominating := make([][]int, n)
	var front []int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			switch {
			case dominates(objs[i], objs[j]):
				dominating[i] = append(dominating[i], j)
				dominatedBy[j]++
			case dominates(objs[j], objs[i]):
				dominating[j] = append(dominating[j], i)
				dominatedBy[i]++
			}
		}
	}
	for i := 0; i < n; i++ {
		if dominatedBy[i] == 0 {
			front = append(front, i)
		}
	}
	var fronts [][]int
	for len(front) > 0 {
		fronts = append(fronts, front)
		var next []int
		for _, i := range front {
			for _, j := range dominating[i] {
				dominatedBy[j]--
				if dominatedBy[j] == 0 {
					next = append(next, j)
				}
			}
		}
		sort.Ints(next)
		front = next
	}
	return fronts
}

// selectNext performs NSGA-III environmental selection of k survivors.
func (n *NSGA3) selectNext(rng *rand.Rand, pop []*individual, k int) []*individual {
	objs := make([][]float64, len(pop))
	for i, ind := range pop {
		objs[i] = ind.obj
	}
	fronts := NonDominatedSort(objs)

	var chosen, last []int
	for _, f := range fronts {
		if len(chosen)+len(f) > k {
			last = f
			break
		}
		chosen = append(chosen, f...)
		if len(chosen) == k {
			break
		}
	}
	if len(last) == 0 {
		return pick(pop, chosen)
	}

	considered := append(append([]int(nil), chosen...), last...)
	norm := normalize(objs, considered)
	niche, dist := associate(norm, n.refPoints)

	counts := make([]int, len(n.refPoints))
	for _, i := range chosen {
		counts[niche[i]]++
	}
	available := append([]int(nil), last...)
	for len(chosen) < k {
		// Reference points that still have candidates in the last front.
		members := make(map[int][]int)
		for _, i := range available {
			members[niche[i]] = append(members[niche[i]], i)
		}
		minCount := math.MaxInt
		for r := range n.refPoints {
			if len(members[r]) > 0 && counts[r] < minCount {
				minCount = counts[r]
			}
		}
		var least []int
		for r := range n.refPoints {
			if len(members[r]) > 0 && counts[r] == minCount {
				least = append(least, r)
			}
		}
		r := least[rng.Intn(len(least))]
		sel := members[r][0]
		for _, i := range members[r][1:] {
			if dist[i] < dist[sel] {
				sel = i
			}
		}
		chosen = append(chosen, sel)
		counts[r]++
		for j, i := range available {
			if i == sel {
				available = append(available[:j], available[j+1:]...)
				break
			}
		}
	}
	return pick(pop, chosen)
}

func pick(pop []*individual, idx []int) []*individual {
	out := make([]*individual, len(idx))
	for i, j := range idx {
		out[i] = pop[j]
	}
	return out
}

// normalize translates objs by the ideal point of the considered members
// and divides by the hyperplane intercepts through the extreme points.
// Rows outside considered are returned as nil.
func normalize(objs [][]float64, considered []int) [][]float64 {
	m := len(objs[considered[0]])
	ideal := make([]float64, m)
	worst := make([]float64, m)
	for j := range ideal {
		ideal[j] = math.Inf(1)
		worst[j] = math.Inf(-1)
	}
	for _, i := range considered {
		for j, v := range objs[i] {
			ideal[j] = math.Min(ideal[j], v)
			worst[j] = math.Max(worst[j], v)
		}
	}
	translated := make([][]float64, len(objs))
	for _, i := range considered {
		t := make([]float64, m)
		for j, v := range objs[i] {
			t[j] = v - ideal[j]
		}
		translated[i] = t
	}

	extremes := mat.NewDense(m, m, nil)
	for axis := 0; axis < m; axis++ {
		bestASF, bestIdx := math.Inf(1), considered[0]
		for _, i := range considered {
			asf := 0.0
			for j, v := range translated[i] {
				w := 1e-6
				if j == axis {
					w = 1
				}
				asf = math.Max(asf, v/w)
			}
			if asf < bestASF {
				bestASF, bestIdx = asf, i
			}
		}
		extremes.SetRow(axis, translated[bestIdx])
	}

	intercepts := make([]float64, m)
	ok := false
	if m > 1 {
		ones := mat.NewVecDense(m, nil)
		for j := 0; j < m; j++ {
			ones.SetVec(j, 1)
		}
		var x mat.VecDense
		if err := x.SolveVec(extremes, ones); err == nil {
			ok = true
			for j := 0; j < m; j++ {
				intercepts[j] = 1 / x.AtVec(j)
				if math.IsNaN(intercepts[j]) || math.IsInf(intercepts[j], 0) || intercepts[j] <= 1e-6 {
					ok = false
					break
				}
			}
		}
	}
	if !ok {
		for j := range intercepts {
			intercepts[j] = worst[j] - ideal[j]
		}
	}
	for j := range intercepts {
		if intercepts[j] <= 1e-12 {
			intercepts[j] = 1e-12
		}
	}

	for _, i := range considered {
		for j := range translated[i] {
			translated[i][j] /= intercepts[j]
		}
	}
	return translated
}

// associate maps every normalized row to its nearest reference line by
// perpendicular distance.
func associate(norm [][]float64, refs [][]float64) ([]int, []float64) {
	niche := make([]int, len(norm))
	dist := make([]float64, len(norm))
	refNorm := make([]float64, len(refs))
	for r, rp := range refs {
		var s float64
		for _, v := range rp {
			s += v * v
		}
		refNorm[r] = s
	}
	for i, p := range norm {
		if p == nil {
			continue
		}
		best, bestR := math.Inf(1), 0
		for r, rp := range refs {
			if refNorm[r] == 0 {
				continue
			}
			var dot float64
			for j := range p {
				dot += p[j] * rp[j]
			}
			k := dot / refNorm[r]
			var d float64
			for j := range p {
				e := p[j] - k*rp[j]
				d += e * e
			}
			if d < best {
				best, bestR = d, r
			}
		}
		niche[i] = bestR
		dist[i] = math.Sqrt(best)
	}
	return niche, dist
}
