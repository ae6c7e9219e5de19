package tuning

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/immoeliza/pricetune/pkg/errors"
)

// TPEOptions tune the Tree-structured Parzen Estimator.
type TPEOptions struct {
	// StartupTrials are sampled uniformly before the model is used.
	StartupTrials int
	// Candidates drawn from the "good" density per dimension.
	Candidates int
	// Gamma is the fraction of observations treated as "good".
	Gamma float64
	Seed  uint64
}

// DefaultTPEOptions returns StartupTrials 10, Candidates 24, Gamma 0.25.
func DefaultTPEOptions() TPEOptions {
	return TPEOptions{StartupTrials: 10, Candidates: 24, Gamma: 0.25}
}

// TPESampler is a sequential model-based sampler. Completed trials are split
// into a good and a bad group by score; for each dimension a Parzen density is
// fitted to each group and the candidate maximising l(x)/g(x) is proposed.
type TPESampler struct {
	space Space
	opts  TPEOptions
	rng   *rand.Rand
	src   rand.Source

	pending  map[int]Config
	observed map[int]Trial
}

// NewTPESampler creates a seeded TPE sampler.
func NewTPESampler(space Space, opts TPEOptions) (*TPESampler, error) {
	if opts.StartupTrials < 1 {
		return nil, errors.NewValidationError("startup_trials", "must be >= 1", opts.StartupTrials)
	}
	if opts.Candidates < 1 {
		return nil, errors.NewValidationError("candidates", "must be >= 1", opts.Candidates)
	}
	if !(opts.Gamma > 0 && opts.Gamma < 1) {
		return nil, errors.NewValidationError("gamma", "must be in (0, 1)", opts.Gamma)
	}
	src := rand.NewPCG(opts.Seed, opts.Seed^0x5851f42d4c957f2d)
	return &TPESampler{
		space:    space,
		opts:     opts,
		rng:      rand.New(src),
		src:      src,
		pending:  make(map[int]Config),
		observed: make(map[int]Trial),
	}, nil
}

// Suggest implements Sampler.
func (s *TPESampler) Suggest(trialIndex int, history []Trial) (Config, error) {
	for _, t := range history {
		if _, ok := s.observed[t.Index]; !ok && t.OK() {
			s.observed[t.Index] = t
		}
	}
	obs := make([]Trial, 0, len(s.observed))
	for _, t := range s.observed {
		obs = append(obs, t)
	}
	obs = sortedByScore(obs)

	var cfg Config
	if len(obs) < s.opts.StartupTrials || len(obs) < 2 {
		cfg = sampleSpace(s.space, s.rng)
	} else {
		nGood := int(math.Ceil(s.opts.Gamma * float64(len(obs))))
		if nGood >= len(obs) {
			nGood = len(obs) - 1
		}
		good, bad := obs[:nGood], obs[nGood:]

		values := make(map[string]interface{}, len(s.space.params))
		for _, p := range s.space.params {
			if p.Kind == KindCategorical {
				values[p.Name] = s.suggestCategorical(p, good, bad)
			} else {
				values[p.Name] = s.suggestNumeric(p, good, bad)
			}
		}
		cfg = NewConfig(values)
	}
	s.pending[trialIndex] = cfg
	return cfg, nil
}

// Report implements Sampler.
func (s *TPESampler) Report(trialIndex int, score float64) {
	cfg, ok := s.pending[trialIndex]
	if !ok {
		return
	}
	delete(s.pending, trialIndex)
	s.observed[trialIndex] = Trial{Index: trialIndex, Config: cfg, Score: score, State: TrialComplete}
}

func (s *TPESampler) suggestNumeric(p Param, good, bad []Trial) interface{} {
	lo, hi := p.internalBounds()
	if lo == hi {
		return p.fromInternal(lo)
	}
	l := newParzen(p, good, lo, hi)
	g := newParzen(p, bad, lo, hi)

	best, bestScore := lo, math.Inf(-1)
	for i := 0; i < s.opts.Candidates; i++ {
		x := l.sample(s.rng, s.src)
		if p.Kind == KindInt && !p.Log {
			x = math.Round(x)
		}
		score := math.Log(l.density(x)) - math.Log(g.density(x))
		if score > bestScore {
			best, bestScore = x, score
		}
	}
	return p.fromInternal(best)
}

func (s *TPESampler) suggestCategorical(p Param, good, bad []Trial) interface{} {
	weights := func(trials []Trial) []float64 {
		w := make([]float64, len(p.Choices))
		for i := range w {
			w[i] = 1 // prior
		}
		for _, t := range trials {
			v, _ := t.Config.String(p.Name)
			for i, c := range p.Choices {
				if c == v {
					w[i]++
				}
			}
		}
		return w
	}
	lw, gw := weights(good), weights(bad)
	var lSum, gSum float64
	for i := range lw {
		lSum += lw[i]
		gSum += gw[i]
	}

	best, bestScore := 0, math.Inf(-1)
	for n := 0; n < s.opts.Candidates; n++ {
		u := s.rng.Float64() * lSum
		i := 0
		for ; i < len(lw)-1 && u >= lw[i]; i++ {
			u -= lw[i]
		}
		score := math.Log(lw[i]/lSum) - math.Log(gw[i]/gSum)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return p.Choices[best]
}

// parzen is a mixture of normals truncated to [lo, hi] plus a uniform prior.
type parzen struct {
	lo, hi  float64
	mus     []float64
	sigmas  []float64
	weights []float64 // last entry is the prior
}

func newParzen(p Param, trials []Trial, lo, hi float64) parzen {
	mus := make([]float64, 0, len(trials))
	for _, t := range trials {
		v, ok := t.Config.Float(p.Name)
		if !ok {
			continue
		}
		mus = append(mus, p.toInternal(v))
	}
	sort.Float64s(mus)

	span := hi - lo
	minSigma := span / math.Min(100, float64(len(mus)+1))
	sigmas := make([]float64, len(mus))
	for i, mu := range mus {
		left, right := mu-lo, hi-mu
		if i > 0 {
			left = mu - mus[i-1]
		}
		if i < len(mus)-1 {
			right = mus[i+1] - mu
		}
		sigmas[i] = math.Min(math.Max(math.Max(left, right), minSigma), span)
	}

	k := float64(len(mus) + 1)
	weights := make([]float64, len(mus)+1)
	for i := range weights {
		weights[i] = 1 / k
	}
	return parzen{lo: lo, hi: hi, mus: mus, sigmas: sigmas, weights: weights}
}

func (pz parzen) density(x float64) float64 {
	d := pz.weights[len(pz.mus)] / (pz.hi - pz.lo)
	for i, mu := range pz.mus {
		n := distuv.Normal{Mu: mu, Sigma: pz.sigmas[i]}
		mass := n.CDF(pz.hi) - n.CDF(pz.lo)
		if mass <= 0 {
			continue
		}
		d += pz.weights[i] * n.Prob(x) / mass
	}
	return math.Max(d, 1e-300)
}

func (pz parzen) sample(r *rand.Rand, src rand.Source) float64 {
	u := r.Float64()
	i := 0
	for ; i < len(pz.weights)-1 && u >= pz.weights[i]; i++ {
		u -= pz.weights[i]
	}
	if i == len(pz.mus) {
		return pz.lo + r.Float64()*(pz.hi-pz.lo)
	}
	n := distuv.Normal{Mu: pz.mus[i], Sigma: pz.sigmas[i], Src: src}
	for tries := 0; tries < 100; tries++ {
		if x := n.Rand(); x >= pz.lo && x <= pz.hi {
			return x
		}
	}
	return math.Min(math.Max(pz.mus[i], pz.lo), pz.hi)
}
