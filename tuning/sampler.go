package tuning

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/immoeliza/pricetune/pkg/errors"
)

// Sampler proposes the configuration for each trial.
//
// Suggest receives every trial finished so far, failed ones included. Report is
// called with the score of each successful trial before the next Suggest.
type Sampler interface {
	Suggest(trialIndex int, history []Trial) (Config, error)
	Report(trialIndex int, score float64)
}

// RandomSampler draws every dimension uniformly and independently.
type RandomSampler struct {
	space Space
	rng   *rand.Rand
}

// NewRandomSampler creates a seeded uniform sampler.
func NewRandomSampler(space Space, seed uint64) *RandomSampler {
	return &RandomSampler{space: space, rng: rand.New(rand.NewPCG(seed, seed))}
}

// Suggest implements Sampler.
func (s *RandomSampler) Suggest(_ int, _ []Trial) (Config, error) {
	return sampleSpace(s.space, s.rng), nil
}

// Report implements Sampler. Uniform sampling ignores scores.
func (s *RandomSampler) Report(int, float64) {}

func sampleSpace(space Space, r *rand.Rand) Config {
	values := make(map[string]interface{}, len(space.params))
	for _, p := range space.params {
		values[p.Name] = p.sampleUniform(r)
	}
	return NewConfig(values)
}

// GridSampler walks the cartesian product of per-dimension grids, last dimension
// fastest. Trial i gets grid point i modulo the grid size.
type GridSampler struct {
	space  Space
	levels [][]interface{}
	size   int
}

// NewGridSampler builds a grid with the given number of evenly spaced levels per
// numeric dimension (in log space for Log dimensions). Integer levels are
// deduplicated after rounding; categorical dimensions use every choice.
func NewGridSampler(space Space, levels int) (*GridSampler, error) {
	if levels < 1 {
		return nil, errors.NewValidationError("grid_levels", "must be >= 1", levels)
	}
	g := &GridSampler{space: space, levels: make([][]interface{}, len(space.params)), size: 1}
	for d, p := range space.params {
		g.levels[d] = gridLevels(p, levels)
		g.size *= len(g.levels[d])
	}
	return g, nil
}

// Size is the number of distinct grid points.
func (g *GridSampler) Size() int { return g.size }

// Suggest implements Sampler.
func (g *GridSampler) Suggest(trialIndex int, _ []Trial) (Config, error) {
	if trialIndex < 0 {
		return Config{}, errors.NewValidationError("trial_index", "must be >= 0", trialIndex)
	}
	idx := trialIndex % g.size
	values := make(map[string]interface{}, len(g.levels))
	for d := len(g.levels) - 1; d >= 0; d-- {
		n := len(g.levels[d])
		values[g.space.params[d].Name] = g.levels[d][idx%n]
		idx /= n
	}
	return NewConfig(values), nil
}

// Report implements Sampler. The grid order is fixed.
func (g *GridSampler) Report(int, float64) {}

func gridLevels(p Param, levels int) []interface{} {
	if p.Kind == KindCategorical {
		out := make([]interface{}, len(p.Choices))
		for i, c := range p.Choices {
			out[i] = c
		}
		return out
	}

	lo, hi := p.internalBounds()
	if levels == 1 || lo == hi {
		return []interface{}{p.fromInternal((lo + hi) / 2)}
	}
	out := make([]interface{}, 0, levels)
	seen := make(map[int]struct{})
	for i := 0; i < levels; i++ {
		v := p.fromInternal(lo + (hi-lo)*float64(i)/float64(levels-1))
		if iv, ok := v.(int); ok {
			if _, dup := seen[iv]; dup {
				continue
			}
			seen[iv] = struct{}{}
		}
		out = append(out, v)
	}
	return out
}

// sortedByScore returns the completed trials ordered by score, earliest index first on ties.
func sortedByScore(trials []Trial) []Trial {
	out := make([]Trial, 0, len(trials))
	for _, t := range trials {
		if t.OK() && !math.IsNaN(t.Score) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Index < out[j].Index
	})
	return out
}
