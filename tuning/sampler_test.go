package tuning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immoeliza/pricetune/pkg/errors"
)

func TestNewSpaceValidation(t *testing.T) {
	tests := []struct {
		name  string
		param Param
	}{
		{"inverted bounds", FloatRange("lr", 1, 0.1)},
		{"log with zero", LogFloatRange("lr", 0, 1)},
		{"no choices", Categorical("grow_policy")},
		{"nan bound", FloatRange("x", math.NaN(), 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSpace(tt.param)
			var vErr *errors.ValidationError
			assert.True(t, errors.As(err, &vErr))
		})
	}

	_, err := NewSpace(IntRange("depth", 1, 2), IntRange("depth", 3, 4))
	assert.Error(t, err)
}

func TestDefaultSpaceIterationsCap(t *testing.T) {
	tests := []struct {
		maxIter  int
		low, high float64
	}{
		{maxIter: 1000, low: 100, high: 1000},
		{maxIter: 100, low: 100, high: 100},
		{maxIter: 50, low: 50, high: 50},
	}
	for _, tt := range tests {
		p := DefaultSpace(tt.maxIter).Params()[0]
		assert.Equal(t, "iterations", p.Name)
		assert.Equal(t, tt.low, p.Low, "max=%d", tt.maxIter)
		assert.Equal(t, tt.high, p.High, "max=%d", tt.maxIter)

		cfg, err := NewRandomSampler(DefaultSpace(tt.maxIter), 3).Suggest(0, nil)
		require.NoError(t, err)
		iters, _ := cfg.Int("iterations")
		assert.LessOrEqual(t, iters, tt.maxIter)
	}
}

func TestRandomSamplerStaysInBounds(t *testing.T) {
	space := DefaultSpace(500)
	s := NewRandomSampler(space, 1)

	for i := 0; i < 200; i++ {
		cfg, err := s.Suggest(i, nil)
		require.NoError(t, err)

		iters, ok := cfg.Int("iterations")
		require.True(t, ok)
		assert.GreaterOrEqual(t, iters, 100)
		assert.LessOrEqual(t, iters, 500)

		depth, ok := cfg.Int("depth")
		require.True(t, ok)
		assert.GreaterOrEqual(t, depth, 4)
		assert.LessOrEqual(t, depth, 10)

		lr, ok := cfg.Float("learning_rate")
		require.True(t, ok)
		assert.GreaterOrEqual(t, lr, 0.01)
		assert.LessOrEqual(t, lr, 0.3)

		bt, _ := cfg.Float("bagging_temperature")
		assert.GreaterOrEqual(t, bt, 0.0)
		assert.LessOrEqual(t, bt, 1.0)
	}
}

func TestRandomSamplerSeeded(t *testing.T) {
	a := NewRandomSampler(DefaultSpace(1000), 9)
	b := NewRandomSampler(DefaultSpace(1000), 9)
	for i := 0; i < 5; i++ {
		ca, _ := a.Suggest(i, nil)
		cb, _ := b.Suggest(i, nil)
		assert.Equal(t, ca.Params(), cb.Params())
	}
}

func TestGridSampler(t *testing.T) {
	space, err := NewSpace(IntRange("depth", 4, 6), Categorical("mode", "a", "b"))
	require.NoError(t, err)

	g, err := NewGridSampler(space, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, g.Size())

	var got []string
	for i := 0; i < 7; i++ {
		cfg, err := g.Suggest(i, nil)
		require.NoError(t, err)
		got = append(got, cfg.Format())
	}
	assert.Equal(t, []string{
		"depth=4 mode=a", "depth=4 mode=b",
		"depth=5 mode=a", "depth=5 mode=b",
		"depth=6 mode=a", "depth=6 mode=b",
		"depth=4 mode=a",
	}, got)

	_, err = NewGridSampler(space, 0)
	assert.Error(t, err)
}

func TestGridLevelsDeduplicateIntegers(t *testing.T) {
	space, err := NewSpace(IntRange("depth", 4, 5), LogFloatRange("lr", 0.01, 1))
	require.NoError(t, err)
	g, err := NewGridSampler(space, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, g.Size())

	cfg, err := g.Suggest(1, nil)
	require.NoError(t, err)
	lr, _ := cfg.Float("lr")
	assert.InDelta(t, 0.1, lr, 1e-12)
}

func TestTPEDeterministicAndInBounds(t *testing.T) {
	space := DefaultSpace(500)
	opts := DefaultTPEOptions()
	opts.StartupTrials = 3
	opts.Seed = 5

	run := func() []map[string]interface{} {
		s, err := NewTPESampler(space, opts)
		require.NoError(t, err)
		var history []Trial
		var out []map[string]interface{}
		for i := 0; i < 12; i++ {
			cfg, err := s.Suggest(i, history)
			require.NoError(t, err)
			lr, _ := cfg.Float("learning_rate")
			score := math.Abs(lr - 0.1)
			s.Report(i, score)
			history = append(history, Trial{Index: i, Config: cfg, Score: score, State: TrialComplete})
			out = append(out, cfg.Params())

			depth, ok := cfg.Int("depth")
			require.True(t, ok)
			assert.GreaterOrEqual(t, depth, 4)
			assert.LessOrEqual(t, depth, 10)
			assert.GreaterOrEqual(t, lr, 0.01)
			assert.LessOrEqual(t, lr, 0.3)
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestTPEFindsMinimum(t *testing.T) {
	space, err := NewSpace(FloatRange("x", 0, 1), Categorical("c", "bad", "good"))
	require.NoError(t, err)
	opts := DefaultTPEOptions()
	opts.Seed = 11
	s, err := NewTPESampler(space, opts)
	require.NoError(t, err)

	var history []Trial
	best := math.Inf(1)
	goodLate := 0
	for i := 0; i < 40; i++ {
		cfg, err := s.Suggest(i, history)
		require.NoError(t, err)
		x, _ := cfg.Float("x")
		c, _ := cfg.String("c")
		score := (x - 0.3) * (x - 0.3)
		if c == "bad" {
			score += 1
		} else if i >= 30 {
			goodLate++
		}
		s.Report(i, score)
		history = append(history, Trial{Index: i, Config: cfg, Score: score, State: TrialComplete})
		best = math.Min(best, score)
	}
	assert.Less(t, best, 0.005)
	assert.GreaterOrEqual(t, goodLate, 6, "late suggestions should favour the good category")
}

func TestTPEOptionsValidation(t *testing.T) {
	opts := DefaultTPEOptions()
	opts.Gamma = 1
	_, err := NewTPESampler(DefaultSpace(1000), opts)
	assert.Error(t, err)
}

func TestConfigAccessors(t *testing.T) {
	src := map[string]interface{}{"depth": 6, "learning_rate": 0.1, "mode": "x"}
	cfg := NewConfig(src)
	src["depth"] = 99

	d, ok := cfg.Int("depth")
	assert.True(t, ok)
	assert.Equal(t, 6, d)

	f, ok := cfg.Float("depth")
	assert.True(t, ok)
	assert.Equal(t, 6.0, f)

	_, ok = cfg.Int("learning_rate")
	assert.False(t, ok)

	assert.Equal(t, []string{"depth", "learning_rate", "mode"}, cfg.Names())
	assert.Equal(t, "depth=6 learning_rate=0.1 mode=x", cfg.Format())

	p := cfg.Params()
	p["depth"] = 1
	d, _ = cfg.Int("depth")
	assert.Equal(t, 6, d)
}
