package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Accelerated")
	require.NoError(t, err)
	assert.Equal(t, Accelerated, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Standard, m)

	_, err = ParseMode("gpu")
	var vErr *errors.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestProbe(t *testing.T) {
	ok := func(context.Context, Mode) error { return nil }

	tests := []struct {
		name      string
		requested Mode
		cpus      int
		check     Check
		wantMode  Mode
		wantAvail bool
	}{
		{"standard always available", Standard, 1, nil, Standard, true},
		{"accelerated with cores", Accelerated, 4, ok, Accelerated, true},
		{"single cpu", Accelerated, 1, ok, Standard, false},
		{"failing check", Accelerated, 4, func(context.Context, Mode) error { return errors.New("no backend") }, Standard, false},
		{"panicking check", Accelerated, 4, func(context.Context, Mode) error { panic("driver crash") }, Standard, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Prober{NumCPU: func() int { return tt.cpus }, Check: tt.check}
			c := p.Probe(context.Background(), tt.requested)
			assert.Equal(t, tt.wantMode, c.Mode)
			assert.Equal(t, tt.wantAvail, c.Available)
			if !tt.wantAvail {
				assert.NotEmpty(t, c.Reason)
			}
		})
	}
}

func TestResolveWarnsAndFallsBack(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	p := &Prober{NumCPU: func() int { return 1 }}

	c := p.Resolve(context.Background(), Accelerated, logger)
	assert.Equal(t, Standard, c.Mode)
	assert.False(t, c.Available)
	assert.True(t, logger.ContainsMessage("falling back"))
	assert.True(t, logger.ContainsField(log.ExecModeKey, "standard"))
	assert.True(t, logger.ContainsMessage("only one CPU available"))
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 1, Standard.Workers())
	assert.GreaterOrEqual(t, Accelerated.Workers(), 1)
}
