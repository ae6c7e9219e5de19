// Package execution decides which training path a run uses.
//
// The mode is opaque to the search: it is probed once at startup and the
// resulting Capability is passed down to every training call.
package execution

import (
	"context"
	"runtime"
	"strings"

	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
)

// Mode selects the training path.
type Mode string

const (
	// Standard trains sequentially on one goroutine.
	Standard Mode = "standard"
	// Accelerated spreads histogram construction over all CPU cores.
	Accelerated Mode = "accelerated"
)

// ParseMode accepts "standard" or "accelerated" (case-insensitive). Empty means Standard.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Standard:
		return Standard, nil
	case Accelerated:
		return Accelerated, nil
	default:
		return Standard, errors.NewValidationError("execution.mode", "must be standard or accelerated", s)
	}
}

// Workers is the number of goroutines the mode may use.
func (m Mode) Workers() int {
	if m == Accelerated {
		return runtime.NumCPU()
	}
	return 1
}

// Capability is the typed outcome of probing a requested mode.
type Capability struct {
	Requested Mode
	Mode      Mode // the mode to actually use
	Available bool
	Reason    string // why Requested is unavailable
}

// Check runs a tiny speculative training job in the given mode.
// A non-nil error or a panic marks the mode unavailable.
type Check func(ctx context.Context, mode Mode) error

// Prober probes execution modes.
type Prober struct {
	NumCPU func() int
	Check  Check
}

// NewProber returns a Prober using runtime.NumCPU and the given micro-fit check.
func NewProber(check Check) *Prober {
	return &Prober{NumCPU: runtime.NumCPU, Check: check}
}

// Probe tests whether requested can be used. Standard is always available.
func (p *Prober) Probe(ctx context.Context, requested Mode) Capability {
	if requested != Accelerated {
		return Capability{Requested: requested, Mode: Standard, Available: true}
	}

	numCPU := runtime.NumCPU
	if p.NumCPU != nil {
		numCPU = p.NumCPU
	}
	if n := numCPU(); n < 2 {
		return unavailable(requested, "only one CPU available")
	}

	if p.Check != nil {
		err := errors.SafeExecute("execution.Probe", func() error {
			return p.Check(ctx, Accelerated)
		})
		if err != nil {
			return unavailable(requested, err.Error())
		}
	}
	return Capability{Requested: requested, Mode: Accelerated, Available: true}
}

// Resolve probes requested and, when it is unavailable, logs a warning carrying a
// ResourceUnavailableError and falls back to Standard. It never fails.
func (p *Prober) Resolve(ctx context.Context, requested Mode, logger log.Logger) Capability {
	capability := p.Probe(ctx, requested)
	if capability.Available {
		return capability
	}
	if logger == nil {
		logger = log.GetLoggerWithName("execution")
	}
	logger.Warn("Execution mode unavailable, falling back",
		errors.NewResourceUnavailableError(string(requested), capability.Reason),
		log.ExecModeKey, string(capability.Mode),
	)
	return capability
}

func unavailable(requested Mode, reason string) Capability {
	return Capability{Requested: requested, Mode: Standard, Available: false, Reason: reason}
}
