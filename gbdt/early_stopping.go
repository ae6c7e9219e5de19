package gbdt

import "math"

// EarlyStopping tracks the validation score and signals when it stopped improving.
type EarlyStopping struct {
	Rounds          int     // Number of rounds without improvement to stop
	BestScore       float64 // Best validation score so far
	BestIteration   int     // Iteration with best score
	RoundsNoImprove int     // Current rounds without improvement
	Enabled         bool
}

// NewEarlyStopping creates an early stopping handler for a score to minimize.
// rounds <= 0 only tracks the best iteration and never asks to stop.
func NewEarlyStopping(rounds int) *EarlyStopping {
	return &EarlyStopping{
		Rounds:        rounds,
		BestScore:     math.Inf(1),
		BestIteration: -1,
		Enabled:       rounds > 0,
	}
}

// Update records the score of iteration and reports whether training should stop.
// Ties keep the earlier iteration.
func (es *EarlyStopping) Update(iteration int, score float64) bool {
	if score < es.BestScore {
		es.BestScore = score
		es.BestIteration = iteration
		es.RoundsNoImprove = 0
	} else {
		es.RoundsNoImprove++
	}
	return es.ShouldStop()
}

// ShouldStop returns whether training should stop
func (es *EarlyStopping) ShouldStop() bool {
	return es.Enabled && es.RoundsNoImprove >= es.Rounds
}
