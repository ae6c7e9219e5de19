// Package log defines standard attribute keys for pipeline operations.
//
// These keys follow a hierarchical naming convention (e.g. "model.name",
// "tuning.trial") so that log output can be filtered consistently.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model. Examples: "GBDT", "CVObjective"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "tune", "log", "probe"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the run.
	PhaseKey = "ml.phase"
)

// Data Shape
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	DataFileKey = "data.file"
)

// Performance and Metrics
const (
	DurationMsKey = "perf.duration_ms"
	MAEKey        = "metrics.mae"
	RMSEKey       = "metrics.rmse"
	R2ScoreKey    = "metrics.r2_score"
	IterationKey  = "training.iteration"
)

// Tuning
const (
	// TrialKey is the 0-based index of a hyperparameter trial.
	TrialKey = "tuning.trial"

	// ScoreKey is the cross-validated objective value of a trial (lower is better).
	ScoreKey = "tuning.score"

	// BestScoreKey is the best objective value seen so far.
	BestScoreKey = "tuning.best_score"

	// StateKey is the search controller state.
	StateKey = "tuning.state"

	// FoldKey is the 0-based cross-validation fold index.
	FoldKey = "cv.fold"

	// HyperParamsKey contains the sampled hyperparameters.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Execution and storage
const (
	ExecModeKey   = "exec.mode"
	LedgerPathKey = "ledger.path"
	ArtifactKey   = "artifact.path"
)

// Error Context
const (
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationTune    = "tune"
	OperationLog     = "log"
	OperationProbe   = "probe"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseTesting    = "testing"
)
