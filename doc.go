// Package pricetune trains and tracks real-estate price regression models.
//
// A run loads the most recent cleaned listings CSV, searches gradient boosted
// tree hyperparameters with cross-validated RMSE as the objective, refits the
// best configuration on the training split and scores it on a held-out test
// split. The metrics, a fit diagnosis and a ranking score are appended to a
// shared CSV ledger that renders as a leaderboard.
//
// # Quick Start
//
//	cfg := config.Default()
//	cfg.Mode = config.ModeDev
//
//	runner, err := experiment.NewRunner(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := runner.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(out.Test.RMSE, out.Diagnosis.Interpretation())
//
// The same pipeline is available from the command line:
//
//	pricetune train --mode dev --sampler tpe
//	pricetune leaderboard --limit 10
//
// # Packages
//
//   - dataset: feature tables, CSV loading, train/test split and K-fold
//   - gbdt: oblivious gradient boosted trees with early stopping
//   - tuning: search space, TPE/random/grid samplers and the search controller
//   - metrics: MAE, RMSE and R²
//   - diagnosis: overfitting/underfitting classification from metric gaps
//   - ledger: the append-only run ledger and leaderboard
//   - report: search history and leaderboard plots
//   - config: YAML configuration with dev/full mode defaults
//   - experiment: the end-to-end training pipeline
//   - core/execution: accelerated/standard execution mode probing
//   - core/parallel, core/model: worker fan-out and estimator base types
//   - pkg/errors, pkg/log: structured errors and zerolog-backed logging
//
// # Dev Mode
//
// Dev mode caps the trial budget, the row count and the boosting iterations,
// and suffixes model names with " [TEST]" and artifact names with "_TEST" so
// that quick runs never overwrite or masquerade as full runs.
package pricetune
