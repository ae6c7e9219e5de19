// Package gbdt implements gradient-boosted oblivious decision trees for
// regression.
//
// Every tree is symmetric: all nodes on one level share the same split, so a
// tree of depth d is d (feature, threshold) pairs plus 2^d leaf values. Feature
// values are quantized into at most MaxBin+1 buckets before training and split
// candidates are scored from per-leaf gradient histograms.
//
// Randomness comes from one seeded PCG source: Bayesian bootstrap sample
// weights (BaggingTemperature) and Gaussian noise on split scores
// (RandomStrength). With the same seed and data two fits give the same model,
// whether histograms are built on one goroutine (execution.Standard) or on all
// cores (execution.Accelerated).
//
// Example:
//
//	params := gbdt.DefaultParams()
//	params.Iterations = 300
//	m, err := gbdt.NewTrainer(params).FitWithValidation(Xtr, ytr, Xva, yva, names)
//	if err != nil {
//	    return err
//	}
//	pred, err := m.Predict(testTable)
package gbdt
