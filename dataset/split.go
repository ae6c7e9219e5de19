package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/immoeliza/pricetune/pkg/errors"
)

// Split is a train/test partition of one table.
type Split struct {
	Train Table
	Test  Table
}

// TrainTestSplit shuffles rows with a seeded PCG source and holds out
// ceil(testSize*n) of them for testing.
func TrainTestSplit(t Table, testSize float64, seed uint64) (Split, error) {
	if !(testSize > 0 && testSize < 1) {
		return Split{}, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	n := t.NumRows()
	nTest := int(math.Ceil(testSize * float64(n)))
	if n < 2 || nTest >= n {
		return Split{}, errors.NewValidationError("rows", "too few rows to split", n)
	}

	idx := permutation(n, seed)
	return Split{
		Train: t.Rows(idx[nTest:]),
		Test:  t.Rows(idx[:nTest]),
	}, nil
}

// Fold holds the row indices of one cross-validation fold.
type Fold struct {
	TrainIndices []int
	ValidIndices []int
}

// KFold is a k-fold splitter. With Shuffle the rows are permuted by a PCG source
// seeded with Seed, so the same seed always yields the same folds.
type KFold struct {
	NSplits int
	Shuffle bool
	Seed    uint64
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, seed uint64) KFold {
	return KFold{NSplits: nSplits, Shuffle: shuffle, Seed: seed}
}

// Split partitions n rows into NSplits disjoint validation folds. The first
// n % NSplits folds get one extra row.
func (kf KFold) Split(n int) ([]Fold, error) {
	if kf.NSplits < 2 {
		return nil, errors.NewValidationError("folds", "need at least 2 splits", kf.NSplits)
	}
	if n < kf.NSplits {
		return nil, errors.NewValidationError("rows", "fewer rows than folds", n)
	}

	var indices []int
	if kf.Shuffle {
		indices = permutation(n, kf.Seed)
	} else {
		indices = make([]int, n)
		for i := range indices {
			indices[i] = i
		}
	}

	folds := make([]Fold, kf.NSplits)
	foldSize := n / kf.NSplits
	remainder := n % kf.NSplits

	current := 0
	for i := range folds {
		size := foldSize
		if i < remainder {
			size++
		}
		valid := append([]int(nil), indices[current:current+size]...)
		train := make([]int, 0, n-size)
		train = append(train, indices[:current]...)
		train = append(train, indices[current+size:]...)
		folds[i] = Fold{TrainIndices: train, ValidIndices: valid}
		current += size
	}
	return folds, nil
}

func permutation(n int, seed uint64) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	r := rand.New(rand.NewPCG(seed, seed))
	r.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	return idx
}
