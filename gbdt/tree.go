package gbdt

// ObliviousTree is a symmetric tree: level d splits every node on
// Features[d] > Thresholds[d]. The leaf index sets bit d when the row goes right.
type ObliviousTree struct {
	Features   []int
	Thresholds []float64
	Leaves     []float64
}

// Depth returns the number of split levels.
func (t ObliviousTree) Depth() int { return len(t.Features) }

// leafIndex routes one row. Missing values (NaN) never satisfy ">" and go left.
func (t ObliviousTree) leafIndex(at func(f int) float64) int {
	idx := 0
	for d, f := range t.Features {
		if at(f) > t.Thresholds[d] {
			idx |= 1 << d
		}
	}
	return idx
}

func (t ObliviousTree) predict(at func(f int) float64) float64 {
	return t.Leaves[t.leafIndex(at)]
}

func (t ObliviousTree) wellFormed(nFeatures int) bool {
	if len(t.Thresholds) != len(t.Features) || len(t.Leaves) != 1<<len(t.Features) {
		return false
	}
	for _, f := range t.Features {
		if f < 0 || f >= nFeatures {
			return false
		}
	}
	return true
}
