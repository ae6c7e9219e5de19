package gbdt

import (
	"math"
	"sort"
)

// findBorders returns ascending split thresholds for one feature, at most maxBin
// of them. NaNs are ignored here and fall into the lowest bucket later.
func findBorders(values []float64, maxBin int) []float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) < 2 {
		return nil
	}
	sort.Float64s(sorted)

	unique := []float64{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			unique = append(unique, sorted[i])
		}
	}
	if len(unique) < 2 {
		return nil
	}

	// Few distinct values: a border between every neighbouring pair.
	if len(unique)-1 <= maxBin {
		borders := make([]float64, len(unique)-1)
		for i := range borders {
			borders[i] = (unique[i] + unique[i+1]) / 2
		}
		return borders
	}

	// Otherwise equal-frequency borders over the sorted sample.
	borders := make([]float64, 0, maxBin)
	n := len(sorted)
	for q := 1; q <= maxBin; q++ {
		i := q * n / (maxBin + 1)
		if i <= 0 || i >= n || sorted[i-1] == sorted[i] {
			continue
		}
		b := (sorted[i-1] + sorted[i]) / 2
		if len(borders) == 0 || b > borders[len(borders)-1] {
			borders = append(borders, b)
		}
	}
	return borders
}

// binOf maps v to the number of borders strictly below it, so v goes right of
// border k exactly when v > borders[k]. NaN maps to bucket 0.
func binOf(borders []float64, v float64) uint16 {
	if math.IsNaN(v) {
		return 0
	}
	return uint16(sort.SearchFloat64s(borders, v))
}

// quantize bins every column.
func quantize(cols [][]float64, maxBin int) (borders [][]float64, bins [][]uint16) {
	borders = make([][]float64, len(cols))
	bins = make([][]uint16, len(cols))
	for f, col := range cols {
		borders[f] = findBorders(col, maxBin)
		b := make([]uint16, len(col))
		for i, v := range col {
			b[i] = binOf(borders[f], v)
		}
		bins[f] = b
	}
	return borders, bins
}
