// Package dataset holds the immutable feature table the pipeline trains on,
// plus the train/test and k-fold splitters.
package dataset

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/immoeliza/pricetune/pkg/errors"
)

// Table is an immutable, column-major feature table with an optional target.
// Every transform returns a new Table; the receiver is never modified.
type Table struct {
	names      []string
	cols       [][]float64
	targetName string
	target     []float64
	rows       int
}

// New builds a Table. cols[i] holds the values of feature names[i]; target may be
// nil when targetName is empty (prediction input).
func New(names []string, cols [][]float64, targetName string, target []float64) (Table, error) {
	if len(names) != len(cols) {
		return Table{}, errors.NewDimensionError("dataset.New", len(names), len(cols), 1)
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return Table{}, errors.NewValidationError("features", "duplicate column name", n)
		}
		seen[n] = struct{}{}
	}
	if targetName != "" {
		if _, clash := seen[targetName]; clash {
			return Table{}, errors.NewValidationError("target", "target is also listed as a feature", targetName)
		}
	}

	rows := -1
	if targetName != "" {
		rows = len(target)
	}
	for i, c := range cols {
		if rows < 0 {
			rows = len(c)
		}
		if len(c) != rows {
			return Table{}, errors.NewInvalidInputError("dataset.New column "+names[i], rows, len(c))
		}
	}
	if rows < 0 {
		rows = 0
	}

	t := Table{
		names:      append([]string(nil), names...),
		cols:       make([][]float64, len(cols)),
		targetName: targetName,
		rows:       rows,
	}
	for i, c := range cols {
		t.cols[i] = append([]float64(nil), c...)
	}
	if targetName != "" {
		t.target = append([]float64(nil), target...)
	}
	return t, nil
}

// NumRows returns the number of rows.
func (t Table) NumRows() int { return t.rows }

// NumFeatures returns the number of feature columns.
func (t Table) NumFeatures() int { return len(t.names) }

// Features returns a copy of the ordered feature names.
func (t Table) Features() []string { return append([]string(nil), t.names...) }

// TargetName returns the target column name, empty if the table has no target.
func (t Table) TargetName() string { return t.targetName }

// HasTarget reports whether the table carries a target column.
func (t Table) HasTarget() bool { return t.targetName != "" }

// Column returns a copy of the named feature column.
func (t Table) Column(name string) ([]float64, bool) {
	for i, n := range t.names {
		if n == name {
			return append([]float64(nil), t.cols[i]...), true
		}
	}
	return nil, false
}

// TargetValues returns a copy of the target column.
func (t Table) TargetValues() []float64 { return append([]float64(nil), t.target...) }

// Select keeps exactly the named features, in the given order. Every missing name
// is reported in one SchemaMismatchError.
func (t Table) Select(names []string) (Table, error) {
	index := make(map[string]int, len(t.names))
	for i, n := range t.names {
		index[n] = i
	}
	var missing []string
	for _, n := range names {
		if _, ok := index[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return Table{}, errors.NewMissingColumnsError("selection", missing)
	}

	cols := make([][]float64, len(names))
	for i, n := range names {
		cols[i] = t.cols[index[n]]
	}
	return New(names, cols, t.targetName, t.target)
}

// Head returns the first n rows. n <= 0 or n >= NumRows returns the table unchanged.
func (t Table) Head(n int) Table {
	if n <= 0 || n >= t.rows {
		return t
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return t.Rows(idx)
}

// Rows returns a table made of the given row indices, in that order.
func (t Table) Rows(idx []int) Table {
	out := Table{
		names:      t.names,
		cols:       make([][]float64, len(t.cols)),
		targetName: t.targetName,
		rows:       len(idx),
	}
	for j, c := range t.cols {
		col := make([]float64, len(idx))
		for k, i := range idx {
			col[k] = c[i]
		}
		out.cols[j] = col
	}
	if t.HasTarget() {
		out.target = make([]float64, len(idx))
		for k, i := range idx {
			out.target[k] = t.target[i]
		}
	}
	return out
}

// DropMissingTarget removes rows whose target is NaN.
func (t Table) DropMissingTarget() Table {
	if !t.HasTarget() {
		return t
	}
	idx := make([]int, 0, t.rows)
	for i, v := range t.target {
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	if len(idx) == t.rows {
		return t
	}
	return t.Rows(idx)
}

// Matrix returns the features as a rows x features dense matrix.
func (t Table) Matrix() *mat.Dense {
	if t.rows == 0 || len(t.cols) == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(t.rows, len(t.cols), nil)
	for j, c := range t.cols {
		for i, v := range c {
			m.Set(i, j, v)
		}
	}
	return m
}

// Target returns the target column as a vector, nil when the table has no rows or no target.
func (t Table) Target() *mat.VecDense {
	if !t.HasTarget() || t.rows == 0 {
		return nil
	}
	return mat.NewVecDense(t.rows, t.TargetValues())
}
