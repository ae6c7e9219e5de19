package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/immoeliza/pricetune/pkg/errors"
)

// ReadCSV loads a header-first CSV file. Every non-target column becomes a feature.
// Empty cells (and "nan") read as NaN, "true"/"false" read as 1/0. Any other
// non-numeric cell is rejected: categorical encoding happens upstream.
// An empty target reads the file as prediction input without a target column.
func ReadCSV(path, target string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	t, err := ParseCSV(f, target)
	if err != nil {
		return Table{}, errors.Wrapf(err, "read %s", path)
	}
	return t, nil
}

// ParseCSV is ReadCSV over an arbitrary reader.
func ParseCSV(r io.Reader, target string) (Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return Table{}, errors.WithStack(errors.ErrEmptyData)
	}
	if err != nil {
		return Table{}, errors.Wrap(err, "read header")
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	targetIdx := -1
	var names []string
	var featIdx []int
	for i, h := range header {
		h = strings.TrimSpace(h)
		header[i] = h
		if target != "" && h == target {
			targetIdx = i
			continue
		}
		names = append(names, h)
		featIdx = append(featIdx, i)
	}
	if target != "" && targetIdx < 0 {
		return Table{}, errors.NewMissingColumnsError("selection", []string{target})
	}

	cols := make([][]float64, len(names))
	var y []float64
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, errors.Wrapf(err, "read line %d", line+1)
		}
		line++
		for j, i := range featIdx {
			v, err := parseCell(rec[i])
			if err != nil {
				return Table{}, errors.NewValidationError(names[j], "non-numeric cell on line "+strconv.Itoa(line), rec[i])
			}
			cols[j] = append(cols[j], v)
		}
		if targetIdx >= 0 {
			v, err := parseCell(rec[targetIdx])
			if err != nil {
				return Table{}, errors.NewValidationError(target, "non-numeric cell on line "+strconv.Itoa(line), rec[targetIdx])
			}
			y = append(y, v)
		}
	}
	if target != "" && y == nil {
		y = []float64{}
	}
	for j := range cols {
		if cols[j] == nil {
			cols[j] = []float64{}
		}
	}
	return New(names, cols, target, y)
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "null":
		return math.NaN(), nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
