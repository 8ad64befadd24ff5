package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ReadCSV reads a header row followed by one sample per row. Columns named in
// targetLabels form the target, every other column is a numeric feature. A
// single non-numeric target column is mapped to class indices in sorted
// class-name order.
func ReadCSV(in io.Reader, targetLabels []string) (*Set, error) {
	if len(targetLabels) == 0 {
		return nil, errors.New("at least one target label is required")
	}
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	isTarget := make(map[string]bool, len(targetLabels))
	for _, label := range targetLabels {
		isTarget[strings.TrimSpace(label)] = true
	}
	var featureIdx, targetIdx []int
	set := &Set{}
	for i, field := range header {
		field = strings.TrimSpace(field)
		if isTarget[field] {
			targetIdx = append(targetIdx, i)
			set.TargetLabels = append(set.TargetLabels, field)
			continue
		}
		featureIdx = append(featureIdx, i)
		set.FeatureLabels = append(set.FeatureLabels, field)
	}
	if len(targetIdx) != len(isTarget) {
		return nil, fmt.Errorf("csv header %v does not contain every target label %v", header, targetLabels)
	}
	if len(featureIdx) == 0 {
		return nil, errors.New("csv has no feature columns")
	}

	var records [][]string
	rowIndex := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", rowIndex, err)
		}
		rowIndex++
		if blankRecord(record) {
			continue
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("csv row %d has %d fields, header has %d", rowIndex-1, len(record), len(header))
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, errors.New("csv has no rows")
	}

	features := mat.NewDense(len(records), len(featureIdx), nil)
	for r, record := range records {
		for c, idx := range featureIdx {
			value, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				return nil, fmt.Errorf("parse csv row %d column %q: %w", r+1, header[idx], err)
			}
			features.Set(r, c, value)
		}
	}
	set.Features = features

	target, classes, err := parseTarget(records, targetIdx)
	if err != nil {
		return nil, err
	}
	set.Target = target
	set.TargetClasses = classes
	return set, nil
}

// LoadCSV reads the csv file at path.
func LoadCSV(path string, targetLabels []string) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("csv path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, targetLabels)
}

func parseTarget(records [][]string, targetIdx []int) (*mat.Dense, []string, error) {
	target := mat.NewDense(len(records), len(targetIdx), nil)
	numeric := true
	for r, record := range records {
		for c, idx := range targetIdx {
			value, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				numeric = false
				break
			}
			target.Set(r, c, value)
		}
		if !numeric {
			break
		}
	}
	if numeric {
		return target, nil, nil
	}
	if len(targetIdx) != 1 {
		return nil, nil, errors.New("categorical targets are supported for a single target column only")
	}

	seen := make(map[string]struct{})
	for _, record := range records {
		seen[strings.TrimSpace(record[targetIdx[0]])] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for class := range seen {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	index := make(map[string]int, len(classes))
	for i, class := range classes {
		index[class] = i
	}
	column := mat.NewDense(len(records), 1, nil)
	for r, record := range records {
		column.Set(r, 0, float64(index[strings.TrimSpace(record[targetIdx[0]])]))
	}
	return column, classes, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// OneHot expands a column of class indices into one binary column per class.
// classes of 0 uses the largest index + 1.
func OneHot(column mat.Vector, classes int) (*mat.Dense, error) {
	if column == nil || column.Len() == 0 {
		return nil, errors.New("column is empty")
	}
	if classes <= 0 {
		for i := 0; i < column.Len(); i++ {
			classes = max(classes, int(column.AtVec(i))+1)
		}
	}
	out := mat.NewDense(column.Len(), classes, nil)
	for i := 0; i < column.Len(); i++ {
		value := column.AtVec(i)
		class := int(value)
		if float64(class) != value || class < 0 || class >= classes {
			return nil, fmt.Errorf("row %d: %v is not a class index below %d", i, value, classes)
		}
		out.Set(i, class, 1)
	}
	return out, nil
}

// ArgMax collapses each row to the index of its largest value.
func ArgMax(m mat.Matrix) *mat.VecDense {
	rows, cols := m.Dims()
	out := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		best := 0
		for j := 1; j < cols; j++ {
			if m.At(i, j) > m.At(i, best) {
				best = j
			}
		}
		out.SetVec(i, float64(best))
	}
	return out
}

// OneHotTarget replaces a single-column class target with its one-hot
// expansion, renaming the target labels after the classes.
func (s *Set) OneHotTarget() error {
	_, cols := s.Target.Dims()
	if cols != 1 {
		return fmt.Errorf("one-hot needs a single target column, got %d", cols)
	}
	classes := len(s.TargetClasses)
	expanded, err := OneHot(s.Target.ColView(0), classes)
	if err != nil {
		return err
	}
	_, width := expanded.Dims()
	labels := make([]string, width)
	for i := range labels {
		if i < len(s.TargetClasses) {
			labels[i] = s.TargetClasses[i]
		} else {
			labels[i] = fmt.Sprintf("%s_%d", s.TargetLabels[0], i)
		}
	}
	s.Target = expanded
	s.TargetLabels = labels
	return nil
}
