package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Set pairs a feature matrix with its target, one sample per row.
type Set struct {
	Features      *mat.Dense
	Target        *mat.Dense
	FeatureLabels []string
	TargetLabels  []string
	// TargetClasses names the class index of a categorical target column.
	TargetClasses []string
}

// Batch is a dataset split for training. Mini holds the training rows cut
// into mini-batches of Size rows; the last one may be shorter.
type Batch struct {
	Size       int
	Train      *Set
	Validation *Set
	Test       *Set
	Mini       []*Set
}

// FromMatrix copies features and target into a set with generated c<i> labels.
func FromMatrix(features, target mat.Matrix) (*Set, error) {
	if features == nil || target == nil {
		return nil, errors.New("features and target are required")
	}
	rows, featureCols := features.Dims()
	targetRows, targetCols := target.Dims()
	if rows != targetRows {
		return nil, fmt.Errorf("features have %d rows, target has %d", rows, targetRows)
	}
	set := &Set{
		Features:      mat.DenseCopyOf(features),
		Target:        mat.DenseCopyOf(target),
		FeatureLabels: make([]string, featureCols),
		TargetLabels:  make([]string, targetCols),
	}
	for i := range set.FeatureLabels {
		set.FeatureLabels[i] = fmt.Sprintf("c%d", i)
	}
	for i := range set.TargetLabels {
		set.TargetLabels[i] = fmt.Sprintf("c%d", featureCols+i)
	}
	return set, nil
}

func (s *Set) Rows() int {
	if s == nil || s.Features == nil {
		return 0
	}
	rows, _ := s.Features.Dims()
	return rows
}

// Part returns rows [offset, offset+size) as a new set.
func (s *Set) Part(offset, size int) *Set {
	part := &Set{
		FeatureLabels: s.FeatureLabels,
		TargetLabels:  s.TargetLabels,
		TargetClasses: s.TargetClasses,
	}
	if size <= 0 {
		return part
	}
	_, featureCols := s.Features.Dims()
	_, targetCols := s.Target.Dims()
	part.Features = mat.DenseCopyOf(s.Features.Slice(offset, offset+size, 0, featureCols))
	part.Target = mat.DenseCopyOf(s.Target.Slice(offset, offset+size, 0, targetCols))
	return part
}

// Shuffle permutes the rows of features and target together.
func (s *Set) Shuffle(rng *rand.Rand) {
	rows := s.Rows()
	rng.Shuffle(rows, func(i, j int) {
		swapRows(s.Features, i, j)
		swapRows(s.Target, i, j)
	})
}

func swapRows(m *mat.Dense, i, j int) {
	a := mat.Row(nil, i, m)
	b := mat.Row(nil, j, m)
	m.SetRow(i, b)
	m.SetRow(j, a)
}

// Normalize rescales every feature column to zero mean and unit standard
// deviation and returns the mean and deviation used. Constant columns are
// only centred.
func (s *Set) Normalize() (means, deviations []float64) {
	rows, cols := s.Features.Dims()
	means = make([]float64, cols)
	deviations = make([]float64, cols)
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(column, j, s.Features)
		means[j], deviations[j] = stat.MeanStdDev(column, nil)
		if rows < 2 || math.IsNaN(deviations[j]) {
			deviations[j] = 0
		}
		s.applyColumn(j, column, means[j], deviations[j])
	}
	return means, deviations
}

// Standardize applies a mean and deviation computed on another set, so
// validation and test rows share the training scale.
func (s *Set) Standardize(means, deviations []float64) error {
	rows, cols := s.Features.Dims()
	if len(means) != cols || len(deviations) != cols {
		return fmt.Errorf("scale has %d/%d columns, set has %d", len(means), len(deviations), cols)
	}
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(column, j, s.Features)
		s.applyColumn(j, column, means[j], deviations[j])
	}
	return nil
}

func (s *Set) applyColumn(j int, column []float64, mean, deviation float64) {
	floats.AddConst(-mean, column)
	if deviation > 0 {
		floats.Scale(1/deviation, column)
	}
	s.Features.SetCol(j, column)
}

// Split cuts the set into train, validation and test parts by percentage in
// row order and slices the training part into mini-batches. A batchSize of 0
// or larger than the training part yields one mini-batch.
func Split(set *Set, batchSize, trainPct, validationPct, testPct int) (*Batch, error) {
	if set == nil || set.Rows() == 0 {
		return nil, errors.New("dataset is empty")
	}
	if trainPct <= 0 || validationPct < 0 || testPct < 0 || trainPct+validationPct+testPct > 100 {
		return nil, fmt.Errorf("invalid split %d/%d/%d", trainPct, validationPct, testPct)
	}
	if batchSize < 0 {
		return nil, fmt.Errorf("batch size must be >= 0, got %d", batchSize)
	}

	rows := set.Rows()
	trainRows := rows * trainPct / 100
	if trainRows == 0 {
		trainRows = 1
	}
	validationRows := min(rows*validationPct/100, rows-trainRows)
	testRows := min(rows*testPct/100, rows-trainRows-validationRows)

	batch := &Batch{
		Train:      set.Part(0, trainRows),
		Validation: set.Part(trainRows, validationRows),
		Test:       set.Part(trainRows+validationRows, testRows),
	}
	batch.Size = batchSize
	if batchSize == 0 || batchSize > trainRows {
		batch.Size = trainRows
	}
	for offset := 0; offset < trainRows; offset += batch.Size {
		batch.Mini = append(batch.Mini, batch.Train.Part(offset, min(batch.Size, trainRows-offset)))
	}
	return batch, nil
}
