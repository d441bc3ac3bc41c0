package learn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrEmptyInput is returned when an estimator is fit on no samples.
var ErrEmptyInput = errors.New("learn: empty input")

// StandardScaler centers features on their mean and scales them to unit
// variance. Features with zero variance keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit computes per-feature population mean and standard deviation.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return ErrEmptyInput
	}
	dim := len(X[0])
	s.Mean = make([]float64, dim)
	s.Scale = make([]float64, dim)
	col := make([]float64, len(X))
	for j := 0; j < dim; j++ {
		for i, row := range X {
			if len(row) != dim {
				return fmt.Errorf("learn: row %d has %d features, want %d", i, len(row), dim)
			}
			col[i] = row[j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		std := math.Sqrt(variance)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Scale[j] = std
	}
	return nil
}

// Fitted reports whether the scaler holds parameters.
func (s *StandardScaler) Fitted() bool { return len(s.Mean) > 0 && len(s.Mean) == len(s.Scale) }

// Transform scales a single sample.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if !s.Fitted() {
		return nil, errors.New("learn: scaler not fitted")
	}
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("learn: sample has %d features, want %d", len(x), len(s.Mean))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

// TransformAll scales every sample of X.
func (s *StandardScaler) TransformAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		t, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
