package learn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// maxDLoss bounds the loss gradient of a single sample.
const maxDLoss = 1e12

// SGDRegressor is a linear model y = Coef·x + Intercept fit with squared
// loss, L2 penalty and an inverse-scaling learning rate
// eta = Eta0 / T^PowerT, where T counts the samples seen so far.
type SGDRegressor struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	T         float64   `json:"t"`
	Alpha     float64   `json:"alpha"`
	Eta0      float64   `json:"eta0"`
	PowerT    float64   `json:"power_t"`
}

// NewSGDRegressor returns an unfitted regressor with default hyper parameters.
func NewSGDRegressor() *SGDRegressor {
	return &SGDRegressor{T: 1, Alpha: 1e-4, Eta0: 0.01, PowerT: 0.25}
}

// Fitted reports whether the coefficients have been initialised.
func (r *SGDRegressor) Fitted() bool { return len(r.Coef) > 0 }

// Validate checks that the restored state is usable.
func (r *SGDRegressor) Validate() error {
	if !r.Fitted() {
		return fmt.Errorf("learn: regressor has no coefficients")
	}
	if r.T < 1 || r.Eta0 <= 0 || r.PowerT < 0 || r.Alpha < 0 {
		return fmt.Errorf("learn: invalid regressor hyper parameters")
	}
	for _, c := range append([]float64{r.Intercept}, r.Coef...) {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("learn: regressor has non-finite coefficients")
		}
	}
	return nil
}

func (r *SGDRegressor) ensureDim(dim int) error {
	if dim == 0 {
		return ErrEmptyInput
	}
	if !r.Fitted() {
		r.Coef = make([]float64, dim)
		return nil
	}
	if len(r.Coef) != dim {
		return fmt.Errorf("learn: sample has %d features, want %d", dim, len(r.Coef))
	}
	return nil
}

// PartialFit runs one pass of SGD over the given samples in order.
// The step of a single sample is capped so the update never overshoots
// that sample's target.
func (r *SGDRegressor) PartialFit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	if len(X) != len(y) {
		return fmt.Errorf("learn: %d samples but %d targets", len(X), len(y))
	}
	if err := r.ensureDim(len(X[0])); err != nil {
		return err
	}
	for i, x := range X {
		if len(x) != len(r.Coef) {
			return fmt.Errorf("learn: sample %d has %d features, want %d", i, len(x), len(r.Coef))
		}
		eta := r.Eta0 / math.Pow(r.T, r.PowerT)
		norm := floats.Dot(x, x) + 1
		if eta*norm > 1 {
			eta = 1 / norm
		}
		dloss := r.raw(x) - y[i]
		dloss = math.Max(-maxDLoss, math.Min(maxDLoss, dloss))

		floats.Scale(math.Max(0, 1-eta*r.Alpha), r.Coef)
		floats.AddScaled(r.Coef, -eta*dloss, x)
		r.Intercept -= eta * dloss
		r.T++
	}
	return nil
}

// FitBatch replaces the coefficients with the ridge regression solution over
// all samples. The intercept is not penalised.
func (r *SGDRegressor) FitBatch(X [][]float64, y []float64) error {
	n := len(X)
	if n == 0 {
		return ErrEmptyInput
	}
	if n != len(y) {
		return fmt.Errorf("learn: %d samples but %d targets", n, len(y))
	}
	d := len(X[0])
	if d == 0 {
		return ErrEmptyInput
	}

	means := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		for i, row := range X {
			if len(row) != d {
				return fmt.Errorf("learn: sample %d has %d features, want %d", i, len(row), d)
			}
			col[i] = row[j]
		}
		means[j] = stat.Mean(col, nil)
	}
	yMean := stat.Mean(y, nil)

	gram := mat.NewDense(d, d, nil)
	rhs := mat.NewVecDense(d, nil)
	xc := make([]float64, d)
	for i, row := range X {
		floats.SubTo(xc, row, means)
		for a := 0; a < d; a++ {
			rhs.SetVec(a, rhs.AtVec(a)+xc[a]*(y[i]-yMean))
			for b := 0; b < d; b++ {
				gram.Set(a, b, gram.At(a, b)+xc[a]*xc[b])
			}
		}
	}
	lambda := r.Alpha * float64(n)
	if lambda <= 0 {
		lambda = 1e-9
	}
	for a := 0; a < d; a++ {
		gram.Set(a, a, gram.At(a, a)+lambda)
	}

	var w mat.VecDense
	if err := w.SolveVec(gram, rhs); err != nil {
		return fmt.Errorf("learn: solve ridge system: %w", err)
	}
	coef := make([]float64, d)
	for j := range coef {
		coef[j] = w.AtVec(j)
	}
	r.Coef = coef
	r.Intercept = yMean - floats.Dot(coef, means)
	r.T = float64(n) + 1
	return nil
}

func (r *SGDRegressor) raw(x []float64) float64 {
	return floats.Dot(r.Coef, x) + r.Intercept
}

// Predict returns the model output for a single sample.
func (r *SGDRegressor) Predict(x []float64) (float64, error) {
	if !r.Fitted() {
		return 0, fmt.Errorf("learn: regressor not fitted")
	}
	if len(x) != len(r.Coef) {
		return 0, fmt.Errorf("learn: sample has %d features, want %d", len(x), len(r.Coef))
	}
	return r.raw(x), nil
}
