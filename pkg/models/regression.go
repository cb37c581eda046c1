package models

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewPoints is returned when a regression is fitted on fewer than two points.
var ErrTooFewPoints = errors.New("at least 2 points are required")

// rcond is the relative singular value cutoff below which a feature
// direction is treated as rank deficient.
const rcond = 1e-10

// Regression is a fitted linear model over the features [year, anomaly]:
//
//	value = Intercept + Coefficients[0]*year + Coefficients[1]*anomaly
//
// A Regression is immutable once fitted.
type Regression struct {
	Intercept    float64    `json:"intercept"`
	Coefficients [2]float64 `json:"coefficients"`

	// N is the number of training points.
	N int `json:"n"`
	// Rank is the numerical rank of the centred feature matrix (0-2).
	Rank int `json:"rank"`
	// ResidualStdDev is the standard deviation of the training residuals.
	ResidualStdDev float64 `json:"residual_std_dev"`
}

// Predict evaluates the model at [year, anomaly].
func (r Regression) Predict(year int, anomaly float64) float64 {
	return r.Intercept + r.Coefficients[0]*float64(year) + r.Coefficients[1]*anomaly
}

// Fit computes the least-squares fit of y on x with an intercept.
//
// Features are centred and solved through a thin SVD, taking the minimum-norm
// solution when the feature matrix is rank deficient. Two points, or years whose
// anomalies are exactly linear in the year, still produce a deterministic model.
// With full rank the result equals ordinary least squares.
func Fit(x [][2]float64, y []float64) (Regression, error) {
	n := len(y)
	if len(x) != n {
		return Regression{}, fmt.Errorf("feature rows (%d) != targets (%d)", len(x), n)
	}
	if n < 2 {
		return Regression{}, ErrTooFewPoints
	}

	col0 := make([]float64, n)
	col1 := make([]float64, n)
	for i, row := range x {
		col0[i], col1[i] = row[0], row[1]
	}
	mean0 := stat.Mean(col0, nil)
	mean1 := stat.Mean(col1, nil)
	meanY := stat.Mean(y, nil)

	a := mat.NewDense(n, 2, nil)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, 0, col0[i]-mean0)
		a.Set(i, 1, col1[i]-mean1)
		b.SetVec(i, y[i]-meanY)
	}

	var beta [2]float64
	rank := 0

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return Regression{}, errors.New("svd factorization failed")
	}
	if svd.Values(nil)[0] > 0 {
		rank = svd.Rank(rcond)
	}
	if rank > 0 {
		var sol mat.VecDense
		svd.SolveVecTo(&sol, b, rank)
		beta[0], beta[1] = sol.AtVec(0), sol.AtVec(1)
	}

	reg := Regression{
		Intercept:    meanY - beta[0]*mean0 - beta[1]*mean1,
		Coefficients: beta,
		N:            n,
		Rank:         rank,
	}

	var ssr float64
	for i := range y {
		r := y[i] - (reg.Intercept + beta[0]*x[i][0] + beta[1]*x[i][1])
		ssr += r * r
	}
	dof := n - rank - 1
	if dof < 1 {
		dof = 1
	}
	reg.ResidualStdDev = math.Sqrt(ssr / float64(dof))

	return reg, nil
}
