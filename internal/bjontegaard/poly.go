package bjontegaard

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// polynomial holds coefficients in ascending order of power.
type polynomial []float64

var errFactorize = errors.New("least-squares factorization failed")

// machEps is the float64 spacing at 1.0.
var machEps = math.Nextafter(1, 2) - 1

// polyfit returns the least-squares polynomial of the given degree through
// (x, y). Columns of the Vandermonde matrix are scaled to unit norm and the
// system is solved through an SVD with singular values below n*eps (relative
// to the largest) discarded, so rank-deficient inputs yield the minimum-norm
// fit instead of failing.
func polyfit(x, y []float64, degree int) (polynomial, error) {
	n, m := len(x), degree+1

	a := mat.NewDense(n, m, nil)
	for i, xi := range x {
		v := 1.0
		for j := 0; j < m; j++ {
			a.Set(i, j, v)
			v *= xi
		}
	}

	scale := make([]float64, m)
	col := make([]float64, n)
	for j := 0; j < m; j++ {
		mat.Col(col, j, a)
		scale[j] = floats.Norm(col, 2)
		if scale[j] == 0 {
			scale[j] = 1
		}
		floats.Scale(1/scale[j], col)
		a.SetCol(j, col)
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errFactorize
	}
	rank := svd.Rank(float64(n) * machEps)
	if rank == 0 {
		return make(polynomial, m), nil
	}

	var c mat.VecDense
	svd.SolveVecTo(&c, mat.NewVecDense(n, append([]float64(nil), y...)), rank)

	coef := make(polynomial, m)
	for j := range coef {
		coef[j] = c.AtVec(j) / scale[j]
	}
	return coef, nil
}

// eval evaluates p at x using Horner's rule.
func (p polynomial) eval(x float64) float64 {
	var v float64
	for i := len(p) - 1; i >= 0; i-- {
		v = v*x + p[i]
	}
	return v
}

// antiderivative returns the indefinite integral of p with zero constant.
func (p polynomial) antiderivative() polynomial {
	out := make(polynomial, len(p)+1)
	for i, c := range p {
		out[i+1] = c / float64(i+1)
	}
	return out
}

// integrate returns the definite integral of p over [lo, hi].
func (p polynomial) integrate(lo, hi float64) float64 {
	ap := p.antiderivative()
	return ap.eval(hi) - ap.eval(lo)
}
