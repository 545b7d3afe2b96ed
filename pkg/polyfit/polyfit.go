// Package polyfit provides least-squares polynomial fitting over a channel
// axis. It backs the amplitude baseline test and the Savitzky-Golay smoother.
package polyfit

import (
	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Fit returns the coefficients (lowest order first) of the order-n polynomial
// that minimises the squared error against (xs, ys). The system must be at
// least determined: len(xs) >= order+1.
func Fit(xs, ys []float64, order int) ([]float64, error) {
	if order < 0 {
		return nil, pkgerrors.Errorf("polynomial order %d is negative", order)
	}
	if len(xs) != len(ys) {
		return nil, pkgerrors.Errorf("mismatched sample lengths %d and %d", len(xs), len(ys))
	}
	if len(xs) < order+1 {
		return nil, pkgerrors.Errorf("%d samples cannot constrain an order-%d polynomial", len(xs), order)
	}

	// Vandermonde design matrix solved through QR.
	a := mat.NewDense(len(xs), order+1, nil)
	for i, x := range xs {
		v := 1.0
		for j := 0; j <= order; j++ {
			a.Set(i, j, v)
			v *= x
		}
	}
	b := mat.NewDense(len(ys), 1, nil)
	for i, y := range ys {
		b.Set(i, 0, y)
	}

	var qr mat.QR
	qr.Factorize(a)

	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, b); err != nil {
		return nil, pkgerrors.Wrap(err, "polynomial fit is singular")
	}

	coeffs := make([]float64, order+1)
	for j := range coeffs {
		coeffs[j] = sol.At(j, 0)
	}
	return coeffs, nil
}

// Eval evaluates a polynomial with coefficients as returned by Fit.
func Eval(coeffs []float64, x float64) float64 {
	// Horner, highest order first.
	y := 0.0
	for j := len(coeffs) - 1; j >= 0; j-- {
		y = y*x + coeffs[j]
	}
	return y
}
