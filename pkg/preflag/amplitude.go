package preflag

import (
	"math"
	"math/cmplx"

	"solflag/pkg/polyfit"
	"solflag/pkg/solutions"
)

// Fixed policy cuts on the amplitude residual statistics. These are not
// tunable.
const (
	amplitudeCenterLimit = 0.1
	amplitudeSpreadLimit = 0.5
)

// DefaultAmplitudePolyOrder is the baseline polynomial order.
const DefaultAmplitudePolyOrder = 5

// BadResidualAmplitude fits an order-order polynomial baseline to the gain
// amplitudes over channel index and reports whether the residual statistics
// mark the cell as bad: |center| above 0.1 or spread above 0.5.
//
// When robust, center is the median residual and spread the median of the
// |residual|-center deviations; otherwise mean and standard deviation. Cells
// with too few finite samples to constrain the baseline are reported bad.
func BadResidualAmplitude(gains []complex128, robust bool, order int) bool {
	amplitudes := make([]float64, len(gains))
	for i, g := range gains {
		amplitudes[i] = cmplx.Abs(g)
	}

	var xs, ys []float64
	for i, a := range amplitudes {
		if isFinite(a) {
			xs = append(xs, float64(i))
			ys = append(ys, a)
		}
	}

	coeffs, err := polyfit.Fit(xs, ys, order)
	if err != nil {
		// No baseline can be established for this cell.
		return true
	}

	residuals := make([]float64, len(amplitudes))
	for i, a := range amplitudes {
		residuals[i] = a - polyfit.Eval(coeffs, float64(i))
	}
	valid := finiteVals(residuals)

	var center, spread float64
	if robust {
		center = median(valid)
		var devs []float64
		for _, r := range residuals {
			d := math.Abs(r) - center
			if isFinite(d) {
				devs = append(devs, d)
			}
		}
		spread = median(devs)
	} else {
		center, spread = meanStd(valid)
	}

	return math.Abs(center) > amplitudeCenterLimit || spread > amplitudeSpreadLimit
}

// AnyFinite reports whether any gain in the slice is usable.
func AnyFinite(gains []complex128) bool {
	return solutions.CountFinite(gains) > 0
}
