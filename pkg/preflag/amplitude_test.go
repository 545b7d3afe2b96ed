package preflag

import (
	"math"
	"math/cmplx"
	"testing"
)

// smoothAmplitudes builds gains whose amplitudes follow a gentle polynomial
// trend with a small wobble, well inside the residual cuts.
func smoothAmplitudes(n int) []complex128 {
	gains := make([]complex128, n)
	for i := range gains {
		x := float64(i)
		amp := 1.0 + 0.002*x - 1e-5*x*x + 0.02*math.Sin(0.8*x)
		gains[i] = cmplx.Rect(amp, 0.1*x)
	}
	return gains
}

// wildAmplitudes oscillates far too fast for the baseline polynomial to
// follow, leaving residuals well over the spread cut.
func wildAmplitudes(n int) []complex128 {
	gains := make([]complex128, n)
	for i := range gains {
		amp := 3.5 + 3.0*math.Sin(1.3*float64(i))
		gains[i] = complex(amp, 0)
	}
	return gains
}

func TestBadResidualAmplitudeClean(t *testing.T) {
	gains := smoothAmplitudes(64)
	gains[7] = cmplx.NaN()

	for _, robust := range []bool{false, true} {
		if BadResidualAmplitude(gains, robust, DefaultAmplitudePolyOrder) {
			t.Errorf("clean amplitudes flagged as bad (robust=%v)", robust)
		}
	}
}

func TestBadResidualAmplitudeWild(t *testing.T) {
	gains := wildAmplitudes(64)

	for _, robust := range []bool{false, true} {
		if !BadResidualAmplitude(gains, robust, DefaultAmplitudePolyOrder) {
			t.Errorf("wildly varying amplitudes not flagged (robust=%v)", robust)
		}
	}
}

func TestBadResidualAmplitudeUnderdetermined(t *testing.T) {
	// Three finite samples cannot constrain an order-5 baseline.
	gains := make([]complex128, 32)
	for i := range gains {
		gains[i] = cmplx.NaN()
	}
	gains[3] = 1
	gains[10] = 1
	gains[20] = 1

	if !BadResidualAmplitude(gains, false, DefaultAmplitudePolyOrder) {
		t.Error("a cell too sparse to fit a baseline should be bad")
	}
}

func TestBadResidualAmplitudeAllFlagged(t *testing.T) {
	gains := make([]complex128, 16)
	for i := range gains {
		gains[i] = cmplx.NaN()
	}

	if !BadResidualAmplitude(gains, true, DefaultAmplitudePolyOrder) {
		t.Error("a fully flagged cell should be bad")
	}
}

func TestAnyFinite(t *testing.T) {
	gains := []complex128{cmplx.NaN(), cmplx.NaN()}
	if AnyFinite(gains) {
		t.Error("AnyFinite on all-NaN gains = true")
	}
	gains[1] = 2i
	if !AnyFinite(gains) {
		t.Error("AnyFinite missed a finite gain")
	}
}
