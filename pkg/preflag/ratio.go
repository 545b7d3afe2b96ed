package preflag

import (
	"math/cmplx"
)

// ratioTolerance is the half-width of the accepted XX/YY mean-amplitude band
// around unity.
const ratioTolerance = 0.1

func meanFiniteAmplitude(gains []complex128) float64 {
	sum, n := 0.0, 0
	for _, g := range gains {
		a := cmplx.Abs(g)
		if isFinite(a) {
			sum += a
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// BadXXYYAmplitudeRatio compares the mean amplitudes of the two diagonal
// polarisations of one antenna. The diagonal gains of a healthy antenna track
// each other, so a ratio outside (1-tol, 1+tol) -- or one that cannot be
// formed at all -- condemns the whole antenna, not just one polarisation.
// Gains are expected to be normalised by the reference antenna.
func BadXXYYAmplitudeRatio(xxGains, yyGains []complex128) bool {
	meanXX := meanFiniteAmplitude(xxGains)
	meanYY := meanFiniteAmplitude(yyGains)
	if meanYY == 0 {
		return true
	}

	ratio := meanXX / meanYY
	if !isFinite(ratio) {
		return true
	}
	return ratio <= 1-ratioTolerance || ratio >= 1+ratioTolerance
}
