// Package preflag implements the per-cell tests that decide which channels
// and antennas of a bandpass solution set carry unusable gains: phase-outlier
// detection against an unwrapped delay ramp, a flagged-fraction threshold, a
// polynomial amplitude-residual test and an XX/YY amplitude-ratio test.
package preflag

import (
	"math"
	"math/cmplx"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"

	"solflag/pkg/solutions"
)

// PhaseOutlierResult carries everything the orchestrator and the diagnostic
// plotter need from one phase-outlier pass over a (time, antenna, pol) cell.
type PhaseOutlierResult struct {
	// Gains are the input complex gains, channel index as the x axis.
	Gains []complex128
	// InitModelGains is the seed ramp model used to unwrap the gains.
	InitModelGains []complex128
	// FitModelGains is the refined ramp fitted against the unwrapped phases.
	FitModelGains []complex128

	InitGradient float64
	InitOffset   float64
	FitGradient  float64
	FitOffset    float64

	// OutlierMask is true for channels whose residual phase is an outlier.
	OutlierMask []bool

	// ResidualCenter and ResidualSpread are the statistics the cut was taken
	// against: mean/std, or median/MAD when robust statistics were requested.
	ResidualCenter float64
	ResidualSpread float64
	FlagCut        float64
}

// rampGain evaluates the unit-amplitude phase ramp exp(i(2*pi*gradient*x + offset)).
func rampGain(x, gradient, offset float64) complex128 {
	return cmplx.Exp(complex(0, 2*math.Pi*gradient*x+offset))
}

func rampGains(n int, gradient, offset float64) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		out[i] = rampGain(float64(i), gradient, offset)
	}
	return out
}

// DetectPhaseOutliers searches one cell's gains for channels with outlier
// phases. Bandpass solutions typically carry a phase slope across the band (a
// delay); raw phases wrap modulo 2*pi, so the slope is first estimated and
// divided out before per-channel statistics mean anything.
//
// The seed offset is the phase of the first finite gain. The seed gradient is
// the median of the finite channel-to-channel phase differences below pi/2 in
// magnitude; larger jumps are wraps or gross outliers and would drag the seed
// out of the right ballpark. The gains are divided by the seed ramp, a
// two-parameter least-squares refit is run on the unwrapped phases from (0, 0),
// and channels are cut on their residual phase: a channel survives only if its
// residual is finite and strictly within flagCut spreads of the center.
//
// Returns ErrFitConvergence (wrapped) when the refit cannot be run or does not
// converge. Input gains work best when already normalised by a reference
// antenna.
func DetectPhaseOutliers(gains []complex128, flagCut float64, robust bool) (*PhaseOutlierResult, error) {
	n := len(gains)

	angles := make([]float64, n)
	for i, g := range gains {
		angles[i] = cmplx.Phase(g) // NaN gains stay NaN
	}

	initOffset := math.NaN()
	for i, g := range gains {
		if solutions.IsFinite(g) {
			initOffset = angles[i]
			break
		}
	}
	if !isFinite(initOffset) {
		return nil, pkgerrors.Wrap(ErrFitConvergence, "no finite gains to seed the ramp")
	}

	var gradSamples []float64
	for i := 1; i < n; i++ {
		d := angles[i] - angles[i-1]
		if isFinite(d) && math.Abs(d) < math.Pi/2 {
			gradSamples = append(gradSamples, d)
		}
	}
	if len(gradSamples) == 0 {
		return nil, pkgerrors.Wrap(ErrFitConvergence, "no usable channel-to-channel phase differences")
	}
	initGradient := median(gradSamples) / (2 * math.Pi)

	initModel := rampGains(n, initGradient, initOffset)

	unwrapped := make([]complex128, n)
	for i := range gains {
		unwrapped[i] = gains[i] / initModel[i]
	}

	// Collect the finite samples the refit is constrained against.
	var fitXs, fitPhases []float64
	for i, u := range unwrapped {
		if solutions.IsFinite(u) {
			fitXs = append(fitXs, float64(i))
			fitPhases = append(fitPhases, cmplx.Phase(u))
		}
	}
	if len(fitPhases) < 2 {
		return nil, pkgerrors.Wrap(ErrFitConvergence, "too few finite unwrapped gains")
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			ssr := 0.0
			for k, x := range fitXs {
				r := fitPhases[k] - cmplx.Phase(rampGain(x, p[0], p[1]))
				ssr += r * r
			}
			return ssr
		},
	}
	result, err := optimize.Minimize(problem, []float64{0, 0}, nil, &optimize.NelderMead{})
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrFitConvergence, "minimisation failed: %v", err)
	}
	if err := result.Status.Err(); err != nil {
		return nil, pkgerrors.Wrapf(ErrFitConvergence, "minimisation ended with status %v", result.Status)
	}
	fitGradient, fitOffset := result.X[0], result.X[1]

	fitModel := rampGains(n, fitGradient, fitOffset)

	residuals := make([]float64, n)
	for i := range unwrapped {
		residuals[i] = cmplx.Phase(unwrapped[i] / fitModel[i])
	}

	valid := finiteVals(residuals)
	var center, spread float64
	if robust {
		center, spread = medianMAD(valid)
	} else {
		center, spread = meanStd(valid)
	}

	mask := make([]bool, n)
	for i, r := range residuals {
		mask[i] = !isFinite(r) || math.Abs(r-center) >= flagCut*spread
	}

	return &PhaseOutlierResult{
		Gains:          gains,
		InitModelGains: initModel,
		FitModelGains:  fitModel,
		InitGradient:   initGradient,
		InitOffset:     initOffset,
		FitGradient:    fitGradient,
		FitOffset:      fitOffset,
		OutlierMask:    mask,
		ResidualCenter: center,
		ResidualSpread: spread,
		FlagCut:        flagCut,
	}, nil
}
