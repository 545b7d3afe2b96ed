// Package smoother applies Savitzky-Golay smoothing to bandpass complex
// gains. It is the optional collaborator the flagging orchestrator hands a
// time solution to after the preflagged artifact is written; flagged (NaN)
// channels stay flagged.
package smoother

import (
	"math"

	pkgerrors "github.com/pkg/errors"

	"solflag/pkg/polyfit"
	"solflag/pkg/solutions"
)

// Defaults matching the bandpass smoothing configuration used upstream.
const (
	DefaultWindow = 16
	DefaultOrder  = 4
)

// SavGol smooths a series by fitting a polynomial of the given order inside a
// sliding window and taking its value at the window center.
type SavGol struct {
	Window int
	Order  int
}

// New returns a Savitzky-Golay smoother. Non-positive arguments fall back to
// the defaults.
func New(window, order int) *SavGol {
	if window <= 0 {
		window = DefaultWindow
	}
	if order <= 0 {
		order = DefaultOrder
	}
	return &SavGol{Window: window, Order: order}
}

// SmoothSeries smooths one real-valued channel series. Windows without enough
// finite samples to constrain the polynomial produce NaN, so an all-NaN input
// stays all-NaN. Channels that are NaN on input stay NaN on output.
func (s *SavGol) SmoothSeries(data []float64) []float64 {
	n := len(data)
	out := make([]float64, n)

	half := s.Window / 2
	for i := 0; i < n; i++ {
		if math.IsNaN(data[i]) || math.IsInf(data[i], 0) {
			out[i] = math.NaN()
			continue
		}

		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > n-1 {
			hi = n - 1
		}

		var xs, ys []float64
		for j := lo; j <= hi; j++ {
			if !math.IsNaN(data[j]) && !math.IsInf(data[j], 0) {
				xs = append(xs, float64(j-i))
				ys = append(ys, data[j])
			}
		}

		coeffs, err := polyfit.Fit(xs, ys, s.Order)
		if err != nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = polyfit.Eval(coeffs, 0)
	}
	return out
}

// Smooth smooths every (antenna, pol) channel series of one time solution,
// treating the real and imaginary parts independently. The returned slice has
// the same (nant, nchan, npol) shape as the input, which is not modified.
func (s *SavGol) Smooth(gains []complex128, nant, nchan, npol int) ([]complex128, error) {
	if len(gains) != nant*nchan*npol {
		return nil, pkgerrors.Wrapf(solutions.ErrShape,
			"time solution has %d gains, extents (%d, %d, %d) require %d",
			len(gains), nant, nchan, npol, nant*nchan*npol)
	}

	out := make([]complex128, len(gains))
	re := make([]float64, nchan)
	im := make([]float64, nchan)

	for ant := 0; ant < nant; ant++ {
		for pol := 0; pol < npol; pol++ {
			for ch := 0; ch < nchan; ch++ {
				g := gains[(ant*nchan+ch)*npol+pol]
				re[ch] = real(g)
				im[ch] = imag(g)
			}

			smoothRe := s.SmoothSeries(re)
			smoothIm := s.SmoothSeries(im)

			for ch := 0; ch < nchan; ch++ {
				out[(ant*nchan+ch)*npol+pol] = complex(smoothRe[ch], smoothIm[ch])
			}
		}
	}
	return out, nil
}

// DivideByRefAnt normalises one time solution by its reference antenna,
// element-wise per channel and polarisation. Returns a new slice.
func DivideByRefAnt(gains []complex128, nant, nchan, npol, refAnt int) ([]complex128, error) {
	if len(gains) != nant*nchan*npol {
		return nil, pkgerrors.Wrapf(solutions.ErrShape,
			"time solution has %d gains, extents (%d, %d, %d) require %d",
			len(gains), nant, nchan, npol, nant*nchan*npol)
	}
	if refAnt < 0 || refAnt >= nant {
		return nil, pkgerrors.Errorf("reference antenna %d out of range [0, %d)", refAnt, nant)
	}

	out := make([]complex128, len(gains))
	for ant := 0; ant < nant; ant++ {
		for ch := 0; ch < nchan; ch++ {
			for pol := 0; pol < npol; pol++ {
				i := (ant*nchan+ch)*npol + pol
				ref := gains[(refAnt*nchan+ch)*npol+pol]
				out[i] = gains[i] / ref
			}
		}
	}
	return out, nil
}
