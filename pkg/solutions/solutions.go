// Package solutions loads, mutates and saves AO-calibrate style binary
// gain-solution files. The bandpass is a dense row-major complex array of
// shape (nsol, nant, nchan, npol); a NaN entry marks a flagged solution.
package solutions

import (
	"math"
	"math/cmplx"

	pkgerrors "github.com/pkg/errors"
)

// Polarisation indices within a solution cell.
const (
	PolXX = 0
	PolXY = 1
	PolYX = 2
	PolYY = 3
)

// PolName maps a polarisation index to its conventional name.
func PolName(pol int) string {
	switch pol {
	case PolXX:
		return "XX"
	case PolXY:
		return "XY"
	case PolYX:
		return "YX"
	case PolYY:
		return "YY"
	}
	return "??"
}

// flagged is the value written into the bandpass for a flagged solution.
// Arithmetic against it propagates NaN rather than raising.
var flagged = complex(math.NaN(), math.NaN())

// GainSolutionSet is a loaded set of bandpass gain solutions. The Bandpass
// slice is owned exclusively by whoever holds the set; the flagging stages
// mutate it in place and never change its shape.
type GainSolutionSet struct {
	// Path the set was loaded from, if any.
	Path string

	NSol  int
	NAnt  int
	NChan int
	NPol  int

	// Bandpass holds NSol*NAnt*NChan*NPol gains in row-major
	// (time, antenna, channel, polarisation) order.
	Bandpass []complex128
}

// New returns an all-flagged solution set of the given extents.
func New(nsol, nant, nchan, npol int) *GainSolutionSet {
	s := &GainSolutionSet{
		NSol:     nsol,
		NAnt:     nant,
		NChan:    nchan,
		NPol:     npol,
		Bandpass: make([]complex128, nsol*nant*nchan*npol),
	}
	for i := range s.Bandpass {
		s.Bandpass[i] = flagged
	}
	return s
}

// Validate checks that the extents are positive and agree with the payload
// length. Wraps ErrShape otherwise.
func (s *GainSolutionSet) Validate() error {
	if s.NSol <= 0 || s.NAnt <= 0 || s.NChan <= 0 || s.NPol <= 0 {
		return pkgerrors.Wrapf(ErrShape, "non-positive extents (%d, %d, %d, %d)",
			s.NSol, s.NAnt, s.NChan, s.NPol)
	}
	if want := s.NSol * s.NAnt * s.NChan * s.NPol; len(s.Bandpass) != want {
		return pkgerrors.Wrapf(ErrShape, "bandpass has %d gains, extents (%d, %d, %d, %d) require %d",
			len(s.Bandpass), s.NSol, s.NAnt, s.NChan, s.NPol, want)
	}
	return nil
}

func (s *GainSolutionSet) index(t, ant, ch, pol int) int {
	return ((t*s.NAnt+ant)*s.NChan+ch)*s.NPol + pol
}

// Gain returns the gain for a single (time, antenna, channel, pol) entry.
func (s *GainSolutionSet) Gain(t, ant, ch, pol int) complex128 {
	return s.Bandpass[s.index(t, ant, ch, pol)]
}

// CellGains copies the per-channel gains of one (time, antenna, pol) cell.
// Analysis runs on copies; mutation goes through the Blank methods so the
// bandpass has a single writer path.
func (s *GainSolutionSet) CellGains(t, ant, pol int) []complex128 {
	out := make([]complex128, s.NChan)
	for ch := 0; ch < s.NChan; ch++ {
		out[ch] = s.Bandpass[s.index(t, ant, ch, pol)]
	}
	return out
}

// BlankChannel flags a single channel of a cell.
func (s *GainSolutionSet) BlankChannel(t, ant, ch, pol int) {
	s.Bandpass[s.index(t, ant, ch, pol)] = flagged
}

// BlankCell flags the entire channel range of a (time, antenna, pol) cell.
func (s *GainSolutionSet) BlankCell(t, ant, pol int) {
	for ch := 0; ch < s.NChan; ch++ {
		s.Bandpass[s.index(t, ant, ch, pol)] = flagged
	}
}

// BlankAntenna flags every channel and polarisation of an antenna for one
// time solution.
func (s *GainSolutionSet) BlankAntenna(t, ant int) {
	for ch := 0; ch < s.NChan; ch++ {
		for pol := 0; pol < s.NPol; pol++ {
			s.Bandpass[s.index(t, ant, ch, pol)] = flagged
		}
	}
}

// TimeGains copies the (nant, nchan, npol) block for one time solution.
func (s *GainSolutionSet) TimeGains(t int) []complex128 {
	n := s.NAnt * s.NChan * s.NPol
	out := make([]complex128, n)
	copy(out, s.Bandpass[t*n:(t+1)*n])
	return out
}

// SetTimeGains overwrites the block for one time solution.
func (s *GainSolutionSet) SetTimeGains(t int, gains []complex128) error {
	n := s.NAnt * s.NChan * s.NPol
	if len(gains) != n {
		return pkgerrors.Wrapf(ErrShape, "time solution needs %d gains, got %d", n, len(gains))
	}
	copy(s.Bandpass[t*n:(t+1)*n], gains)
	return nil
}

// FiniteFraction reports the fraction of gains that are finite.
func (s *GainSolutionSet) FiniteFraction() float64 {
	if len(s.Bandpass) == 0 {
		return 0
	}
	finite := 0
	for _, g := range s.Bandpass {
		if IsFinite(g) {
			finite++
		}
	}
	return float64(finite) / float64(len(s.Bandpass))
}

// IsFinite reports whether a gain carries usable data. NaN or Inf in either
// component marks the gain as flagged/invalid.
func IsFinite(g complex128) bool {
	return !cmplx.IsNaN(g) && !cmplx.IsInf(g)
}

// CountFinite counts the usable gains in a slice.
func CountFinite(gains []complex128) int {
	n := 0
	for _, g := range gains {
		if IsFinite(g) {
			n++
		}
	}
	return n
}

// SelectRefAnt chooses the reference antenna: the one with the most finite
// gains over channel and polarisation in the first time solution. The antenna
// with the most valid data makes the safest normalisation divisor. Ties go to
// the lowest index.
func SelectRefAnt(s *GainSolutionSet) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}

	best, bestCount := 0, -1
	for ant := 0; ant < s.NAnt; ant++ {
		count := 0
		for ch := 0; ch < s.NChan; ch++ {
			for pol := 0; pol < s.NPol; pol++ {
				if IsFinite(s.Gain(0, ant, ch, pol)) {
					count++
				}
			}
		}
		if count > bestCount {
			best, bestCount = ant, count
		}
	}
	return best, nil
}
