package flagger

import (
	"errors"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"testing"

	"solflag/pkg/preflag"
	"solflag/pkg/solutions"
)

// fakePlotter records requested plot paths without touching the filesystem.
type fakePlotter struct{}

func (fakePlotter) PlotPhaseOutlier(res *preflag.PhaseOutlierResult, outputPath, title string) (string, error) {
	return outputPath, nil
}

// identitySmoother returns the gains unchanged so the smoothing plumbing can
// be tested without numerical drift.
type identitySmoother struct{}

func (identitySmoother) Smooth(gains []complex128, nant, nchan, npol int) ([]complex128, error) {
	out := make([]complex128, len(gains))
	copy(out, gains)
	return out, nil
}

// setCell fills one (time, antenna, pol) cell with unit-amplitude gains on a
// gentle phase ramp plus a bounded sinusoidal wobble.
func setCell(s *solutions.GainSolutionSet, t, ant, pol int, amp, slope, offset float64) {
	for ch := 0; ch < s.NChan; ch++ {
		phase := slope*float64(ch) + offset +
			0.03*math.Sin(0.7*float64(ch)+float64(ant)+float64(pol))
		i := ((t*s.NAnt+ant)*s.NChan+ch)*s.NPol + pol
		s.Bandpass[i] = cmplx.Rect(amp, phase)
	}
}

// testFixture builds one time solution with five antennas:
//
//	ant0  reference, clean
//	ant1  clean phases but a 1.4x YY amplitude, tripping the ratio pass
//	ant2  phase outliers on XX channels 10 and 30
//	ant3  XX channels 0-57 already flagged, tripping the threshold pass
//	ant4  alternating XX phases that defeat the ramp fit
func testFixture() *solutions.GainSolutionSet {
	s := solutions.New(1, 5, 64, 4)

	for ant := 0; ant < s.NAnt; ant++ {
		slope := 0.01 * float64(ant+1)
		for pol := 0; pol < s.NPol; pol++ {
			amp := 1.0
			if ant == 1 && pol == solutions.PolYY {
				amp = 1.4
			}
			setCell(s, 0, ant, pol, amp, slope, 0.2*float64(ant))
		}
	}

	for _, ch := range []int{10, 30} {
		i := ((0*s.NAnt+2)*s.NChan+ch)*s.NPol + solutions.PolXX
		s.Bandpass[i] *= cmplx.Exp(complex(0, 1.9))
	}

	for ch := 0; ch < 58; ch++ {
		s.BlankChannel(0, 3, ch, solutions.PolXX)
	}

	for ch := 0; ch < s.NChan; ch++ {
		i := ((0*s.NAnt+4)*s.NChan+ch)*s.NPol + solutions.PolXX
		if ch%2 == 0 {
			s.Bandpass[i] = 1
		} else {
			s.Bandpass[i] = -1
		}
	}

	return s
}

func cellFlags(s *solutions.GainSolutionSet, t, ant, pol int) []bool {
	flags := make([]bool, s.NChan)
	for ch := 0; ch < s.NChan; ch++ {
		flags[ch] = !solutions.IsFinite(s.Gain(t, ant, ch, pol))
	}
	return flags
}

func countFlagged(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

func TestFlagSolutions(t *testing.T) {
	s := testFixture()
	refRow := make([]complex128, s.NChan*s.NPol)
	copy(refRow, s.TimeGains(0)[:len(refRow)])

	outPath := filepath.Join(t.TempDir(), "out.bin")
	result, err := FlagSolutions(s, Options{
		SolutionsPath: "fixture.bin",
		OutputPath:    outPath,
		RefAnt:        0,
		FlagCut:       3,
		Workers:       2,
		PlotDir:       "plots",
		Plotter:       fakePlotter{},
	})
	if err != nil {
		t.Fatalf("FlagSolutions failed: %v", err)
	}
	if result.Path != outPath {
		t.Errorf("result path %q, want %q", result.Path, outPath)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("flagged solutions file missing: %v", err)
	}

	// The reference antenna is never mutated.
	for i, g := range s.TimeGains(0)[:len(refRow)] {
		if g != refRow[i] {
			t.Fatalf("reference antenna gain %d changed from %v to %v", i, refRow[i], g)
		}
	}

	// ant1 fails the XX/YY ratio and loses every polarisation.
	for pol := 0; pol < s.NPol; pol++ {
		if n := countFlagged(cellFlags(s, 0, 1, pol)); n != s.NChan {
			t.Errorf("ant1 pol %d: %d of %d flagged, want all", pol, n, s.NChan)
		}
	}

	// ant2 loses exactly the two outlier channels on XX and nothing else.
	xxFlags := cellFlags(s, 0, 2, solutions.PolXX)
	for ch, flagged := range xxFlags {
		want := ch == 10 || ch == 30
		if flagged != want {
			t.Errorf("ant2 XX channel %d: flagged=%v, want %v", ch, flagged, want)
		}
	}
	if n := countFlagged(cellFlags(s, 0, 2, solutions.PolYY)); n != 0 {
		t.Errorf("ant2 YY: %d channels flagged, want none", n)
	}

	// ant3 trips the flagged-channel threshold on XX; the dead XX then fails
	// the ratio against the healthy YY and takes the whole antenna with it.
	// ant4's unfittable XX phases end the same way.
	for _, ant := range []int{3, 4} {
		for pol := 0; pol < s.NPol; pol++ {
			if n := countFlagged(cellFlags(s, 0, ant, pol)); n != s.NChan {
				t.Errorf("ant%d pol %d: %d of %d flagged, want all", ant, pol, n, s.NChan)
			}
		}
	}

	// One plot per cell whose phase fit succeeded: ant1-3 on XX (ant4's fit
	// fails) and ant1-4 on YY.
	if len(result.Plots) != 7 {
		t.Errorf("got %d plots, want 7: %v", len(result.Plots), result.Plots)
	}
}

func TestFlagSolutionsIdempotent(t *testing.T) {
	s := testFixture()
	dir := t.TempDir()

	opts := Options{
		SolutionsPath: "fixture.bin",
		OutputPath:    filepath.Join(dir, "pass1.bin"),
		RefAnt:        0,
	}
	if _, err := FlagSolutions(s, opts); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	first := make([]bool, len(s.Bandpass))
	for i, g := range s.Bandpass {
		first[i] = solutions.IsFinite(g)
	}

	opts.OutputPath = filepath.Join(dir, "pass2.bin")
	if _, err := FlagSolutions(s, opts); err != nil {
		t.Fatalf("second pass failed: %v", err)
	}

	for i, g := range s.Bandpass {
		if solutions.IsFinite(g) != first[i] {
			t.Fatalf("gain %d changed validity between passes", i)
		}
	}
}

func TestFlagEndToEnd(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "sols.bin")
	if _, err := solutions.Save(testFixture(), inPath); err != nil {
		t.Fatal(err)
	}

	result, err := Flag(Options{SolutionsPath: inPath, RefAnt: 0})
	if err != nil {
		t.Fatalf("Flag failed: %v", err)
	}

	wantPath := filepath.Join(dir, "sols.preflagged.bin")
	if result.Path != wantPath {
		t.Errorf("result path %q, want %q", result.Path, wantPath)
	}
	if _, err := solutions.Load(result.Path); err != nil {
		t.Fatalf("flagged artifact does not load back: %v", err)
	}
}

func TestOverFlaggedAbortsBeforeSaving(t *testing.T) {
	// Seven of eight antennas carry no data at all, so the flagged fraction
	// ends at 87.5% and the run must abort without writing anything.
	s := solutions.New(1, 8, 32, 4)
	for pol := 0; pol < s.NPol; pol++ {
		setCell(s, 0, 0, pol, 1, 0.01, 0)
	}

	outPath := filepath.Join(t.TempDir(), "out.bin")
	_, err := FlagSolutions(s, Options{
		SolutionsPath: "fixture.bin",
		OutputPath:    outPath,
		RefAnt:        0,
	})
	if !errors.Is(err, ErrOverFlagged) {
		t.Fatalf("expected ErrOverFlagged, got %v", err)
	}
	if _, statErr := os.Stat(outPath); statErr == nil {
		t.Fatal("an over-flagged run must not persist a solutions file")
	}
}

func TestRefAntInvalid(t *testing.T) {
	s := testFixture()
	s.BlankCell(0, 1, solutions.PolXX)

	_, err := FlagSolutions(s, Options{
		SolutionsPath: "fixture.bin",
		OutputPath:    filepath.Join(t.TempDir(), "out.bin"),
		RefAnt:        1,
	})
	if !errors.Is(err, ErrRefAntInvalid) {
		t.Fatalf("expected ErrRefAntInvalid, got %v", err)
	}
}

func TestSmoothingWritesSecondArtifact(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.bin")

	result, err := FlagSolutions(testFixture(), Options{
		SolutionsPath: "fixture.bin",
		OutputPath:    outPath,
		RefAnt:        0,
		Smooth:        true,
		Smoother:      identitySmoother{},
	})
	if err != nil {
		t.Fatalf("FlagSolutions failed: %v", err)
	}

	wantSmoothed := filepath.Join(dir, "out.smoothed.bin")
	if result.Path != wantSmoothed {
		t.Errorf("result path %q, want %q", result.Path, wantSmoothed)
	}
	for _, p := range []string{outPath, wantSmoothed} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("artifact %s missing: %v", p, err)
		}
	}

	// Smoothing normalises by the reference antenna, so the reference row of
	// the smoothed set is unity wherever it was finite.
	sols, err := solutions.Load(wantSmoothed)
	if err != nil {
		t.Fatal(err)
	}
	for ch := 0; ch < sols.NChan; ch++ {
		g := sols.Gain(0, 0, ch, solutions.PolXX)
		if cmplx.Abs(g-1) > 1e-9 {
			t.Fatalf("reference gain at channel %d is %v, want 1", ch, g)
		}
	}
}
