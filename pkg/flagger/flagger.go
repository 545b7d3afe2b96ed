// Package flagger sequences the bandpass preflagging stages over a loaded
// solution set: per-cell phase-outlier, threshold and amplitude-residual
// tests on the diagonal polarisations, then a whole-antenna XX/YY ratio pass,
// then persistence and an over-flagging sanity bound. Smoothing and plotting
// are injected collaborators so the core can run without them.
package flagger

import (
	"fmt"
	"path/filepath"
	"runtime"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solflag/pkg/preflag"
	"solflag/pkg/solutions"
)

// Policy constants of the flagging run. The fraction bounds are contracts,
// not tuning knobs.
const (
	// cellFlagThreshold is the flagged fraction above which a whole
	// (time, antenna, pol) cell is blanked.
	cellFlagThreshold = 0.8

	// overFlagBound is the non-finite fraction of the whole array above which
	// the run is aborted as defective.
	overFlagBound = 0.8
)

// DefaultFlagCut is the default phase-outlier significance.
const DefaultFlagCut = 3.0

// Smoother smooths the complex gains of one time solution. The returned
// slice must have the same (nant, nchan, npol) shape as the input.
type Smoother interface {
	Smooth(gains []complex128, nant, nchan, npol int) ([]complex128, error)
}

// Plotter renders a diagnostic image for one phase-outlier result. It is
// purely observational and must not mutate the result.
type Plotter interface {
	PlotPhaseOutlier(res *preflag.PhaseOutlierResult, outputPath, title string) (string, error)
}

// Options configures a flagging run.
type Options struct {
	// SolutionsPath is the solutions file to load and flag.
	SolutionsPath string
	// OutputPath overrides the derived preflagged output path when set.
	OutputPath string

	// RefAnt is the reference antenna; a negative value selects the antenna
	// with the most finite gains automatically.
	RefAnt int
	// FlagCut is the phase-outlier significance before a channel is flagged.
	FlagCut float64
	// RobustPhaseStats switches the phase residual statistics from mean/std
	// to median/MAD.
	RobustPhaseStats bool

	// PlotDir enables per-(antenna, pol) diagnostic plots when non-empty.
	PlotDir string
	// Smooth runs the Smoother over each time solution after the preflagged
	// artifact is written and persists a second, smoothed artifact.
	Smooth bool

	// Workers bounds the antennas processed concurrently inside one
	// (time, pol) pass. Zero or negative means one worker per CPU.
	Workers int

	Smoother Smoother
	Plotter  Plotter
}

// FlaggedSolution is the result of a flagging run.
type FlaggedSolution struct {
	// Path of the final persisted solutions file.
	Path string
	// Plots are the diagnostic images written along the way, in
	// (time, pol, antenna) order.
	Plots []string
}

// Flag loads a solutions file, runs every flagging stage in place and writes
// the flagged (and optionally smoothed) artifacts.
func Flag(opts Options) (*FlaggedSolution, error) {
	sols, err := solutions.Load(opts.SolutionsPath)
	if err != nil {
		return nil, err
	}
	return FlagSolutions(sols, opts)
}

// FlagSolutions runs the flagging stages over an already-loaded set. The set's
// bandpass is mutated in place; the orchestrator owns it for the duration.
func FlagSolutions(sols *solutions.GainSolutionSet, opts Options) (*FlaggedSolution, error) {
	if err := sols.Validate(); err != nil {
		return nil, err
	}
	if opts.FlagCut <= 0 {
		opts.FlagCut = DefaultFlagCut
	}

	refAnt := opts.RefAnt
	if refAnt < 0 {
		var err error
		refAnt, err = solutions.SelectRefAnt(sols)
		if err != nil {
			return nil, err
		}
		logrus.Infof("auto-selected reference antenna %d", refAnt)
	}
	if refAnt >= sols.NAnt {
		return nil, pkgerrors.Errorf("reference antenna %d out of range [0, %d)", refAnt, sols.NAnt)
	}

	title := filepath.Base(opts.SolutionsPath)
	if title == "." {
		title = "solutions"
	}

	var plots []string

	for t := 0; t < sols.NSol; t++ {
		for _, pol := range []int{solutions.PolXX, solutions.PolYY} {
			cellPlots, err := flagDiagonalPass(sols, t, pol, refAnt, title, opts)
			if err != nil {
				return nil, err
			}
			plots = append(plots, cellPlots...)
		}
	}

	// The ratio pass reads the blanked state left by the diagonal passes, so
	// it runs strictly after all of them.
	for t := 0; t < sols.NSol; t++ {
		flagRatioPass(sols, t, refAnt)
	}

	// Sanity bound before anything is persisted: an over-flagged result is a
	// pipeline defect, never an artifact worth keeping.
	if flaggedFrac := 1 - sols.FiniteFraction(); flaggedFrac > overFlagBound {
		return nil, pkgerrors.Wrapf(ErrOverFlagged,
			"%.2f%% of %s is flagged after the preflagger", flaggedFrac*100, opts.SolutionsPath)
	}

	outPath := opts.OutputPath
	if outPath == "" {
		outPath = solutions.PreflaggedPath(opts.SolutionsPath)
	}
	if _, err := solutions.Save(sols, outPath); err != nil {
		return nil, err
	}

	if opts.Smooth && opts.Smoother != nil {
		if err := smoothSolutions(sols, refAnt, opts.Smoother); err != nil {
			return nil, err
		}
		outPath = solutions.SmoothedPath(outPath)
		if _, err := solutions.Save(sols, outPath); err != nil {
			return nil, err
		}
	}

	return &FlaggedSolution{Path: outPath, Plots: plots}, nil
}

// flagDiagonalPass runs the phase, threshold and amplitude stages for every
// non-reference antenna of one (time, pol). Antennas own disjoint slices of
// the bandpass and the reference row is read-only here, so they are processed
// concurrently.
func flagDiagonalPass(sols *solutions.GainSolutionSet, t, pol, refAnt int, title string, opts Options) ([]string, error) {
	polName := solutions.PolName(pol)
	logrus.Infof("processing %s polarisation, time solution %d", polName, t)

	refGains := sols.CellGains(t, refAnt, pol)
	if solutions.CountFinite(refGains) == 0 {
		return nil, pkgerrors.Wrapf(ErrRefAntInvalid,
			"antenna %d has no finite %s gains for time solution %d", refAnt, polName, t)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// One plot slot per antenna keeps the collected paths deterministic.
	plotSlots := make([]string, sols.NAnt)

	var eg errgroup.Group
	eg.SetLimit(workers)

	for ant := 0; ant < sols.NAnt; ant++ {
		if ant == refAnt {
			continue
		}
		ant := ant
		eg.Go(func() error {
			return flagCell(sols, t, ant, pol, refGains, title, opts, plotSlots)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var plots []string
	for _, p := range plotSlots {
		if p != "" {
			plots = append(plots, p)
		}
	}
	return plots, nil
}

// flagCell runs the per-cell stages for one (time, antenna, pol).
func flagCell(sols *solutions.GainSolutionSet, t, ant, pol int, refGains []complex128, title string, opts Options, plotSlots []string) error {
	polName := solutions.PolName(pol)

	normalised := sols.CellGains(t, ant, pol)
	for ch := range normalised {
		normalised[ch] /= refGains[ch]
	}
	if solutions.CountFinite(normalised) == 0 {
		logrus.Infof("no valid data for ant%02d %s, skipping", ant, polName)
		return nil
	}

	res, err := preflag.DetectPhaseOutliers(normalised, opts.FlagCut, opts.RobustPhaseStats)
	switch {
	case pkgerrors.Is(err, preflag.ErrFitConvergence):
		// A failed fit is a total loss of information for this cell.
		logrus.Infof("phase fit failed for ant%02d %s, blanking the cell: %v", ant, polName, err)
		sols.BlankCell(t, ant, pol)
	case err != nil:
		return err
	default:
		for ch, outlier := range res.OutlierMask {
			if outlier {
				sols.BlankChannel(t, ant, ch, pol)
			}
		}
		if opts.PlotDir != "" && opts.Plotter != nil {
			name := fmt.Sprintf("%s.ant%02d.%s.png", title, ant, polName)
			plotPath, err := opts.Plotter.PlotPhaseOutlier(res,
				filepath.Join(opts.PlotDir, name),
				fmt.Sprintf("%s - ant%02d - %s", title, ant, polName))
			if err != nil {
				logrus.Errorf("failed to plot ant%02d %s: %v", ant, polName, err)
			} else {
				plotSlots[ant] = plotPath
			}
		}
	}

	flags := make([]bool, sols.NChan)
	for ch := 0; ch < sols.NChan; ch++ {
		flags[ch] = !solutions.IsFinite(sols.Gain(t, ant, ch, pol))
	}
	over, err := preflag.FlagsOverThreshold(flags, cellFlagThreshold)
	if err != nil {
		return err
	}
	if over {
		logrus.Infof("flagging all %s solutions for ant%02d, too many flagged channels", polName, ant)
		sols.BlankCell(t, ant, pol)
	}

	gains := sols.CellGains(t, ant, pol)
	if preflag.AnyFinite(gains) &&
		preflag.BadResidualAmplitude(gains, true, preflag.DefaultAmplitudePolyOrder) {
		logrus.Infof("flagging all %s solutions for ant%02d, residual amplitudes too high", polName, ant)
		sols.BlankCell(t, ant, pol)
	}

	flaggedCount := sols.NChan - solutions.CountFinite(sols.CellGains(t, ant, pol))
	logrus.Infof("ant%02d %s: flagged %.2f%%", ant, polName,
		float64(flaggedCount)/float64(sols.NChan)*100)

	return nil
}

// flagRatioPass blanks whole antennas whose reference-normalised XX and YY
// amplitudes disagree. The two diagonal pols are a joint integrity check, so
// a trip blanks all four polarisations.
func flagRatioPass(sols *solutions.GainSolutionSet, t, refAnt int) {
	refXX := sols.CellGains(t, refAnt, solutions.PolXX)
	refYY := sols.CellGains(t, refAnt, solutions.PolYY)

	for ant := 0; ant < sols.NAnt; ant++ {
		if ant == refAnt {
			continue
		}

		xx := sols.CellGains(t, ant, solutions.PolXX)
		yy := sols.CellGains(t, ant, solutions.PolYY)
		for ch := 0; ch < sols.NChan; ch++ {
			xx[ch] /= refXX[ch]
			yy[ch] /= refYY[ch]
		}

		if preflag.BadXXYYAmplitudeRatio(xx, yy) {
			logrus.Infof("ant%02d failed the XX/YY amplitude ratio test, flagging the antenna", ant)
			sols.BlankAntenna(t, ant)
		}
	}
}

// smoothSolutions normalises each time solution by the reference antenna and
// hands it to the smoothing collaborator, writing the result back in place.
func smoothSolutions(sols *solutions.GainSolutionSet, refAnt int, sm Smoother) error {
	logrus.Info("smoothing the bandpass solutions")

	for t := 0; t < sols.NSol; t++ {
		gains := sols.TimeGains(t)

		rowLen := sols.NChan * sols.NPol
		ref := make([]complex128, rowLen)
		copy(ref, gains[refAnt*rowLen:(refAnt+1)*rowLen])
		for ant := 0; ant < sols.NAnt; ant++ {
			for i := 0; i < rowLen; i++ {
				gains[ant*rowLen+i] /= ref[i]
			}
		}

		smoothed, err := sm.Smooth(gains, sols.NAnt, sols.NChan, sols.NPol)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to smooth time solution %d", t)
		}
		if err := sols.SetTimeGains(t, smoothed); err != nil {
			return err
		}
	}
	return nil
}
