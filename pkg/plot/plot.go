// Package plot renders diagnostic images for the bandpass preflagger. Each
// phase-outlier plot shows the raw phases with the seed and fitted ramp
// models on the left, and the unwrapped residual phases with the adopted cut
// band on the right.
package plot

import (
	"image/color"
	"math/cmplx"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"solflag/pkg/preflag"
	"solflag/pkg/solutions"
)

var (
	flaggedColor = color.RGBA{B: 255, A: 255}
	modelColor   = color.RGBA{R: 220, A: 255}
	fittedColor  = color.RGBA{A: 255}
	cutDashes    = []vg.Length{vg.Points(4), vg.Points(3)}
)

// PhasePlotter writes phase-outlier diagnostics as PNG files.
type PhasePlotter struct{}

func phaseXYs(gains []complex128) plotter.XYs {
	var xys plotter.XYs
	for i, g := range gains {
		if solutions.IsFinite(g) {
			xys = append(xys, plotter.XY{X: float64(i), Y: cmplx.Phase(g)})
		}
	}
	return xys
}

func hline(y, xmax float64) plotter.XYs {
	return plotter.XYs{{X: 0, Y: y}, {X: xmax, Y: y}}
}

func addLine(p *plot.Plot, xys plotter.XYs, c color.Color, dashes []vg.Length, label string) error {
	if len(xys) == 0 {
		return nil
	}
	l, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	if c != nil {
		l.Color = c
	}
	l.Dashes = dashes
	p.Add(l)
	if label != "" {
		p.Legend.Add(label, l)
	}
	return nil
}

func addFlagged(p *plot.Plot, gains []complex128, mask []bool) error {
	var xys plotter.XYs
	for i, g := range gains {
		if mask[i] && solutions.IsFinite(g) {
			xys = append(xys, plotter.XY{X: float64(i), Y: cmplx.Phase(g)})
		}
	}
	if len(xys) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	s.Color = flaggedColor
	p.Add(s)
	p.Legend.Add("Flagged", s)
	return nil
}

// PlotPhaseOutlier renders the diagnostic for one phase-outlier result and
// returns the path written.
func (PhasePlotter) PlotPhaseOutlier(res *preflag.PhaseOutlierResult, outputPath, title string) (string, error) {
	logrus.Infof("creating phase outlier plot, writing %s", outputPath)

	n := len(res.Gains)
	xmax := float64(n - 1)

	raw := plot.New()
	raw.Title.Text = "Raw Data"
	raw.X.Label.Text = "Channels"
	raw.Y.Label.Text = "Phase (rad)"
	raw.Add(plotter.NewGrid())

	fullModel := make([]complex128, n)
	for i := range fullModel {
		fullModel[i] = res.InitModelGains[i] * res.FitModelGains[i]
	}
	if err := addLine(raw, phaseXYs(res.Gains), nil, nil, "Data"); err != nil {
		return "", err
	}
	if err := addLine(raw, phaseXYs(res.InitModelGains), modelColor, nil, "Initial Model"); err != nil {
		return "", err
	}
	if err := addLine(raw, phaseXYs(fullModel), fittedColor, nil, "Fitted Model"); err != nil {
		return "", err
	}
	if err := addFlagged(raw, res.Gains, res.OutlierMask); err != nil {
		return "", err
	}

	resid := plot.New()
	resid.Title.Text = "Unwrapped Residuals"
	resid.X.Label.Text = "Channels"
	resid.Y.Label.Text = "Phase (rad)"
	resid.Add(plotter.NewGrid())

	residuals := make([]complex128, n)
	for i := range residuals {
		residuals[i] = res.Gains[i] / res.InitModelGains[i] / res.FitModelGains[i]
	}
	if err := addLine(resid, phaseXYs(residuals), nil, nil, "Residual"); err != nil {
		return "", err
	}
	if err := addLine(resid, hline(res.ResidualCenter, xmax), modelColor, nil, ""); err != nil {
		return "", err
	}
	cut := res.FlagCut * res.ResidualSpread
	if err := addLine(resid, hline(res.ResidualCenter-cut, xmax), modelColor, cutDashes, ""); err != nil {
		return "", err
	}
	if err := addLine(resid, hline(res.ResidualCenter+cut, xmax), modelColor, cutDashes, ""); err != nil {
		return "", err
	}
	if err := addFlagged(resid, residuals, res.OutlierMask); err != nil {
		return "", err
	}

	if title != "" {
		raw.Title.Text = title + " - Raw Data"
	}

	img := vgimg.New(20*vg.Centimeter, 10*vg.Centimeter)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: 2,
		PadX: vg.Millimeter * 2,
	}
	panels := [][]*plot.Plot{{raw, resid}}
	canvases := plot.Align(panels, tiles, dc)
	raw.Draw(canvases[0][0])
	resid.Draw(canvases[0][1])

	f, err := os.Create(outputPath)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to create plot file %s", outputPath)
	}
	defer f.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to write plot %s", outputPath)
	}

	return outputPath, nil
}
