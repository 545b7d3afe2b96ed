package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"solflag/pkg/config"
	"solflag/pkg/flagger"
	"solflag/pkg/plot"
	"solflag/pkg/smoother"
)

// NewFlagCommand .
func NewFlagCommand() *cobra.Command {
	var (
		configPath string
		flagCut    float64
		refAnt     int
		robust     bool
		plotDir    string
		outputPath string
		smooth     bool
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "flag <solutions-file>",
		Short: "Flag bad channels and antennas in a binary solutions file",
		Long: `Flag bad channels and antennas in an AO-calibrate binary solutions file.

Channels whose phases are outliers against the unwrapped delay ramp are
blanked first. An antenna polarisation is dropped entirely when more than 80%
of its channels are flagged, when its amplitude residuals sit too far off a
polynomial baseline, or when its XX and YY amplitudes disagree. The flagged
solutions are written next to the input with a .preflagged suffix; pass
--smooth to also write a Savitzky-Golay smoothed set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			// CLI flags only override values the user actually set.
			if cmd.Flags().Changed("flag-cut") {
				conf.SetFlagCut(flagCut)
			}
			if cmd.Flags().Changed("ref-ant") {
				conf.SetRefAnt(refAnt)
			}
			if cmd.Flags().Changed("robust") {
				conf.SetRobustPhaseStats(robust)
			}
			if cmd.Flags().Changed("plot-dir") {
				conf.SetPlotDir(plotDir)
			}

			if dir := conf.PlotDir(); dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create plot directory: %v", err)
				}
			}

			result, err := flagger.Flag(flagger.Options{
				SolutionsPath:    args[0],
				OutputPath:       outputPath,
				RefAnt:           conf.RefAnt(),
				FlagCut:          conf.FlagCut(),
				RobustPhaseStats: conf.RobustPhaseStats(),
				PlotDir:          conf.PlotDir(),
				Smooth:           smooth,
				Workers:          workers,
				Smoother:         smoother.New(conf.SmoothWindow(), conf.SmoothOrder()),
				Plotter:          plot.PhasePlotter{},
			})
			if err != nil {
				handleFlagError(err)
				return err
			}

			color.Green("Wrote flagged solutions to %s", result.Path)
			if len(result.Plots) > 0 {
				fmt.Printf("Wrote %d diagnostic plots to %s\n", len(result.Plots), conf.PlotDir())
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a JSON config file with flagging defaults")
	flags.Float64Var(&flagCut, "flag-cut", flagger.DefaultFlagCut, "significance a phase outlier must reach before being flagged")
	flags.IntVar(&refAnt, "ref-ant", -1, "reference antenna; negative selects the antenna with the most valid data")
	flags.BoolVar(&robust, "robust", false, "use median/MAD instead of mean/std for the phase residual statistics")
	flags.StringVar(&plotDir, "plot-dir", "", "directory for diagnostic plots; no plots are created when unset")
	flags.StringVarP(&outputPath, "output", "o", "", "output path for the flagged solutions; derived from the input when unset")
	flags.BoolVar(&smooth, "smooth", false, "smooth the gains after flagging and write a second, smoothed solutions file")
	flags.IntVar(&workers, "workers", 0, "antennas processed concurrently; 0 means one per CPU")

	return cmd
}

func handleFlagError(err error) {
	if errors.Is(err, flagger.ErrOverFlagged) {
		fmt.Fprintln(os.Stderr, "\nError: the flagged solutions failed the sanity bound")
		fmt.Fprintln(os.Stderr, "  - More than 80% of the array is flagged, which points at an upstream defect")
		fmt.Fprintln(os.Stderr, "  - Check the reference antenna and the calibration run that produced this file")
	} else if errors.Is(err, flagger.ErrRefAntInvalid) {
		fmt.Fprintln(os.Stderr, "\nError: the reference antenna has no valid data")
		fmt.Fprintln(os.Stderr, "  - Pick a different antenna with --ref-ant, or let solflag choose one with --ref-ant=-1")
	}
}
