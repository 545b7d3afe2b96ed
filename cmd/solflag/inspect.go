package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"solflag/pkg/solutions"
)

// NewInspectCommand .
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <solutions-file>",
		Short: "Print the header and per-antenna occupancy of a solutions file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sols, err := solutions.Load(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("File:           %s\n", sols.Path)
			fmt.Printf("Time solutions: %d\n", sols.NSol)
			fmt.Printf("Antennas:       %d\n", sols.NAnt)
			fmt.Printf("Channels:       %d\n", sols.NChan)
			fmt.Printf("Polarisations:  %d\n", sols.NPol)
			fmt.Printf("Gains:          %s\n", humanize.IBytes(uint64(len(sols.Bandpass)*16)))
			fmt.Printf("Valid:          %.2f%%\n", sols.FiniteFraction()*100)
			fmt.Println()

			perAntenna := sols.NSol * sols.NChan * sols.NPol
			for ant := 0; ant < sols.NAnt; ant++ {
				finite := 0
				for t := 0; t < sols.NSol; t++ {
					for ch := 0; ch < sols.NChan; ch++ {
						for pol := 0; pol < sols.NPol; pol++ {
							if solutions.IsFinite(sols.Gain(t, ant, ch, pol)) {
								finite++
							}
						}
					}
				}

				frac := float64(finite) / float64(perAntenna)
				line := fmt.Sprintf("ant%02d  %6.2f%% valid", ant, frac*100)
				switch {
				case frac == 0:
					color.Red("%s  (fully flagged)", line)
				case frac < 0.5:
					color.Yellow(line)
				default:
					fmt.Println(line)
				}
			}

			return nil
		},
	}
}
