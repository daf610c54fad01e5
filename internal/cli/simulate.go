package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"mixer-line/internal/display"
	"mixer-line/internal/mission"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// SimulateCmd returns the offline simulation command.
func SimulateCmd(opts *options) *cobra.Command {
	var maxTicks int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a whole mission offline on a simulated clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			cc, err := cfg.ControllerConfig()
			if err != nil {
				return err
			}

			report, err := mission.Simulate(cc, cfg.Mission.TickInterval, maxTicks, logger)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(os.Stdout, cfg.Preset, report)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxTicks, "max-ticks", 100_000, "stop after this many ticks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	return cmd
}

func printReport(out io.Writer, preset string, report mission.Report) {
	fmt.Fprintf(out, "Preset %s: %d ticks, %d replenishments\n", preset, report.Ticks, report.Final.Replenishments)

	for i, event := range report.Events {
		status := color.New(color.FgGreen).Sprint("OK")
		if event.Failed {
			status = color.New(color.FgRed).Sprint("EXHAUSTED")
		}
		fmt.Fprintf(out, "  #%d at %6.1fs: volume %.1f, drew %.2f per reservoir %s\n",
			i+1, event.Elapsed, event.PreVolume, event.Draw, status)
	}

	outcome := report.Outcome()
	if report.Err != nil {
		outcome = color.New(color.FgRed, color.Bold).Sprint(outcome)
	}
	fmt.Fprintf(out, "Outcome: %s\n\n", outcome)

	display.NewConsole(out).RenderDetail(report.Final)
}
