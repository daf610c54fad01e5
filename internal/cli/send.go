package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mixer-line/internal/mission"
	"mixer-line/internal/mqtt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// SendCmd returns the command that drives a running line over MQTT.
func SendCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send <command> [values...]",
		Short: "Send an operator command to a running line over MQTT",
		Example: `  mixer send start
  mixer send set_output_flow 40
  mixer send restock 2000 2000 2000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			command, err := mission.ParseCommand([]byte(strings.Join(args, " ")))
			if err != nil {
				return err
			}

			sender, err := mqtt.NewSender(cfg, logger)
			if err != nil {
				return err
			}
			if err := sender.Connect(); err != nil {
				return fmt.Errorf("%w (is the broker at %s running?)", err, cfg.MQTT.Broker)
			}
			defer sender.Disconnect()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			ack, err := sender.Send(ctx, command)
			if err != nil {
				return err
			}
			if !ack.OK {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", color.RedString("❌"), ack.Command, ack.Error)
				return fmt.Errorf("command rejected: %s", ack.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("✅"), ack.Command)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the line to acknowledge")

	return cmd
}
