package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"mixer-line/internal/config"
	"mixer-line/internal/controller"
	"mixer-line/internal/dashboard"
	"mixer-line/internal/display"
	"mixer-line/internal/metrics"
	"mixer-line/internal/mission"
	"mixer-line/internal/models"
	"mixer-line/internal/mqtt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type telemetry interface {
	Connect() error
	Disconnect()
	PublishSnapshot(models.Snapshot)
}

// newTelemetry builds the MQTT bridge of the run command.
var newTelemetry = func(cfg *config.Config, submitter mqtt.CommandSubmitter, logger *logrus.Logger) (telemetry, error) {
	client, err := mqtt.NewClient(cfg, submitter, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// RunCmd returns the long-running service command.
func RunCmd(opts *options) *cobra.Command {
	var console bool
	var autoStart bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the mixing line controller",
		Long: `Run the controller on the configured tick cadence. Telemetry and commands go
through MQTT when mqtt.broker is set, and through the websocket dashboard when
server.enabled is true.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("start") {
				cfg.Mission.AutoStart = autoStart
			}

			logger.Infof("Starting mixing line with config: %+v", cfg.Mission)

			cc, err := cfg.ControllerConfig()
			if err != nil {
				return err
			}
			ctrl, err := controller.New(cc, controller.SystemClock(), logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			runner := mission.NewRunner(ctrl, cfg, logger)

			if console {
				view := display.NewConsole(os.Stdout)
				runner.OnSnapshot(func(s models.Snapshot) {
					view.Render(s)
				})
			}

			runner.OnFailure(func(err error) {
				logger.Warnf("Mission disarmed after failure: %v", err)
			})

			var wg sync.WaitGroup
			var dash *dashboard.Server

			shutdown := func() {
				cancel()
				if dash != nil {
					dash.Stop()
				}
				wg.Wait()
			}

			if cfg.Server.Enabled {
				recorder := metrics.NewRecorder()
				runner.OnSnapshot(recorder.Observe)

				dash = dashboard.NewServer(cfg, runner.Store(), runner, logger)
				dash.SetMetricsHandler(recorder.Handler())
				runner.OnSnapshot(dash.Broadcast)

				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := dash.Start(ctx); err != nil {
						logger.Errorf("Dashboard server error: %v", err)
						cancel()
					}
				}()
			}

			if cfg.MQTT.Broker != "" {
				mqttClient, err := newTelemetry(cfg, runner, logger)
				if err != nil {
					shutdown()
					return err
				}
				runner.OnSnapshot(mqttClient.PublishSnapshot)

				if err := mqttClient.Connect(); err != nil {
					shutdown()
					return err
				}
				defer mqttClient.Disconnect()
			} else {
				logger.Info("MQTT broker not configured, telemetry disabled")
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				runner.Start(ctx)
			}()

			if cfg.Mission.AutoStart {
				if err := runner.Submit(ctx, mission.Command{Kind: mission.CommandStart}); err != nil {
					logger.Errorf("Failed to start mission: %v", err)
				}
			}

			logger.Info("All services started successfully")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sigChan:
				logger.Info("Received shutdown signal")
			case <-ctx.Done():
				logger.Info("Context cancelled")
			}

			logger.Info("Shutting down...")
			shutdown()
			logger.Info("Shutdown complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&console, "console", false, "print a status line after every tick")
	cmd.Flags().BoolVar(&autoStart, "start", false, "arm the mission immediately (overrides mission.auto_start)")

	return cmd
}
