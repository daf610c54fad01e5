package cli

import (
	"fmt"

	"mixer-line/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	configFile string
	logLevel   string
}

// NewRootCmd builds the mixer command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "mixer",
		Short: "Mixing line controller",
		Long: `mixer drives a production line whose mixing tank drains at a fixed output
flow and is refilled from three raw-material reservoirs during a timed mission.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default: ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level from the config")

	rootCmd.AddCommand(RunCmd(opts))
	rootCmd.AddCommand(SimulateCmd(opts))
	rootCmd.AddCommand(InteractiveCmd(opts))
	rootCmd.AddCommand(SendCmd(opts))

	return rootCmd
}

func (o *options) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(parsed)
	return logger, nil
}
