package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/gpio-node/internal/config"
	"github.com/sweeney/gpio-node/internal/logger"
)

type rootFlags struct {
	configPath string
	logLevel   string
	dryRun     bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "gpio-node",
		Short:         "Expose GPIO outputs and buttons as cloud device params",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to YAML config (defaults to the two-relay board)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&f.dryRun, "dry-run", false, "use the in-memory GPIO backend")

	root.AddCommand(
		newRunCmd(f),
		newOutputsCmd(f),
		newStateCmd(f),
		newSetCmd(f),
		newHashPasswordCmd(),
	)
	return root
}

// load reads the config and applies command-line overrides.
func (f *rootFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.dryRun {
		cfg.GPIO.Backend = config.BackendFake
	}
	return cfg, nil
}

func (f *rootFlags) logger(cmd *cobra.Command, cfg config.Config) (*logrus.Logger, error) {
	return logger.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
}
