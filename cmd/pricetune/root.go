package main

import (
	"github.com/spf13/cobra"

	"github.com/immoeliza/pricetune/config"
	"github.com/immoeliza/pricetune/pkg/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pricetune",
		Short:         "Tune, evaluate and rank real-estate price models",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML run configuration")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides the config)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "json or console (overrides the config)")

	cmd.AddCommand(
		newTrainCmd(opts),
		newLeaderboardCmd(opts),
		newDiagnoseCmd(opts),
		newPredictCmd(opts),
		newProbeCmd(opts),
	)
	return cmd
}

// load reads the configuration, applies the logging flags and installs the
// logger on stderr.
func (o *rootOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if err := log.SetupLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr()); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
