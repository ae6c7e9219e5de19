package main

import (
	"github.com/spf13/cobra"

	"github.com/immoeliza/pricetune/config"
	"github.com/immoeliza/pricetune/experiment"
	"github.com/immoeliza/pricetune/ledger"
	"github.com/immoeliza/pricetune/pkg/log"
)

func newTrainCmd(root *rootOptions) *cobra.Command {
	var (
		data, mode, sampler, plot, execMode string
		trials, top                         int
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Search hyperparameters, refit, evaluate and log the run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if data != "" {
				cfg.Data.Path = data
			}
			if mode != "" {
				cfg.Mode = config.Mode(mode)
			}
			if sampler != "" {
				cfg.Search.Sampler = sampler
			}
			if trials > 0 {
				cfg.Search.Trials = trials
			}
			if plot != "" {
				cfg.Output.PlotPath = plot
			}
			if execMode != "" {
				cfg.Execution.Mode = execMode
			}

			runner, err := experiment.NewRunner(cfg, experiment.WithLogger(log.GetLoggerWithName("experiment")))
			if err != nil {
				return err
			}
			out, err := runner.Run(cmd.Context())
			if err != nil {
				log.GetLogger().Error("Training failed", err)
				return err
			}

			board := out.Leaderboard
			if top > 0 && len(board) > top {
				board = board[:top]
			}
			return ledger.Render(cmd.OutOrStdout(), board)
		},
	}
	f := cmd.Flags()
	f.StringVar(&data, "data", "", "source CSV (default: latest timestamped file in data.dir)")
	f.StringVar(&mode, "mode", "", "dev or full")
	f.StringVar(&sampler, "sampler", "", "tpe, random or grid")
	f.IntVar(&trials, "trials", 0, "trial budget (default: mode default)")
	f.StringVar(&plot, "plot", "", "write the optimization history chart to this file")
	f.StringVar(&execMode, "exec", "", "standard or accelerated")
	f.IntVar(&top, "top", 10, "leaderboard rows to print after the run")
	return cmd
}
