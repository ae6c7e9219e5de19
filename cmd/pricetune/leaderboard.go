package main

import (
	"github.com/spf13/cobra"

	"github.com/immoeliza/pricetune/ledger"
	"github.com/immoeliza/pricetune/pkg/log"
	"github.com/immoeliza/pricetune/report"
)

func newLeaderboardCmd(root *rootOptions) *cobra.Command {
	var (
		limit     int
		byRecency bool
		path      string
		plot      string
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show logged runs ranked by ranking score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.Output.LedgerPath
			}
			store := ledger.NewStore(path, cfg.Data.Dir,
				ledger.WithWeights(cfg.Ledger.Weights),
				ledger.WithLogger(log.GetLoggerWithName("ledger")),
			)
			board, err := store.Leaderboard(ledger.Options{Limit: limit, SortByRanking: !byRecency})
			if err != nil {
				return err
			}
			if plot != "" {
				if err := report.PlotLeaderboard(board, plot); err != nil {
					return err
				}
			}
			return ledger.Render(cmd.OutOrStdout(), board)
		},
	}
	f := cmd.Flags()
	f.IntVar(&limit, "limit", 0, "rows to show (0 = all)")
	f.BoolVar(&byRecency, "by-recency", false, "order newest first instead of by ranking score")
	f.StringVar(&path, "ledger", "", "ledger CSV (default: output.ledger_path)")
	f.StringVar(&plot, "plot", "", "also write a ranking bar chart to this file")
	return cmd
}
