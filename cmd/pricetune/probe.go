package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/immoeliza/pricetune/core/execution"
	"github.com/immoeliza/pricetune/gbdt"
)

func newProbeCmd(root *rootOptions) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether an execution mode is usable on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if mode == "" {
				mode = cfg.Execution.Mode
			}
			requested, err := execution.ParseMode(mode)
			if err != nil {
				return err
			}
			c := execution.NewProber(gbdt.MicroFit).Probe(cmd.Context(), requested)
			w := cmd.OutOrStdout()
			if c.Available {
				fmt.Fprintf(w, "%s: available (%d workers)\n", c.Mode, c.Mode.Workers())
				return nil
			}
			fmt.Fprintf(w, "%s: unavailable (%s), using %s\n", c.Requested, c.Reason, c.Mode)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "standard or accelerated (default: execution.mode)")
	return cmd
}
