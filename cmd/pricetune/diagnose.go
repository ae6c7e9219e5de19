package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/immoeliza/pricetune/diagnosis"
	"github.com/immoeliza/pricetune/pkg/errors"
)

func newDiagnoseCmd(root *rootOptions) *cobra.Command {
	names := []string{"mae_train", "mae_test", "r2_train", "r2_test"}
	return &cobra.Command{
		Use:   "diagnose <mae_train> <mae_test> <r2_train> <r2_test>",
		Short: "Classify generalization from train and test metrics",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			v := make([]float64, len(args))
			for i, a := range args {
				if v[i], err = strconv.ParseFloat(a, 64); err != nil {
					return errors.NewValidationError(names[i], "not a number", a)
				}
			}
			res, err := diagnosis.Diagnose(v[0], v[1], v[2], v[3], cfg.Diagnosis)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "status:  %s\n", res.Status)
			fmt.Fprintf(w, "r2 gap:  %.4f (%s)\n", res.R2Gap, res.Tier)
			fmt.Fprintf(w, "mae gap: %.4f\n", res.MAEGap)
			return nil
		},
	}
}
