package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/immoeliza/pricetune/dataset"
	"github.com/immoeliza/pricetune/gbdt"
	"github.com/immoeliza/pricetune/metrics"
	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
)

func newPredictCmd(root *rootOptions) *cobra.Command {
	var modelPath, dataPath, target, outPath string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a CSV with a saved model",
		Long: `Score a CSV with a saved model.

The CSV columns (excluding --target, when given) must match the model's
feature names exactly and in order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := root.load(cmd); err != nil {
				return err
			}
			logger := log.GetLoggerWithName("predict")

			m, err := gbdt.LoadArtifacts(modelPath)
			if err != nil {
				return err
			}
			table, err := dataset.ReadCSV(dataPath, target)
			if err != nil {
				return err
			}
			pred, err := m.Predict(table)
			if err != nil {
				return err
			}

			if y := table.Target(); y != nil {
				set, err := metrics.Compute(y, pred)
				if err != nil {
					return err
				}
				logger.Info("Prediction metrics",
					log.MAEKey, set.MAE, log.RMSEKey, set.RMSE, log.R2ScoreKey, set.R2,
					log.SamplesKey, table.NumRows(),
				)
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return errors.Wrapf(err, "create %s", outPath)
				}
				defer f.Close()
				w = f
			}
			cw := csv.NewWriter(w)
			if err := cw.Write([]string{"prediction"}); err != nil {
				return err
			}
			for i := 0; i < pred.Len(); i++ {
				if err := cw.Write([]string{strconv.FormatFloat(pred.AtVec(i), 'f', 2, 64)}); err != nil {
					return err
				}
			}
			cw.Flush()
			return cw.Error()
		},
	}
	f := cmd.Flags()
	f.StringVar(&modelPath, "model", "", "saved model (.gob with sibling .json)")
	f.StringVar(&dataPath, "data", "", "CSV to score")
	f.StringVar(&target, "target", "", "optional target column; when present metrics are logged")
	f.StringVar(&outPath, "out", "", "write predictions here instead of stdout")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}
