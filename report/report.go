// Package report draws search and leaderboard charts with gonum/plot.
// The output format follows the file extension (.png, .svg, .pdf).
package report

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/immoeliza/pricetune/ledger"
	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/tuning"
)

var (
	trialColor = color.RGBA{R: 0x1D, G: 0x9E, B: 0xA3, A: 0xFF}
	bestColor  = color.RGBA{R: 0xE7, G: 0x4C, B: 0x3C, A: 0xFF}
	barColor   = color.RGBA{R: 0x4C, G: 0xAF, B: 0x50, A: 0xFF}
)

// PlotHistory plots the objective of every completed trial and the best value
// so far against the trial index.
func PlotHistory(trials []tuning.Trial, path string) error {
	scores := make(plotter.XYs, 0, len(trials))
	best := make(plotter.XYs, 0, len(trials))
	bestSoFar := math.Inf(1)
	for _, t := range trials {
		if !t.OK() {
			continue
		}
		scores = append(scores, plotter.XY{X: float64(t.Index), Y: t.Score})
		bestSoFar = math.Min(bestSoFar, t.Score)
		best = append(best, plotter.XY{X: float64(t.Index), Y: bestSoFar})
	}
	if len(scores) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "optimization history has no completed trial")
	}

	p := plot.New()
	p.Title.Text = "Optimization history"
	p.X.Label.Text = "trial"
	p.Y.Label.Text = "cross-validated RMSE"
	p.Add(plotter.NewGrid())

	s, err := plotter.NewScatter(scores)
	if err != nil {
		return errors.Wrap(err, "history scatter")
	}
	s.GlyphStyle.Color = trialColor
	s.GlyphStyle.Radius = vg.Points(3)

	l, err := plotter.NewLine(best)
	if err != nil {
		return errors.Wrap(err, "best-so-far line")
	}
	l.LineStyle.Color = bestColor
	l.LineStyle.Width = vg.Points(2)

	p.Add(s, l)
	p.Legend.Add("objective", s)
	p.Legend.Add("best so far", l)
	p.Legend.Top = true

	return save(p, path, 6*vg.Inch, 4*vg.Inch)
}

// PlotLeaderboard draws one bar per ranked run carrying a ranking score, in
// leaderboard order, labelled by rank.
func PlotLeaderboard(board []ledger.Standing, path string) error {
	values := make(plotter.Values, 0, len(board))
	labels := make([]string, 0, len(board))
	for _, s := range board {
		if !s.HasRankingScore() {
			continue
		}
		values = append(values, s.RankingScore)
		labels = append(labels, "#"+strconv.Itoa(s.Rank))
	}
	if len(values) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "leaderboard has no ranked run")
	}

	p := plot.New()
	p.Title.Text = "Ranking score by run"
	p.Y.Label.Text = "ranking score"

	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return errors.Wrap(err, "ranking bars")
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(labels...)

	width := vg.Length(math.Max(4, float64(len(values))*0.5)) * vg.Inch
	return save(p, path, width, 4*vg.Inch)
}

func save(p *plot.Plot, path string, w, h vg.Length) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create plot directory")
		}
	}
	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
