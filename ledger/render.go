package ledger

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/immoeliza/pricetune/diagnosis"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7"))
	headerStyle    = lipgloss.NewStyle().Bold(true)
	trainHeadStyle = headerStyle.Foreground(lipgloss.Color("#F4D03F"))
	testHeadStyle  = headerStyle.Foreground(lipgloss.Color("#F08A80"))

	rankStyles = map[int]lipgloss.Style{
		1: lipgloss.NewStyle().Background(lipgloss.Color("#4CAF50")).Foreground(lipgloss.Color("#FFFFFF")),
		2: lipgloss.NewStyle().Background(lipgloss.Color("#81C784")).Foreground(lipgloss.Color("#000000")),
		3: lipgloss.NewStyle().Background(lipgloss.Color("#C8E6C9")).Foreground(lipgloss.Color("#000000")),
	}

	tierColors = map[string]lipgloss.Color{
		string(diagnosis.TierExcellent):            "#81C784",
		string(diagnosis.TierGood):                 "#AED581",
		string(diagnosis.TierModerateOverfitting):  "#FFCC80",
		string(diagnosis.TierStrongOverfitting):    "#EF9A9A",
		string(diagnosis.TierPossibleUnderfitting): "#90CAF9",
	}
)

var thousand = decimal.NewFromInt(1000)

// FormatKEuro renders a euro amount in thousands with one decimal, e.g. "41.3 k€".
// NaN renders empty.
func FormatKEuro(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).Div(thousand).StringFixed(1) + " k€"
}

func formatFixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

type displayColumn struct {
	title string
	head  lipgloss.Style
	value func(Standing) string
}

// Displayed columns. data_file, data_file_timestamp, test_mode, experiment and
// run_id stay in the file but are not shown.
var displayColumns = []displayColumn{
	{"Rank", headerStyle, func(s Standing) string { return strconv.Itoa(s.Rank) }},
	{"Best", headerStyle, func(s Standing) string {
		if s.Best {
			return BestMarker
		}
		return ""
	}},
	{ColTimestamp, headerStyle, func(s Standing) string {
		if s.Timestamp.IsZero() {
			return ""
		}
		return s.Timestamp.Format(TimestampLayout)
	}},
	{ColModel, headerStyle, func(s Standing) string { return s.Model }},
	{ColMAETrain, trainHeadStyle, func(s Standing) string { return FormatKEuro(s.MAETrain) }},
	{ColRMSETrain, trainHeadStyle, func(s Standing) string { return FormatKEuro(s.RMSETrain) }},
	{ColR2Train, trainHeadStyle, func(s Standing) string { return formatFixed(s.R2Train, 4) }},
	{ColMAETest, testHeadStyle, func(s Standing) string { return FormatKEuro(s.MAETest) }},
	{ColRMSETest, testHeadStyle, func(s Standing) string { return FormatKEuro(s.RMSETest) }},
	{ColR2Test, testHeadStyle, func(s Standing) string { return formatFixed(s.R2Test, 4) }},
	{ColR2Gap, headerStyle, func(s Standing) string { return formatFixed(s.R2Gap, 4) }},
	{ColR2GapDiagnostic, headerStyle, func(s Standing) string { return s.R2GapDiagnostic }},
	{ColNFeatures, headerStyle, func(s Standing) string { return strconv.Itoa(s.NFeatures) }},
	{ColExecutionMode, headerStyle, func(s Standing) string { return s.ExecutionMode }},
	{ColInterpretation, headerStyle, func(s Standing) string { return s.Interpretation }},
	{ColRankingScore, headerStyle, func(s Standing) string { return formatFixed(s.RankingScore, 4) }},
}

// Render writes board as a styled text table. Money columns are shown in k€;
// the stored values are not touched.
func Render(w io.Writer, board []Standing) error {
	if _, err := fmt.Fprintln(w, titleStyle.Render("=== Training Summary ===")); err != nil {
		return err
	}
	if len(board) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded yet.")
		return err
	}

	cells := make([][]string, len(board))
	widths := make([]int, len(displayColumns))
	for c, col := range displayColumns {
		widths[c] = lipgloss.Width(col.title)
	}
	for r, s := range board {
		cells[r] = make([]string, len(displayColumns))
		for c, col := range displayColumns {
			v := col.value(s)
			cells[r][c] = v
			widths[c] = max(widths[c], lipgloss.Width(v))
		}
	}

	head := make([]string, len(displayColumns))
	for c, col := range displayColumns {
		head[c] = col.head.Width(widths[c]).Render(col.title)
	}
	if _, err := fmt.Fprintln(w, strings.Join(head, "  ")); err != nil {
		return err
	}

	for r, s := range board {
		line := make([]string, len(displayColumns))
		for c, v := range cells[r] {
			st := lipgloss.NewStyle().Width(widths[c])
			if color, ok := tierColors[v]; ok && displayColumns[c].title == ColR2GapDiagnostic && s.Rank > 3 {
				st = st.Foreground(color)
			}
			line[c] = st.Render(v)
		}
		out := strings.Join(line, "  ")
		if rs, ok := rankStyles[s.Rank]; ok {
			out = rs.Render(out)
		}
		if _, err := fmt.Fprintln(w, out); err != nil {
			return err
		}
	}
	return nil
}
