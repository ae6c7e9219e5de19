package ledger

import (
	"slices"
	"sort"
)

// BestMarker flags the top row of a leaderboard.
const BestMarker = "✔"

// Options control Leaderboard.
type Options struct {
	// Limit keeps the first Limit rows after sorting; 0 keeps all.
	Limit int
	// SortByRanking orders by ranking score, highest first. When false, or when
	// the ledger has no ranking_score column, rows are ordered newest first.
	SortByRanking bool
}

// Standing is a ledger row with its leaderboard position.
type Standing struct {
	Rank int // 1-based
	Best bool
	Row
}

// Leaderboard reads the ledger and ranks its rows.
func (s *Store) Leaderboard(opts Options) ([]Standing, error) {
	rows, header, err := s.read()
	if err != nil {
		return nil, err
	}
	return Rank(rows, slices.Contains(header, ColRankingScore), opts), nil
}

// Rank orders rows as described by opts. hasRanking says whether the source
// table has a ranking_score column at all. Rows without a score sort after
// every scored row; ties keep file order.
func Rank(rows []Row, hasRanking bool, opts Options) []Standing {
	ordered := append([]Row(nil), rows...)
	if hasRanking && opts.SortByRanking {
		sort.SliceStable(ordered, func(i, j int) bool {
			a, b := ordered[i], ordered[j]
			if !a.HasRankingScore() {
				return false
			}
			if !b.HasRankingScore() {
				return true
			}
			return a.RankingScore > b.RankingScore
		})
	} else {
		slices.Reverse(ordered)
	}

	if opts.Limit > 0 && len(ordered) > opts.Limit {
		ordered = ordered[:opts.Limit]
	}
	board := make([]Standing, len(ordered))
	for i, r := range ordered {
		board[i] = Standing{Rank: i + 1, Best: i == 0, Row: r}
	}
	return board
}
