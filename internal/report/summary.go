// Package report condenses an account's closed positions into per-ticker
// win/loss summaries and renders them for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"

	"tradesim/internal/account"

	"github.com/shopspring/decimal"
)

// Summary is the outcome of one ticker's run.
type Summary struct {
	Ticker        string  `json:"ticker"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinPercent    float64 `json:"win_percent"`
	WinsSum       float64 `json:"wins_sum"`
	LossesSum     float64 `json:"losses_sum"`
	Net           float64 `json:"net"`
	OpenPositions int     `json:"open_positions"`
	EndingCash    float64 `json:"ending_cash"`
	Best          float64 `json:"best"`
	Worst         float64 `json:"worst"`
}

// Trades is the number of closed round trips.
func (s Summary) Trades() int { return s.Wins + s.Losses }

// Summarize scores closed positions. A zero return counts as a win.
// Still-open positions are counted but not scored.
func Summarize(ticker string, positions []account.Position, endingCash float64) Summary {
	s := Summary{Ticker: ticker, EndingCash: endingCash}
	wins, losses := decimal.Zero, decimal.Zero
	var returns []float64

	for _, p := range positions {
		if p.Open {
			s.OpenPositions++
			continue
		}
		r := decimal.NewFromFloat(p.TotalReturn())
		returns = append(returns, r.InexactFloat64())
		if r.IsNegative() {
			s.Losses++
			losses = losses.Add(r)
		} else {
			s.Wins++
			wins = wins.Add(r)
		}
	}

	s.WinsSum = wins.InexactFloat64()
	s.LossesSum = losses.InexactFloat64()
	s.Net = wins.Add(losses).InexactFloat64()
	if n := s.Trades(); n > 0 {
		s.WinPercent = decimal.NewFromInt(int64(s.Wins)).
			Div(decimal.NewFromInt(int64(n))).
			Mul(decimal.NewFromInt(100)).InexactFloat64()
		sort.Float64s(returns)
		s.Worst, s.Best = returns[0], returns[len(returns)-1]
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%-6s-- W/L/W%%: %d/%d/%.2f%% - P/L: $%.4f/$%.4f - Net: $%.4f - Cash: $%.2f",
		s.Ticker, s.Wins, s.Losses, s.WinPercent, s.WinsSum, s.LossesSum, s.Net, s.EndingCash)
}

// Total folds several summaries into one row labelled "TOTAL".
func Total(summaries []Summary) Summary {
	t := Summary{Ticker: "TOTAL"}
	wins, losses, cash := decimal.Zero, decimal.Zero, decimal.Zero
	first := true
	for _, s := range summaries {
		t.Wins += s.Wins
		t.Losses += s.Losses
		t.OpenPositions += s.OpenPositions
		wins = wins.Add(decimal.NewFromFloat(s.WinsSum))
		losses = losses.Add(decimal.NewFromFloat(s.LossesSum))
		cash = cash.Add(decimal.NewFromFloat(s.EndingCash))
		if s.Trades() == 0 {
			continue
		}
		if first || s.Best > t.Best {
			t.Best = s.Best
		}
		if first || s.Worst < t.Worst {
			t.Worst = s.Worst
		}
		first = false
	}
	t.WinsSum = wins.InexactFloat64()
	t.LossesSum = losses.InexactFloat64()
	t.Net = wins.Add(losses).InexactFloat64()
	t.EndingCash = cash.InexactFloat64()
	if n := t.Trades(); n > 0 {
		t.WinPercent = float64(t.Wins) / float64(n) * 100
	}
	return t
}

// Render writes one line per summary, in ticker order, plus a total line
// when there is more than one ticker.
func Render(w io.Writer, summaries []Summary) error {
	sorted := make([]Summary, len(summaries))
	copy(sorted, summaries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ticker < sorted[j].Ticker })

	for _, s := range sorted {
		if _, err := fmt.Fprintln(w, s); err != nil {
			return err
		}
	}
	if len(sorted) > 1 {
		_, err := fmt.Fprintln(w, Total(sorted))
		return err
	}
	return nil
}

// Ranked splits closed positions into winners, best first, and losers,
// worst first.
func Ranked(positions []account.Position) (winners, losers []account.Position) {
	for _, p := range positions {
		if p.Open {
			continue
		}
		if p.TotalReturn() < 0 {
			losers = append(losers, p)
		} else {
			winners = append(winners, p)
		}
	}
	sort.SliceStable(winners, func(i, j int) bool { return winners[i].TotalReturn() > winners[j].TotalReturn() })
	sort.SliceStable(losers, func(i, j int) bool { return losers[i].TotalReturn() < losers[j].TotalReturn() })
	return winners, losers
}

// RenderPositions lists ranked positions under a header per group.
func RenderPositions(w io.Writer, ticker string, positions []account.Position) error {
	winners, losers := Ranked(positions)
	groups := []struct {
		title string
		list  []account.Position
	}{{"winners", winners}, {"losers", losers}}
	for _, g := range groups {
		if len(g.list) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s %s (%d)\n", ticker, g.title, len(g.list)); err != nil {
			return err
		}
		for _, p := range g.list {
			if _, err := fmt.Fprintf(w, "  %s\n", p); err != nil {
				return err
			}
		}
	}
	return nil
}
