package eod

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"eth-scalper/internal/tradelog"
)

type aggRow struct {
	Action      string
	Trades      int
	Wins        int
	Losses      int
	Qty         int
	LeverageSum int
	PnL         float64
	Reasons     map[string]int
}

type eodSummarizer struct{}

func eodCSVPath(t time.Time) string {
	return filepath.Join(tradelog.Dir(), "eod", t.UTC().Format("2006-01-02")+".csv")
}

// SummarizeDay writes a per-action CSV of the settled trades logged on t's UTC day.
// It returns "" when nothing was traded.
func (e *eodSummarizer) SummarizeDay(t time.Time) (string, error) {
	entries, err := tradelog.ReadDay(t)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}

	aggs := map[string]*aggRow{}
	for _, tl := range entries {
		row := aggs[tl.Action]
		if row == nil {
			row = &aggRow{Action: tl.Action, Reasons: map[string]int{}}
			aggs[tl.Action] = row
		}
		row.Trades++
		row.Qty += tl.Qty
		row.LeverageSum += tl.Leverage
		row.PnL += tl.PnL
		if tl.Outcome == "WIN" {
			row.Wins++
		} else {
			row.Losses++
		}
		if tl.ExitReason != "" {
			row.Reasons[tl.ExitReason]++
		}
	}
	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	w := csv.NewWriter(out)
	headers := []string{"action", "trades", "wins", "losses", "win_rate", "qty", "avg_leverage", "take_profit", "stop_loss", "timeout", "realized_pnl"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	var total aggRow
	total.Reasons = map[string]int{}
	for _, k := range keys {
		r := aggs[k]
		if err := w.Write(record(r.Action, r)); err != nil {
			return "", err
		}
		total.Trades += r.Trades
		total.Wins += r.Wins
		total.Losses += r.Losses
		total.Qty += r.Qty
		total.LeverageSum += r.LeverageSum
		total.PnL += r.PnL
		for reason, n := range r.Reasons {
			total.Reasons[reason] += n
		}
	}
	if err := w.Write(record("TOTAL", &total)); err != nil {
		return "", err
	}
	w.Flush()
	return outPath, w.Error()
}

func record(label string, r *aggRow) []string {
	var winRate, avgLev float64
	if r.Trades > 0 {
		winRate = float64(r.Wins) / float64(r.Trades)
		avgLev = float64(r.LeverageSum) / float64(r.Trades)
	}
	return []string{
		label,
		strconv.Itoa(r.Trades),
		strconv.Itoa(r.Wins),
		strconv.Itoa(r.Losses),
		fmt.Sprintf("%.4f", winRate),
		strconv.Itoa(r.Qty),
		fmt.Sprintf("%.2f", avgLev),
		strconv.Itoa(r.Reasons["TAKE_PROFIT"]),
		strconv.Itoa(r.Reasons["STOP_LOSS"]),
		strconv.Itoa(r.Reasons["TIMEOUT"] + r.Reasons["NO_PRICE"]),
		fmt.Sprintf("%.4f", r.PnL),
	}
}

// ShouldRunNow reports whether the previous UTC day still lacks a summary.
func (e *eodSummarizer) ShouldRunNow(now time.Time) (bool, time.Time) {
	day := now.UTC().AddDate(0, 0, -1)
	if _, err := os.Stat(eodCSVPath(day)); errors.Is(err, os.ErrNotExist) {
		if _, err := os.Stat(tradelog.DailyPath(day)); err == nil {
			return true, day
		}
	}
	return false, day
}
