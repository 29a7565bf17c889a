package interfaces

import "time"

// EodSummarizer turns a day's settled-trade log into a CSV summary.
type EodSummarizer interface {
	// SummarizeDay returns the CSV path, or "" when the day had no trades.
	SummarizeDay(t time.Time) (string, error)
	// ShouldRunNow reports whether the previous UTC day needs a summary, and which day that is.
	ShouldRunNow(now time.Time) (bool, time.Time)
}
