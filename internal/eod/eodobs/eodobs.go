package eodobs

import (
	"context"
	"time"

	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/trace"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{
		summarizer: summarizer,
	}
}

func (oes *observableEodSummarizer) SummarizeDay(t time.Time) (string, error) {
	ctx, span := trace.StartSpan(context.Background(), "eod.SummarizeDay")
	defer span.End()

	day := t.UTC().Format("2006-01-02")
	logger.InfoSkip(ctx, 1, "Starting EOD summary generation", "date", day)

	csvPath, err := oes.summarizer.SummarizeDay(t)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "EOD summary generation failed", err, "date", day)
		return "", err
	}
	if csvPath == "" {
		logger.InfoSkip(ctx, 1, "No trades found for EOD summary", "date", day)
		return "", nil
	}

	logger.InfoSkip(ctx, 1, "EOD summary generated successfully", "date", day, "csv_path", csvPath)
	return csvPath, nil
}

func (oes *observableEodSummarizer) ShouldRunNow(now time.Time) (bool, time.Time) {
	ctx, span := trace.StartSpan(context.Background(), "eod.ShouldRunNow")
	defer span.End()

	shouldRun, day := oes.summarizer.ShouldRunNow(now)
	logger.DebugSkip(ctx, 1, "EOD check completed", "should_run", shouldRun, "date", day.Format("2006-01-02"))
	return shouldRun, day
}
