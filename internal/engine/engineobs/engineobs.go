package engineobs

import (
	"context"
	"time"

	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/trace"
	"eth-scalper/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Cycle(ctx context.Context) (*types.CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Cycle.observed")
	defer span.End()

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Starting trading cycle")

	result, err := oe.engine.Cycle(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Trading cycle failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, err
	}

	args := []any{
		"phase", result.Phase,
		"action", result.Action,
		"confidence", result.Confidence,
		"reason", result.Reason,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if result.Trade != nil {
		args = append(args, "outcome", result.Trade.Outcome, "pnl", result.Trade.ExitPnL)
	}
	logger.InfoSkip(ctx, 1, "Trading cycle completed", args...)
	return result, nil
}

func (oe *observableEngine) Snapshot() types.EngineState {
	return oe.engine.Snapshot()
}

func (oe *observableEngine) Weights() [3]float64 {
	return oe.engine.Weights()
}

func (oe *observableEngine) KillSwitchTripped() bool {
	return oe.engine.KillSwitchTripped()
}

func (oe *observableEngine) ResetLossStreak(ctx context.Context) error {
	err := oe.engine.ResetLossStreak(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Loss streak reset failed", err)
	}
	return err
}

func (oe *observableEngine) Flatten(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "engine.Flatten")
	defer span.End()
	oe.engine.Flatten(ctx)
}
