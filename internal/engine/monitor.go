package engine

import (
	"context"
	"time"

	"eth-scalper/internal/logger"
	"eth-scalper/internal/types"
)

// priceEpsilon absorbs float noise when a move lands exactly on a threshold.
const priceEpsilon = 1e-9

// closeTimeout bounds the forced close issued after the caller's context is gone.
const closeTimeout = 10 * time.Second

type exitResult struct {
	reason  string
	price   float64
	pnl     float64
	outcome types.Outcome
	checks  int
}

// favorableMove is the signed fractional move in the position's favour.
func favorableMove(side types.Side, entry, last float64) float64 {
	if entry == 0 {
		return 0
	}
	if side == types.SideShort {
		return (entry - last) / entry
	}
	return (last - entry) / entry
}

// grossPnL is the price difference times quantity; leverage only changes margin.
func grossPnL(side types.Side, entry, last float64, qty int) float64 {
	if side == types.SideShort {
		return (entry - last) * float64(qty)
	}
	return (last - entry) * float64(qty)
}

// monitor polls the last price until the profit or drawdown threshold is hit
// or the allotted checks run out, then forces a close. Profit is tested first.
func (e *Engine) monitor(ctx context.Context, side types.Side, entry float64, qty int, scalp float64) exitResult {
	wait := e.cfg.MonitorWait()
	checks := e.cfg.MonitorChecks()
	profitAt := scalp - e.cfg.Risk.FeeRate
	stopAt := e.cfg.Risk.DrawdownClosePct

	var lastSeen float64
	var haveLast bool
	for i := 1; i <= checks; i++ {
		if err := e.sleep(ctx, wait); err != nil {
			logger.Warn(ctx, "Monitoring interrupted, forcing close", "side", side, "check", i, "error", err)
			break
		}
		last, ok := e.market.LastPrice(ctx)
		if !ok {
			logger.Debug(ctx, "No price during monitoring", "side", side, "check", i)
			continue
		}
		lastSeen, haveLast = last, true
		move := favorableMove(side, entry, last)

		if move >= profitAt-priceEpsilon {
			e.closeSide(ctx, side)
			return exitResult{reason: types.ExitTakeProfit, price: last, pnl: grossPnL(side, entry, last, qty), outcome: types.OutcomeWin, checks: i}
		}
		if -move >= stopAt-priceEpsilon {
			logger.Warn(ctx, "Stop loss triggered",
				"symbol", e.cfg.Symbol, "event", "STOP_LOSS_TRIGGERED",
				"side", side, "entry", entry, "last", last, "drawdown", -move)
			e.closeSide(ctx, side)
			return exitResult{reason: types.ExitStopLoss, price: last, pnl: grossPnL(side, entry, last, qty), outcome: types.OutcomeLoss, checks: i}
		}
	}

	e.closeSide(ctx, side)
	pctx, cancel := detach(ctx)
	if last, ok := e.market.LastPrice(pctx); ok {
		lastSeen, haveLast = last, true
	}
	cancel()
	if !haveLast {
		logger.Warn(ctx, "Forced close without a price, booking a loss", "side", side)
		return exitResult{reason: types.ExitNoPrice, outcome: types.OutcomeLoss, checks: checks}
	}
	pnl := grossPnL(side, entry, lastSeen, qty)
	outcome := types.OutcomeLoss
	if pnl > 0 {
		outcome = types.OutcomeWin
	}
	return exitResult{reason: types.ExitTimeout, price: lastSeen, pnl: pnl, outcome: outcome, checks: checks}
}

// detach keeps ctx values but not its cancellation, bounded by closeTimeout.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
}

// closeSide submits the close even when ctx is already cancelled.
func (e *Engine) closeSide(ctx context.Context, side types.Side) {
	cctx, cancel := detach(ctx)
	defer cancel()
	if _, err := e.exec.Close(cctx, side); err != nil {
		logger.ErrorWithErr(ctx, "Failed to close position", err, "side", side)
	}
}
