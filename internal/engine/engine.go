package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/journal"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/risk"
	"eth-scalper/internal/signal"
	"eth-scalper/internal/store"
	"eth-scalper/internal/trace"
	"eth-scalper/internal/tradelog"
	"eth-scalper/internal/types"
)

// Reasons reported on cycles that do not trade.
const (
	ReasonNoData      = "insufficient market data"
	ReasonNoSignal    = "no directional edge"
	ReasonZeroQty     = "position size rounds to zero"
	ReasonKillSwitch  = "loss streak kill switch active"
	ReasonTradeClosed = "trade settled"
)

// Engine owns the scalping state machine. Only the worker goroutine calls Cycle;
// readers go through Snapshot, which takes the same lock.
type Engine struct {
	cfg     *store.Config
	market  interfaces.MarketData
	news    interfaces.Sentiment
	exec    interfaces.Execution
	journal journal.Store
	fusion  *signal.Fusion
	weights *signal.Weights
	sizer   *risk.Sizer

	mu    sync.Mutex
	state types.EngineState

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

var _ interfaces.Engine = (*Engine)(nil)

type Option func(*Engine)

// WithSleep replaces the monitor's wait; tests use it to run without wall-clock delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithWeights(w *signal.Weights) Option {
	return func(e *Engine) { e.weights = w }
}

func newEngine(cfg *store.Config, market interfaces.MarketData, news interfaces.Sentiment, exec interfaces.Execution, js journal.Store, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		market:  market,
		news:    news,
		exec:    exec,
		journal: js,
		sizer:   risk.NewSizer(cfg),
		sleep:   sleepCtx,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.weights == nil {
		e.weights = signal.WeightsFromSlice(cfg.Signal.Prior, cfg.Signal.LearningRate)
	}
	e.fusion = signal.NewFusion(e.weights, cfg.Signal.EMAFast, cfg.Signal.EMASlow, cfg.Signal.MinCandles)
	e.state = js.Load(context.Background())
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// inputs is everything one decision needs, gathered concurrently.
type inputs struct {
	candles   []types.Candle
	headlines []types.NewsItem
	whales    []types.LargeTransfer
	book      *types.OrderBook
	balance   float64
	balanceOK bool
}

func (e *Engine) gather(ctx context.Context) (*inputs, error) {
	candles, err := e.market.Candles(ctx, e.cfg.Exchange.CandleLimit)
	if err != nil {
		return nil, err
	}
	if len(candles) < e.cfg.Signal.MinCandles {
		return nil, fmt.Errorf("%w: %d candles, need %d", signal.ErrNotEnoughCandles, len(candles), e.cfg.Signal.MinCandles)
	}

	in := &inputs{candles: candles}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		in.headlines = e.news.Headlines(gctx, e.cfg.News.Query, e.cfg.News.PageSize)
		return nil
	})
	if e.cfg.Onchain.Enabled {
		g.Go(func() error {
			in.whales = e.news.LargeTransfers(gctx, e.cfg.Onchain.MinValue)
			return nil
		})
	}
	g.Go(func() error {
		book, err := e.market.OrderBook(gctx, e.cfg.Exchange.BookDepth)
		if err != nil {
			logger.Debug(gctx, "Order book unavailable, imbalance 0", "error", err)
			return nil
		}
		in.book = book
		return nil
	})
	g.Go(func() error {
		bal, err := e.exec.Balance(gctx)
		if err != nil {
			logger.Warn(gctx, "Balance unavailable, using journaled balance", "error", err)
			return nil
		}
		in.balance, in.balanceOK = bal, true
		return nil
	})
	_ = g.Wait()
	return in, nil
}

// Cycle runs one IDLE -> ENTERING -> MONITORING -> CLOSING -> SETTLED pass.
// Cycles without a trade stay IDLE and report why in Reason.
func (e *Engine) Cycle(ctx context.Context) (*types.CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Cycle")
	defer span.End()

	res := &types.CycleResult{Phase: types.PhaseIdle, Action: types.ActionHold}
	if e.KillSwitchTripped() {
		res.Reason = ReasonKillSwitch
		return res, nil
	}

	in, err := e.gather(ctx)
	if err != nil {
		if errors.Is(err, signal.ErrNotEnoughCandles) || errors.Is(err, interfaces.ErrNoData) {
			logger.Debug(ctx, "Skipping cycle", "reason", ReasonNoData, "error", err)
			res.Reason = ReasonNoData
			return res, nil
		}
		return res, err
	}

	sentiment := types.NeutralSentiment()
	if len(in.headlines) > 0 {
		sentiment = signal.AssessNews(in.headlines)
	}
	sentiment = signal.ApplyWhales(sentiment, in.whales)
	imbalance := signal.Imbalance(in.book, e.cfg.Signal.BookLevels)

	sig, err := e.fusion.Score(in.candles, sentiment.Score, imbalance)
	if err != nil {
		logger.Debug(ctx, "Skipping cycle", "reason", ReasonNoData, "error", err)
		res.Reason = ReasonNoData
		return res, nil
	}

	e.mu.Lock()
	if in.balanceOK && in.balance != e.state.Balance {
		e.state.Balance = in.balance
		e.persistLocked(ctx)
	}
	balance := e.state.Balance
	losses := e.state.ConsecutiveLosses
	e.mu.Unlock()

	leverage := e.sizer.Leverage(sig.Confidence)
	scalp := e.sizer.ScalpTarget(signal.Closes(in.candles))
	if e.sizer.Defensive(losses) {
		leverage, scalp = e.sizer.Derate(losses, leverage, scalp)
		logger.Risk(ctx, e.cfg.Symbol, "DEFENSIVE_DERATE",
			"consecutive_losses", losses, "leverage", leverage, "scalp_target", scalp)
	}
	qty := e.sizer.Quantity(balance, sig.Price, leverage)

	action := types.ActionHold
	if sig.Direction != 0 && math.Abs(sig.Rel) > e.cfg.Signal.RelThreshold {
		if sig.Direction > 0 {
			action = types.ActionBuy
		} else {
			action = types.ActionSell
		}
	}

	res.Action = action
	res.Price = sig.Price
	res.Rel = sig.Rel
	res.Direction = sig.Direction
	res.Confidence = sig.Confidence
	res.Leverage = leverage
	res.Quantity = qty
	res.ScalpTarget = scalp
	res.Features = sig.Features
	res.Sentiment = sentiment
	res.Imbalance = imbalance

	logger.Decision(ctx, e.cfg.Symbol, string(action), sig.Confidence,
		"price", sig.Price, "rel", sig.Rel, "direction", sig.Direction,
		"leverage", leverage, "qty", qty, "scalp_target", scalp,
		"news", sentiment.Score, "credibility", sentiment.Credibility,
		"obi", imbalance, "whales", sentiment.Whales)
	e.logDecision(res)

	switch {
	case action == types.ActionHold:
		res.Reason = ReasonNoSignal
		return res, nil
	case qty <= 0:
		res.Action = types.ActionHold
		res.Reason = ReasonZeroQty
		return res, nil
	}

	trade := e.enter(ctx, action, sig, qty, leverage)
	res.Phase = types.PhaseMonitoring
	ex := e.monitor(ctx, action.Side(), trade.EntryPrice, qty, scalp)
	res.Phase = types.PhaseSettled
	res.Trade = e.settle(ctx, trade, ex)
	res.Reason = ReasonTradeClosed
	return res, nil
}

// enter closes the opposite side, submits the open and records the position
// snapshot. Order failures are logged; the cycle still proceeds to monitoring.
func (e *Engine) enter(ctx context.Context, action types.Action, sig signal.Signal, qty, leverage int) types.Trade {
	side := action.Side()

	if _, err := e.exec.Close(ctx, side.Opposite()); err != nil {
		logger.ErrorWithErr(ctx, "Failed to close opposite side", err, "side", side.Opposite())
	}
	ack, err := e.exec.Open(ctx, side, qty, leverage)
	ackText := fmt.Sprintf("order_id=%s status=%s", ack.OrderID, ack.Status)
	if err != nil {
		logger.ErrorWithErr(ctx, "Open order failed, monitoring anyway", err, "side", side, "qty", qty, "leverage", leverage)
		ackText = "error: " + err.Error()
	}
	if len(ackText) > 200 {
		ackText = ackText[:200]
	}

	pctx, cancel := detach(ctx)
	defer cancel()
	e.mu.Lock()
	e.state.Positions[side] = qty
	e.state.LastAction = action
	e.persistLocked(pctx)
	e.mu.Unlock()

	return types.Trade{
		ID:         uuid.NewString(),
		Timestamp:  e.now().UTC(),
		Action:     action,
		EntryPrice: sig.Price,
		Quantity:   qty,
		Leverage:   leverage,
		Confidence: sig.Confidence,
		Features:   sig.Features,
		OrderAck:   ackText,
	}
}

// settle books the exit: profit, loss streak, position snapshot, trade history,
// then the online weight update.
func (e *Engine) settle(ctx context.Context, t types.Trade, ex exitResult) *types.Trade {
	t.ExitPrice = ex.price
	t.ExitPnL = ex.pnl
	t.Outcome = ex.outcome
	t.ExitReason = ex.reason

	// the exchange side is already closed; book it even when ctx is cancelled
	sctx, cancel := detach(ctx)
	defer cancel()

	var balance float64
	balanceOK := false
	if bal, err := e.exec.Balance(sctx); err == nil {
		balance, balanceOK = bal, true
	}

	e.mu.Lock()
	e.state.Profit += ex.pnl
	if ex.outcome == types.OutcomeWin {
		e.state.ConsecutiveLosses = 0
	} else {
		e.state.ConsecutiveLosses++
	}
	if balanceOK {
		e.state.Balance = balance
	}
	e.state.Positions[t.Action.Side()] = 0
	e.state.Trades = append(e.state.Trades, t)
	losses := e.state.ConsecutiveLosses
	e.persistLocked(sctx)
	e.mu.Unlock()

	w := e.weights.Update(t.Features, ex.outcome.Sign())

	logger.Trade(ctx, e.cfg.Symbol, string(t.Action), t.Quantity, t.EntryPrice, string(t.Outcome),
		"trade_id", t.ID, "exit_price", t.ExitPrice, "pnl", t.ExitPnL, "exit_reason", t.ExitReason,
		"leverage", t.Leverage, "consecutive_losses", losses, "weights", w)
	if err := tradelog.Append(tradelog.Entry{
		ID: t.ID, Symbol: e.cfg.Symbol, Action: string(t.Action), Outcome: string(t.Outcome), ExitReason: t.ExitReason,
		Qty: t.Quantity, Leverage: t.Leverage, Entry: t.EntryPrice, Exit: t.ExitPrice, PnL: t.ExitPnL,
		Confidence: t.Confidence, OrderAck: t.OrderAck,
	}); err != nil {
		logger.Warn(ctx, "Failed to append trade log", "error", err)
	}
	if e.sizer.KillSwitch(losses) {
		logger.Risk(ctx, e.cfg.Symbol, "KILL_SWITCH",
			"consecutive_losses", losses, "max", e.sizer.MaxLosses())
	}
	return &t
}

func (e *Engine) logDecision(res *types.CycleResult) {
	_ = tradelog.AppendDecision(tradelog.DecisionEntry{
		Symbol: e.cfg.Symbol, Action: string(res.Action), Phase: string(res.Phase),
		Confidence: res.Confidence, Price: res.Price, Rel: res.Rel, ScalpTarget: res.ScalpTarget,
		Leverage: res.Leverage, Qty: res.Quantity,
		Features: map[string]float64{
			"model": res.Features.Model, "news": res.Features.News, "book": res.Features.Book,
			"sentiment": res.Sentiment.Score, "credibility": res.Sentiment.Credibility, "obi": res.Imbalance,
		},
	})
}

// persistLocked saves the state; callers hold e.mu.
func (e *Engine) persistLocked(ctx context.Context) {
	if err := e.journal.Save(ctx, e.state); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist engine state", err)
	}
}

func (e *Engine) Snapshot() types.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

func (e *Engine) Weights() [3]float64 {
	return e.weights.Get()
}

func (e *Engine) KillSwitchTripped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sizer.KillSwitch(e.state.ConsecutiveLosses)
}

func (e *Engine) ResetLossStreak(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.state.ConsecutiveLosses
	e.state.ConsecutiveLosses = 0
	logger.Risk(ctx, e.cfg.Symbol, "LOSS_STREAK_RESET", "previous", prev)
	return e.journal.Save(ctx, e.state)
}

// Flatten closes both sides and clears the position snapshot.
func (e *Engine) Flatten(ctx context.Context) {
	for _, side := range []types.Side{types.SideLong, types.SideShort} {
		if _, err := e.exec.Close(ctx, side); err != nil {
			logger.ErrorWithErr(ctx, "Failed to flatten side", err, "side", side)
		}
	}
	e.mu.Lock()
	e.state.Positions[types.SideLong] = 0
	e.state.Positions[types.SideShort] = 0
	e.persistLocked(ctx)
	e.mu.Unlock()
	logger.Risk(ctx, e.cfg.Symbol, "FLATTEN")
}
