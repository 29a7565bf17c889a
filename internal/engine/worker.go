package engine

import (
	"context"
	"sync"
	"time"

	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/store"
)

// Worker drives Engine.Cycle on a fixed poll interval until stopped, cancelled
// or halted by the loss-streak kill switch.
type Worker struct {
	eng         interfaces.Engine
	symbol      string
	poll        time.Duration
	closeOnStop bool
	sleep       func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running bool
	halted  bool
	active  bool
	done    chan struct{}
	cycles  int

	// set by Stop, consumed by the loop; Start leaves it alone
	flattenPending bool
}

type WorkerOption func(*Worker)

func WithWorkerSleep(fn func(ctx context.Context, d time.Duration) error) WorkerOption {
	return func(w *Worker) { w.sleep = fn }
}

func NewWorker(eng interfaces.Engine, cfg *store.Config, opts ...WorkerOption) *Worker {
	w := &Worker{
		eng:         eng,
		symbol:      cfg.Symbol,
		poll:        cfg.PollInterval(),
		closeOnStop: cfg.Risk.CloseOnStop,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the loop. ctx must outlive the loop; request contexts are not
// suitable. Returns false when already running.
func (w *Worker) Start(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return false
	}
	w.running = true
	w.halted = false
	if !w.active {
		w.active = true
		w.done = make(chan struct{})
		go w.loop(ctx, w.done)
	}
	logger.Info(ctx, "Worker started", "symbol", w.symbol, "poll", w.poll)
	return true
}

// Stop asks the loop to exit after the current cycle, including its monitoring
// phase. Returns false when not running.
func (w *Worker) Stop(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return false
	}
	w.running = false
	if w.closeOnStop {
		w.flattenPending = true
	}
	logger.Info(ctx, "Worker stop requested", "symbol", w.symbol, "flatten", w.closeOnStop)
	return true
}

func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Idle reports whether no loop goroutine is alive, including one still finishing
// its last cycle after Stop.
func (w *Worker) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.running && !w.active
}

// Halted reports whether the kill switch stopped the loop.
func (w *Worker) Halted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.halted
}

func (w *Worker) Cycles() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cycles
}

// Wait blocks until the loop goroutine has exited or ctx is done.
func (w *Worker) Wait(ctx context.Context) {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		w.Run(ctx)
		w.flattenIfRequested(ctx)

		w.mu.Lock()
		if w.running && ctx.Err() == nil {
			// restarted while winding down
			w.mu.Unlock()
			continue
		}
		w.active = false
		w.running = false
		w.mu.Unlock()
		return
	}
}

// Run executes cycles on the caller's goroutine until the worker is stopped,
// ctx is done or the kill switch trips. Cycle errors are logged, never fatal.
func (w *Worker) Run(ctx context.Context) {
	for {
		if !w.Running() || ctx.Err() != nil {
			return
		}
		// a stop followed by a quick restart never leaves this loop
		w.flattenIfRequested(ctx)
		if w.eng.KillSwitchTripped() {
			w.halt(ctx)
			return
		}

		res, err := w.eng.Cycle(ctx)
		w.mu.Lock()
		w.cycles++
		w.mu.Unlock()
		if err != nil {
			logger.ErrorWithErr(ctx, "Cycle failed", err, "symbol", w.symbol)
		} else if res != nil && res.Trade != nil {
			logger.Info(ctx, "Cycle settled a trade",
				"symbol", w.symbol, "trade_id", res.Trade.ID, "outcome", res.Trade.Outcome, "pnl", res.Trade.ExitPnL)
		}

		if w.eng.KillSwitchTripped() {
			w.halt(ctx)
			return
		}
		if err := w.sleep(ctx, w.poll); err != nil {
			return
		}
	}
}

// flattenIfRequested runs between cycles, never concurrently with one.
func (w *Worker) flattenIfRequested(ctx context.Context) {
	w.mu.Lock()
	pending := w.flattenPending
	w.flattenPending = false
	w.mu.Unlock()
	if pending {
		w.eng.Flatten(context.WithoutCancel(ctx))
	}
}

func (w *Worker) halt(ctx context.Context) {
	w.mu.Lock()
	w.running = false
	w.halted = true
	w.mu.Unlock()
	logger.Risk(ctx, w.symbol, "WORKER_HALTED", "reason", ReasonKillSwitch)
}
