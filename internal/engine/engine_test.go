package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-scalper/internal/journal"
	"eth-scalper/internal/store"
	"eth-scalper/internal/tradelog"
	"eth-scalper/internal/types"
)

type fakeMarket struct {
	mu         sync.Mutex
	candles    []types.Candle
	prices     []float64
	next       int
	priceCalls int
}

func (m *fakeMarket) Candles(ctx context.Context, limit int) ([]types.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.candles) == 0 {
		return nil, nil
	}
	return m.candles, nil
}

func (m *fakeMarket) OrderBook(ctx context.Context, depth int) (*types.OrderBook, error) {
	return nil, nil
}

func (m *fakeMarket) LastPrice(ctx context.Context) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceCalls++
	if len(m.prices) == 0 {
		return 0, false
	}
	p := m.prices[min(m.next, len(m.prices)-1)]
	m.next++
	return p, true
}

func (m *fakeMarket) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priceCalls
}

type fakeNews struct{}

func (fakeNews) Headlines(ctx context.Context, query string, count int) []types.NewsItem { return nil }
func (fakeNews) LargeTransfers(ctx context.Context, minValue float64) []types.LargeTransfer {
	return nil
}

type fakeExec struct {
	mu      sync.Mutex
	balance float64
	openErr error
	orders  []string
}

func (x *fakeExec) Balance(ctx context.Context) (float64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.balance, nil
}

func (x *fakeExec) Position(ctx context.Context, side types.Side) (*types.Position, error) {
	return nil, nil
}

func (x *fakeExec) Open(ctx context.Context, side types.Side, qty, leverage int) (types.OrderAck, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.orders = append(x.orders, fmt.Sprintf("open %s %d x%d", side, qty, leverage))
	if x.openErr != nil {
		return types.OrderAck{}, x.openErr
	}
	return types.OrderAck{OrderID: "1", Status: "FILLED"}, nil
}

func (x *fakeExec) Close(ctx context.Context, side types.Side) (types.OrderAck, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.orders = append(x.orders, fmt.Sprintf("close %s", side))
	return types.OrderAck{Status: "NO_POSITION"}, nil
}

func (x *fakeExec) placed() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string(nil), x.orders...)
}

func trend(n int, start, step float64) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		c := start + step*float64(i)
		out[i] = types.Candle{Ts: int64(i) * 60_000, Open: c, High: c, Low: c, Close: c, Vol: 1}
	}
	return out
}

func testConfig() *store.Config {
	cfg := store.Default()
	// pin the scalp target so the profit threshold is positive and predictable
	cfg.Risk.ScalpMin = 0.002
	cfg.Risk.ScalpMax = 0.002
	return cfg
}

type harness struct {
	eng     *Engine
	market  *fakeMarket
	exec    *fakeExec
	journal *journal.FileStore
	slept   int
}

func newHarness(t *testing.T, cfg *store.Config, market *fakeMarket, losses int) *harness {
	t.Helper()
	tradelog.SetDir(t.TempDir())

	js := journal.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	st := types.DefaultState()
	st.ConsecutiveLosses = losses
	require.NoError(t, js.Save(context.Background(), st))

	h := &harness{market: market, exec: &fakeExec{balance: 1000}, journal: js}
	h.eng = newEngine(cfg, market, fakeNews{}, h.exec, js,
		WithSleep(func(ctx context.Context, d time.Duration) error {
			h.slept++
			return ctx.Err()
		}),
		WithClock(func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }),
	)
	return h
}

func lastClose(c []types.Candle) float64 { return c[len(c)-1].Close }

func TestFlatMarketHolds(t *testing.T) {
	market := &fakeMarket{candles: trend(30, 2000, 0), prices: []float64{2000}}
	h := newHarness(t, testConfig(), market, 0)

	res, err := h.eng.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, res.Action)
	assert.Equal(t, types.PhaseIdle, res.Phase)
	assert.Equal(t, 0, res.Direction)
	assert.Equal(t, ReasonNoSignal, res.Reason)
	assert.Empty(t, h.exec.placed())
	assert.Empty(t, h.eng.Snapshot().Trades)
}

func TestInsufficientCandlesStaysIdle(t *testing.T) {
	market := &fakeMarket{candles: trend(10, 2000, 5), prices: []float64{2050}}
	h := newHarness(t, testConfig(), market, 0)

	res, err := h.eng.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseIdle, res.Phase)
	assert.Equal(t, ReasonNoData, res.Reason)
	assert.Empty(t, h.exec.placed())
}

func TestProfitExitAtExactThreshold(t *testing.T) {
	candles := trend(60, 2000, 2)
	entry := lastClose(candles)
	market := &fakeMarket{candles: candles, prices: []float64{entry * (1 + 0.002 - 0.0006)}}
	h := newHarness(t, testConfig(), market, 2)

	res, err := h.eng.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)

	assert.Equal(t, types.ActionBuy, res.Action)
	assert.Equal(t, types.PhaseSettled, res.Phase)
	assert.Equal(t, types.OutcomeWin, res.Trade.Outcome)
	assert.Equal(t, types.ExitTakeProfit, res.Trade.ExitReason)
	assert.Equal(t, 1, market.calls(), "exit on the first check")
	assert.Equal(t, 1, h.slept)
	assert.Greater(t, res.Trade.ExitPnL, 0.0)

	st := h.eng.Snapshot()
	assert.Equal(t, 0, st.ConsecutiveLosses)
	assert.InDelta(t, res.Trade.ExitPnL, st.Profit, 1e-9)
	assert.Equal(t, 0, st.Positions[types.SideLong])
}

func TestProfitExitWaitsForThreshold(t *testing.T) {
	candles := trend(60, 2000, 2)
	entry := lastClose(candles)
	market := &fakeMarket{candles: candles, prices: []float64{entry * 1.0013, entry * 1.0014}}
	h := newHarness(t, testConfig(), market, 0)

	res, err := h.eng.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Equal(t, types.ExitTakeProfit, res.Trade.ExitReason)
	assert.Equal(t, 2, market.calls())
}

func TestCloseOppositeBeforeOpen(t *testing.T) {
	candles := trend(60, 2000, 2)
	market := &fakeMarket{candles: candles, prices: []float64{lastClose(candles) * 1.01}}
	h := newHarness(t, testConfig(), market, 0)

	res, err := h.eng.Cycle(context.Background())
	require.NoError(t, err)

	orders := h.exec.placed()
	require.Len(t, orders, 3)
	assert.Equal(t, "close SHORT", orders[0])
	assert.Equal(t, fmt.Sprintf("open LONG %d x%d", res.Quantity, res.Leverage), orders[1])
	assert.Equal(t, "close LONG", orders[2])
}

func TestShortSideProfitsOnDecline(t *testing.T) {
	candles := trend(60, 2200, -2)
	entry := lastClose(candles)
	market := &fakeMarket{candles: candles, prices: []float64{entry * 0.998}}
	h := newHarness(t, testConfig(), market, 0)

	res, err := h.eng.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Equal(t, types.ActionSell, res.Action)
	assert.Equal(t, types.OutcomeWin, res.Trade.Outcome)
	assert.InDelta(t, (entry-entry*0.998)*float64(res.Quantity), res.Trade.ExitPnL, 1e-6)
	assert.Equal(t, "close LONG", h.exec.placed()[0])
}

func TestStopLossIncrementsStreak(t *testing.T) {
	candles := trend(60, 2000, 2)
	entry := lastClose(candles)
	market := &fakeMarket{candles: candles, prices: []float64{entry * 0.97}}
	h := newHarness(t, testConfig(), market, 1)

	res, err := h.eng.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Equal(t, types.OutcomeLoss, res.Trade.Outcome)
	assert.Equal(t, types.ExitStopLoss, res.Trade.ExitReason)
	assert.Less(t, res.Trade.ExitPnL, 0.0)
	assert.Equal(t, 2, h.eng.Snapshot().ConsecutiveLosses)
}

func TestTimeoutForcesClose(t *testing.T) {
	candles := trend(60, 2000, 2)
	entry := lastClose(candles)

	t.Run("flat price is a loss", func(t *testing.T) {
		market := &fakeMarket{candles: candles, prices: []float64{entry}}
		cfg := testConfig()
		h := newHarness(t, cfg, market, 0)

		res, err := h.eng.Cycle(context.Background())
		require.NoError(t, err)
		require.NotNil(t, res.Trade)
		assert.Equal(t, types.ExitTimeout, res.Trade.ExitReason)
		assert.Equal(t, types.OutcomeLoss, res.Trade.Outcome)
		assert.Equal(t, cfg.MonitorChecks()+1, market.calls())
		assert.Equal(t, 1, h.eng.Snapshot().ConsecutiveLosses)
	})

	t.Run("small gain is a win", func(t *testing.T) {
		market := &fakeMarket{candles: candles, prices: []float64{entry * 1.001}}
		h := newHarness(t, testConfig(), market, 0)

		res, err := h.eng.Cycle(context.Background())
		require.NoError(t, err)
		require.NotNil(t, res.Trade)
		assert.Equal(t, types.ExitTimeout, res.Trade.ExitReason)
		assert.Equal(t, types.OutcomeWin, res.Trade.Outcome)
	})

	t.Run("no price is a loss", func(t *testing.T) {
		market := &fakeMarket{candles: candles}
		h := newHarness(t, testConfig(), market, 0)

		res, err := h.eng.Cycle(context.Background())
		require.NoError(t, err)
		require.NotNil(t, res.Trade)
		assert.Equal(t, types.ExitNoPrice, res.Trade.ExitReason)
		assert.Equal(t, types.OutcomeLoss, res.Trade.Outcome)
		assert.Equal(t, 0.0, res.Trade.ExitPnL)
		assert.Equal(t, "close LONG", h.exec.placed()[2])
	})
}

func TestDerateAfterLossStreak(t *testing.T) {
	candles := trend(60, 2000, 2)
	entry := lastClose(candles)
	cfg := testConfig()

	base := newHarness(t, cfg, &fakeMarket{candles: candles, prices: []float64{entry * 1.01}}, 0)
	normal, err := base.eng.Cycle(context.Background())
	require.NoError(t, err)

	def := newHarness(t, cfg, &fakeMarket{candles: candles, prices: []float64{entry * 1.01}}, 3)
	derated, err := def.eng.Cycle(context.Background())
	require.NoError(t, err)

	wantLev := max(cfg.Leverage.Min, int(float64(normal.Leverage)*0.6))
	assert.Equal(t, wantLev, derated.Leverage)
	assert.InDelta(t, normal.ScalpTarget*0.8, derated.ScalpTarget, 1e-12)
	assert.Equal(t, int(1000*0.8*float64(wantLev)/entry), derated.Quantity)
	assert.InDelta(t, normal.Confidence, derated.Confidence, 1e-12)
}

func TestKillSwitchBlocksCycles(t *testing.T) {
	candles := trend(60, 2000, 2)
	market := &fakeMarket{candles: candles, prices: []float64{lastClose(candles) * 0.97}}
	h := newHarness(t, testConfig(), market, 4)

	res, err := h.eng.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.True(t, h.eng.KillSwitchTripped())

	res, err = h.eng.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonKillSwitch, res.Reason)
	assert.Len(t, h.exec.placed(), 3)

	require.NoError(t, h.eng.ResetLossStreak(context.Background()))
	assert.False(t, h.eng.KillSwitchTripped())
	assert.Equal(t, 0, h.journal.Load(context.Background()).ConsecutiveLosses)
}

func TestOpenErrorIsNotFatal(t *testing.T) {
	candles := trend(60, 2000, 2)
	market := &fakeMarket{candles: candles, prices: []float64{lastClose(candles) * 1.01}}
	h := newHarness(t, testConfig(), market, 0)
	h.exec.openErr = errors.New("margin is insufficient")

	res, err := h.eng.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Contains(t, res.Trade.OrderAck, "margin is insufficient")
}

func TestSettledTradeIsPersistedAndLearned(t *testing.T) {
	candles := trend(60, 2000, 2)
	market := &fakeMarket{candles: candles, prices: []float64{lastClose(candles) * 1.01}}
	h := newHarness(t, testConfig(), market, 0)
	before := h.eng.Weights()

	res, err := h.eng.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)

	st := h.journal.Load(context.Background())
	require.Len(t, st.Trades, 1)
	assert.Equal(t, res.Trade.ID, st.Trades[0].ID)
	assert.Equal(t, types.ActionBuy, st.LastAction)
	assert.Equal(t, 0, st.Positions[types.SideLong])

	after := h.eng.Weights()
	assert.NotEqual(t, before, after)
	assert.InDelta(t, 1.0, after[0]+after[1]+after[2], 1e-9)

	entries, err := tradelog.ReadDay(time.Now())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCancelledMonitorStillCloses(t *testing.T) {
	candles := trend(60, 2000, 2)
	entry := lastClose(candles)
	market := &fakeMarket{candles: candles, prices: []float64{entry}}
	h := newHarness(t, testConfig(), market, 0)

	ctx, cancel := context.WithCancel(context.Background())
	h.eng.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	res, err := h.eng.Cycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Equal(t, types.ExitTimeout, res.Trade.ExitReason)
	orders := h.exec.placed()
	assert.Equal(t, "close LONG", orders[len(orders)-1])
}

func TestCancelledCycleIsJournaled(t *testing.T) {
	tradelog.SetDir(t.TempDir())
	js, err := journal.NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer js.Close()

	candles := trend(60, 2000, 2)
	market := &fakeMarket{candles: candles, prices: []float64{lastClose(candles)}}
	exec := &fakeExec{balance: 1000}
	ctx, cancel := context.WithCancel(context.Background())
	eng := newEngine(testConfig(), market, fakeNews{}, exec, js,
		WithSleep(func(context.Context, time.Duration) error {
			cancel()
			return context.Canceled
		}))

	res, err := eng.Cycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Trade)

	mem := eng.Snapshot()
	disk := js.Load(context.Background())
	require.Len(t, disk.Trades, 1)
	assert.Equal(t, res.Trade.ID, disk.Trades[0].ID)
	assert.Equal(t, mem.ConsecutiveLosses, disk.ConsecutiveLosses)
	assert.Equal(t, 1, disk.ConsecutiveLosses)
	assert.Equal(t, 0, disk.Positions[types.SideLong])
	assert.InDelta(t, mem.Profit, disk.Profit, 1e-9)
}

func TestFlattenClosesBothSides(t *testing.T) {
	market := &fakeMarket{candles: trend(30, 2000, 0)}
	h := newHarness(t, testConfig(), market, 0)

	h.eng.Flatten(context.Background())
	assert.Equal(t, []string{"close LONG", "close SHORT"}, h.exec.placed())
}
