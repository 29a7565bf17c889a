package paper

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/types"
)

// StaticMarket is an offline random-walk ETH market for dry runs without network access.
type StaticMarket struct {
	mu       sync.Mutex
	rng      *rand.Rand
	price    float64
	step     float64
	interval time.Duration
	history  []types.Candle
	now      func() time.Time
}

var _ interfaces.MarketData = (*StaticMarket)(nil)

func NewStaticMarket(start float64, seed int64) *StaticMarket {
	m := &StaticMarket{
		rng:      rand.New(rand.NewSource(seed)),
		price:    start,
		step:     0.0006,
		interval: time.Minute,
		now:      time.Now,
	}
	ts := m.now().Add(-200 * m.interval)
	for i := 0; i < 200; i++ {
		m.history = append(m.history, m.nextCandle(ts.Add(time.Duration(i)*m.interval)))
	}
	return m
}

func (m *StaticMarket) nextCandle(ts time.Time) types.Candle {
	open := m.price
	ret := m.rng.NormFloat64() * m.step
	m.price = math.Max(1, open*(1+ret))
	hi := math.Max(open, m.price) * (1 + math.Abs(m.rng.NormFloat64())*m.step/4)
	lo := math.Min(open, m.price) * (1 - math.Abs(m.rng.NormFloat64())*m.step/4)
	return types.Candle{
		Ts:    ts.UnixMilli(),
		Open:  open,
		High:  hi,
		Low:   lo,
		Close: m.price,
		Vol:   10 + m.rng.Float64()*90,
	}
}

// Candles advances the walk by one bar per call and returns the newest limit bars.
func (m *StaticMarket) Candles(ctx context.Context, limit int) ([]types.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	last := time.UnixMilli(m.history[len(m.history)-1].Ts)
	m.history = append(m.history, m.nextCandle(last.Add(m.interval)))
	if len(m.history) > 1000 {
		m.history = m.history[len(m.history)-1000:]
	}
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]types.Candle, limit)
	copy(out, m.history[len(m.history)-limit:])
	return out, nil
}

func (m *StaticMarket) OrderBook(ctx context.Context, depth int) (*types.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	book := &types.OrderBook{}
	tick := 0.01 * math.Max(1, m.price/100)
	for i := 0; i < depth; i++ {
		off := float64(i+1) * tick
		book.Bids = append(book.Bids, types.Level{Price: m.price - off, Size: m.rng.Float64() * 20})
		book.Asks = append(book.Asks, types.Level{Price: m.price + off, Size: m.rng.Float64() * 20})
	}
	return book, nil
}

// LastPrice jitters the mark slightly so the exit monitor sees movement between bars.
func (m *StaticMarket) LastPrice(ctx context.Context) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = math.Max(1, m.price*(1+m.rng.NormFloat64()*m.step/3))
	return m.price, true
}
