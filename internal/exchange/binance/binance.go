package binance

import (
	"context"
	"fmt"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/store"
	"eth-scalper/internal/types"
)

// PriceSource is a secondary last-price provider.
type PriceSource interface {
	Price(ctx context.Context) (float64, error)
}

// NewFuturesClient builds a USDT-M futures client, on testnet when configured.
func NewFuturesClient(cfg *store.Config, apiKey, secretKey string) *futures.Client {
	if cfg.Exchange.Testnet {
		futures.UseTestnet = true
	}
	return gobinance.NewFuturesClient(apiKey, secretKey)
}

// Market implements interfaces.MarketData over Binance USDT-M futures public endpoints.
type Market struct {
	client   *futures.Client
	symbol   string
	interval string
	timeout  time.Duration
	fallback PriceSource
}

var _ interfaces.MarketData = (*Market)(nil)

func NewMarket(client *futures.Client, cfg *store.Config, fallback PriceSource) *Market {
	return &Market{
		client:   client,
		symbol:   cfg.Symbol,
		interval: cfg.Exchange.CandleInterval,
		timeout:  time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
		fallback: fallback,
	}
}

func (m *Market) Candles(ctx context.Context, limit int) ([]types.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	klines, err := m.client.NewKlinesService().Symbol(m.symbol).Interval(m.interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: klines: %v", interfaces.ErrNoData, err)
	}
	out := make([]types.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := parseKline(k)
		if err != nil {
			logger.Debug(ctx, "Skipping malformed kline", "open_time", k.OpenTime, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *Market) OrderBook(ctx context.Context, depth int) (*types.OrderBook, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res, err := m.client.NewDepthService().Symbol(m.symbol).Limit(depth).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: depth: %v", interfaces.ErrNoData, err)
	}
	book := &types.OrderBook{
		Bids: make([]types.Level, 0, len(res.Bids)),
		Asks: make([]types.Level, 0, len(res.Asks)),
	}
	for _, b := range res.Bids {
		if l, ok := parseLevel(b.Price, b.Quantity); ok {
			book.Bids = append(book.Bids, l)
		}
	}
	for _, a := range res.Asks {
		if l, ok := parseLevel(a.Price, a.Quantity); ok {
			book.Asks = append(book.Asks, l)
		}
	}
	return book, nil
}

// LastPrice reads the futures ticker and falls back to the secondary source.
func (m *Market) LastPrice(ctx context.Context) (float64, bool) {
	p, err := m.ticker(ctx)
	if err == nil {
		return p, true
	}
	logger.Debug(ctx, "Ticker unavailable, trying fallback", "symbol", m.symbol, "error", err)
	if m.fallback == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	p, err = m.fallback.Price(ctx)
	if err != nil || p <= 0 {
		logger.Debug(ctx, "Fallback price unavailable", "error", err)
		return 0, false
	}
	return p, true
}

func (m *Market) ticker(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	prices, err := m.client.NewListPricesService().Symbol(m.symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range prices {
		if p.Symbol != m.symbol {
			continue
		}
		d, err := decimal.NewFromString(p.Price)
		if err != nil {
			return 0, err
		}
		if f, _ := d.Float64(); f > 0 {
			return f, nil
		}
	}
	return 0, fmt.Errorf("no ticker for %s", m.symbol)
}

func parseKline(k *futures.Kline) (types.Candle, error) {
	vals := make([]float64, 5)
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return types.Candle{}, err
		}
		vals[i], _ = d.Float64()
	}
	return types.Candle{Ts: k.OpenTime, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Vol: vals[4]}, nil
}

func parseLevel(price, qty string) (types.Level, bool) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return types.Level{}, false
	}
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return types.Level{}, false
	}
	pf, _ := p.Float64()
	qf, _ := q.Float64()
	return types.Level{Price: pf, Size: qf}, true
}
