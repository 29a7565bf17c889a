package interfaces

import (
	"context"
	"errors"

	"eth-scalper/internal/types"
)

var (
	// ErrNoData marks transient unavailability: timeouts, transport errors, malformed payloads.
	ErrNoData = errors.New("no market data")
	// ErrExecution marks a rejected or failed order submission.
	ErrExecution = errors.New("execution failed")
)

// MarketData abstracts price history, order book and last price for the traded symbol.
type MarketData interface {
	// Candles returns up to limit candles, newest last. An empty slice means no data.
	Candles(ctx context.Context, limit int) ([]types.Candle, error)
	// OrderBook returns nil when no snapshot is available.
	OrderBook(ctx context.Context, depth int) (*types.OrderBook, error)
	// LastPrice falls back to a secondary source when the primary has none.
	LastPrice(ctx context.Context) (float64, bool)
}

// Sentiment abstracts headline retrieval and whale observation. Both return empty
// results when unconfigured or failing.
type Sentiment interface {
	Headlines(ctx context.Context, query string, count int) []types.NewsItem
	LargeTransfers(ctx context.Context, minValue float64) []types.LargeTransfer
}

// Execution abstracts the trading account.
type Execution interface {
	Balance(ctx context.Context) (float64, error)
	// Position returns nil when the side is flat.
	Position(ctx context.Context, side types.Side) (*types.Position, error)
	Open(ctx context.Context, side types.Side, qty, leverage int) (types.OrderAck, error)
	// Close is a no-op when the side is flat.
	Close(ctx context.Context, side types.Side) (types.OrderAck, error)
}
