package exchangeobs

import (
	"context"

	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/trace"
	"eth-scalper/internal/types"
)

type observableMarket struct {
	market interfaces.MarketData
}

var _ interfaces.MarketData = (*observableMarket)(nil)

// WrapMarket adds spans and debug logging around market data calls.
func WrapMarket(m interfaces.MarketData) interfaces.MarketData {
	return &observableMarket{market: m}
}

func (om *observableMarket) Candles(ctx context.Context, limit int) ([]types.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "market.Candles")
	defer span.End()

	candles, err := om.market.Candles(ctx, limit)
	if err != nil {
		logger.WarnSkip(ctx, 1, "Failed to fetch candles", "limit", limit, "error", err)
		return nil, err
	}
	logger.DebugSkip(ctx, 1, "Candles fetched", "limit", limit, "count", len(candles))
	return candles, nil
}

func (om *observableMarket) OrderBook(ctx context.Context, depth int) (*types.OrderBook, error) {
	ctx, span := trace.StartSpan(ctx, "market.OrderBook")
	defer span.End()

	book, err := om.market.OrderBook(ctx, depth)
	if err != nil {
		logger.WarnSkip(ctx, 1, "Failed to fetch order book", "depth", depth, "error", err)
		return nil, err
	}
	if book != nil {
		logger.DebugSkip(ctx, 1, "Order book fetched", "bids", len(book.Bids), "asks", len(book.Asks))
	}
	return book, nil
}

func (om *observableMarket) LastPrice(ctx context.Context) (float64, bool) {
	ctx, span := trace.StartSpan(ctx, "market.LastPrice")
	defer span.End()

	price, ok := om.market.LastPrice(ctx)
	if !ok {
		logger.DebugSkip(ctx, 1, "Last price unavailable")
	}
	return price, ok
}

type observableExecution struct {
	exec interfaces.Execution
}

var _ interfaces.Execution = (*observableExecution)(nil)

// WrapExecution adds spans and order logging around account calls.
func WrapExecution(e interfaces.Execution) interfaces.Execution {
	return &observableExecution{exec: e}
}

func (oe *observableExecution) Balance(ctx context.Context) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "execution.Balance")
	defer span.End()

	bal, err := oe.exec.Balance(ctx)
	if err != nil {
		logger.WarnSkip(ctx, 1, "Failed to fetch balance", "error", err)
		return 0, err
	}
	logger.DebugSkip(ctx, 1, "Balance fetched", "balance", bal)
	return bal, nil
}

func (oe *observableExecution) Position(ctx context.Context, side types.Side) (*types.Position, error) {
	ctx, span := trace.StartSpan(ctx, "execution.Position")
	defer span.End()

	pos, err := oe.exec.Position(ctx, side)
	if err != nil {
		logger.WarnSkip(ctx, 1, "Failed to fetch position", "side", side, "error", err)
		return nil, err
	}
	return pos, nil
}

func (oe *observableExecution) Open(ctx context.Context, side types.Side, qty, leverage int) (types.OrderAck, error) {
	ctx, span := trace.StartSpan(ctx, "execution.Open")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order", "side", side, "qty", qty, "leverage", leverage)
	ack, err := oe.exec.Open(ctx, side, qty, leverage)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err, "side", side, "qty", qty, "leverage", leverage)
		return ack, err
	}
	logger.InfoSkip(ctx, 1, "Order placed", "side", side, "order_id", ack.OrderID, "status", ack.Status)
	return ack, nil
}

func (oe *observableExecution) Close(ctx context.Context, side types.Side) (types.OrderAck, error) {
	ctx, span := trace.StartSpan(ctx, "execution.Close")
	defer span.End()

	ack, err := oe.exec.Close(ctx, side)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to close position", err, "side", side)
		return ack, err
	}
	logger.InfoSkip(ctx, 1, "Position close submitted", "side", side, "order_id", ack.OrderID, "status", ack.Status)
	return ack, nil
}
