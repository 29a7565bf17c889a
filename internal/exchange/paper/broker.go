package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/types"
)

// PriceFunc supplies the mark used to fill simulated orders.
type PriceFunc func(ctx context.Context) (float64, bool)

// Broker simulates a hedge-mode futures account locally. Fills happen at the
// current mark and realized PnL is credited to the balance on close.
type Broker struct {
	mu        sync.Mutex
	balance   float64
	positions map[types.Side]*types.Position
	price     PriceFunc
	now       func() time.Time
}

var _ interfaces.Execution = (*Broker)(nil)

func NewBroker(balance float64, price PriceFunc) *Broker {
	return &Broker{
		balance:   balance,
		positions: map[types.Side]*types.Position{},
		price:     price,
		now:       time.Now,
	}
}

func (b *Broker) Balance(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

func (b *Broker) Position(ctx context.Context, side types.Side) (*types.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[side]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Open adds to the side's position, averaging the entry price.
func (b *Broker) Open(ctx context.Context, side types.Side, qty, leverage int) (types.OrderAck, error) {
	if side != types.SideLong && side != types.SideShort {
		return types.OrderAck{}, fmt.Errorf("%w: invalid side %q", interfaces.ErrExecution, side)
	}
	if qty <= 0 {
		return types.OrderAck{}, fmt.Errorf("%w: quantity must be positive, got %d", interfaces.ErrExecution, qty)
	}
	px, ok := b.mark(ctx)
	if !ok {
		return types.OrderAck{}, fmt.Errorf("%w: no price to fill %s", interfaces.ErrExecution, side)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p, exists := b.positions[side]
	if !exists {
		p = &types.Position{Side: side, OpenedAt: b.now()}
		b.positions[side] = p
	}
	total := p.Quantity + qty
	p.EntryPrice = (p.EntryPrice*float64(p.Quantity) + px*float64(qty)) / float64(total)
	p.Quantity = total
	p.Leverage = leverage

	ack := types.OrderAck{OrderID: "paper-" + uuid.NewString(), Status: "FILLED"}
	logger.Info(ctx, "[PAPER] Simulated order", "side", side, "qty", qty, "leverage", leverage, "price", px, "order_id", ack.OrderID)
	return ack, nil
}

func (b *Broker) Close(ctx context.Context, side types.Side) (types.OrderAck, error) {
	b.mu.Lock()
	_, open := b.positions[side]
	b.mu.Unlock()
	if !open {
		return types.OrderAck{Status: "NO_POSITION"}, nil
	}

	px, ok := b.mark(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	p, open := b.positions[side]
	if !open {
		return types.OrderAck{Status: "NO_POSITION"}, nil
	}
	if !ok {
		px = p.EntryPrice
	}
	pnl := (px - p.EntryPrice) * float64(p.Quantity)
	if side == types.SideShort {
		pnl = -pnl
	}
	b.balance += pnl
	delete(b.positions, side)

	ack := types.OrderAck{OrderID: "paper-" + uuid.NewString(), Status: "FILLED"}
	logger.Info(ctx, "[PAPER] Simulated close", "side", side, "qty", p.Quantity, "price", px, "pnl", pnl, "balance", b.balance)
	return ack, nil
}

func (b *Broker) mark(ctx context.Context) (float64, bool) {
	if b.price == nil {
		return 0, false
	}
	return b.price(ctx)
}
