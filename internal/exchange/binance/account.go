package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/store"
	"eth-scalper/internal/types"
)

// Account implements interfaces.Execution with market orders in hedge mode,
// one position per side.
type Account struct {
	client  *futures.Client
	symbol  string
	quote   string
	timeout time.Duration
}

var _ interfaces.Execution = (*Account)(nil)

func NewAccount(client *futures.Client, cfg *store.Config) *Account {
	return &Account{
		client:  client,
		symbol:  cfg.Symbol,
		quote:   cfg.Exchange.QuoteAsset,
		timeout: time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
	}
}

func (a *Account) Balance(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	acc, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: account: %v", interfaces.ErrNoData, err)
	}
	for _, asset := range acc.Assets {
		if asset.Asset != a.quote {
			continue
		}
		d, err := decimal.NewFromString(asset.AvailableBalance)
		if err != nil {
			return 0, fmt.Errorf("%w: balance %q: %v", interfaces.ErrNoData, asset.AvailableBalance, err)
		}
		f, _ := d.Float64()
		return f, nil
	}
	return 0, nil
}

func (a *Account) Position(ctx context.Context, side types.Side) (*types.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	risks, err := a.client.NewGetPositionRiskService().Symbol(a.symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: position risk: %v", interfaces.ErrNoData, err)
	}
	for _, r := range risks {
		if r.PositionSide != string(side) {
			continue
		}
		amt, err := decimal.NewFromString(r.PositionAmt)
		if err != nil || amt.IsZero() {
			return nil, nil
		}
		entry, _ := decimal.NewFromString(r.EntryPrice)
		ep, _ := entry.Float64()
		return &types.Position{
			Side:       side,
			Quantity:   int(amt.Abs().IntPart()),
			EntryPrice: ep,
		}, nil
	}
	return nil, nil
}

func (a *Account) Open(ctx context.Context, side types.Side, qty, leverage int) (types.OrderAck, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if _, err := a.client.NewChangeLeverageService().Symbol(a.symbol).Leverage(leverage).Do(ctx); err != nil {
		return types.OrderAck{}, fmt.Errorf("%w: set leverage %d: %v", interfaces.ErrExecution, leverage, err)
	}
	orderSide := futures.SideTypeBuy
	if side == types.SideShort {
		orderSide = futures.SideTypeSell
	}
	return a.market(ctx, orderSide, side, qty)
}

// Close flattens side with an opposing market order; a flat side is a no-op.
func (a *Account) Close(ctx context.Context, side types.Side) (types.OrderAck, error) {
	pos, err := a.Position(ctx, side)
	if err != nil {
		return types.OrderAck{}, err
	}
	if pos == nil || pos.Quantity <= 0 {
		return types.OrderAck{Status: "NO_POSITION"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	orderSide := futures.SideTypeSell
	if side == types.SideShort {
		orderSide = futures.SideTypeBuy
	}
	return a.market(ctx, orderSide, side, pos.Quantity)
}

func (a *Account) market(ctx context.Context, orderSide futures.SideType, side types.Side, qty int) (types.OrderAck, error) {
	posSide := futures.PositionSideTypeLong
	if side == types.SideShort {
		posSide = futures.PositionSideTypeShort
	}
	res, err := a.client.NewCreateOrderService().
		Symbol(a.symbol).
		Side(orderSide).
		PositionSide(posSide).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.Itoa(qty)).
		Do(ctx)
	if err != nil {
		return types.OrderAck{}, fmt.Errorf("%w: %s %s %d: %v", interfaces.ErrExecution, orderSide, side, qty, err)
	}
	return types.OrderAck{
		OrderID: strconv.FormatInt(res.OrderID, 10),
		Status:  string(res.Status),
	}, nil
}
