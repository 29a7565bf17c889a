package signal

import "eth-scalper/internal/types"

// Imbalance is (bids-asks)/(bids+asks) over the top levels of each side, 0 when empty.
func Imbalance(book *types.OrderBook, levels int) float64 {
	if book == nil {
		return 0
	}
	b := depth(book.Bids, levels)
	a := depth(book.Asks, levels)
	if a+b == 0 {
		return 0
	}
	return (b - a) / (b + a)
}

func depth(side []types.Level, levels int) float64 {
	if levels > 0 && len(side) > levels {
		side = side[:levels]
	}
	sum := 0.0
	for _, l := range side {
		sum += l.Size
	}
	return sum
}
