package engine

import (
	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/journal"
	"eth-scalper/internal/store"
)

// New builds the scalping engine over the given ports. State is loaded from js.
func New(cfg *store.Config, market interfaces.MarketData, news interfaces.Sentiment, exec interfaces.Execution, js journal.Store, opts ...Option) interfaces.Engine {
	return newEngine(cfg, market, news, exec, js, opts...)
}
