package journal

import (
	"context"
	"fmt"

	"eth-scalper/internal/store"
	"eth-scalper/internal/types"
)

// Store persists the engine state. Load never fails: a missing or unreadable
// record yields types.DefaultState.
type Store interface {
	Load(ctx context.Context) types.EngineState
	Save(ctx context.Context, s types.EngineState) error
	Close() error
}

// Open selects the backend named in the journal config section.
func Open(cfg *store.Config) (Store, error) {
	switch cfg.Journal.Backend {
	case "", "json":
		return NewFileStore(cfg.Journal.Path), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Journal.Path)
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Journal.Backend)
	}
}

// normalize fills nil collections so readers never see a partial record.
func normalize(s types.EngineState) types.EngineState {
	if s.Positions == nil {
		s.Positions = map[types.Side]int{}
	}
	for _, side := range []types.Side{types.SideLong, types.SideShort} {
		if _, ok := s.Positions[side]; !ok {
			s.Positions[side] = 0
		}
	}
	if s.Trades == nil {
		s.Trades = []types.Trade{}
	}
	return s
}
