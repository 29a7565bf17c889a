package interfaces

import (
	"context"

	"eth-scalper/internal/types"
)

type Engine interface {
	// Cycle runs one IDLE -> ... -> SETTLED pass.
	Cycle(ctx context.Context) (*types.CycleResult, error)
	Snapshot() types.EngineState
	Weights() [3]float64
	KillSwitchTripped() bool
	ResetLossStreak(ctx context.Context) error
	// Flatten force-closes both sides.
	Flatten(ctx context.Context)
}
