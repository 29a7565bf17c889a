package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-scalper/internal/store"
	"eth-scalper/internal/types"
)

type scriptedEngine struct {
	mu        sync.Mutex
	cycles    int
	tripAfter int
	failing   bool
	flattened int
}

func (s *scriptedEngine) Cycle(ctx context.Context) (*types.CycleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	if s.failing {
		return nil, errors.New("exchange unreachable")
	}
	return &types.CycleResult{Phase: types.PhaseIdle, Action: types.ActionHold}, nil
}

func (s *scriptedEngine) Snapshot() types.EngineState { return types.DefaultState() }
func (s *scriptedEngine) Weights() [3]float64         { return [3]float64{0.6, 0.3, 0.1} }

func (s *scriptedEngine) KillSwitchTripped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripAfter > 0 && s.cycles >= s.tripAfter
}

func (s *scriptedEngine) ResetLossStreak(ctx context.Context) error { return nil }

func (s *scriptedEngine) Flatten(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flattened++
}

func (s *scriptedEngine) count() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles, s.flattened
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestWorkerHaltsOnKillSwitch(t *testing.T) {
	eng := &scriptedEngine{tripAfter: 3}
	w := NewWorker(eng, store.Default(), WithWorkerSleep(noSleep))

	require.True(t, w.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Wait(ctx)

	cycles, _ := eng.count()
	assert.Equal(t, 3, cycles)
	assert.False(t, w.Running())
	assert.True(t, w.Halted())
}

func TestWorkerSurvivesCycleErrors(t *testing.T) {
	eng := &scriptedEngine{failing: true, tripAfter: 5}
	w := NewWorker(eng, store.Default(), WithWorkerSleep(noSleep))

	require.True(t, w.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Wait(ctx)

	assert.Equal(t, 5, w.Cycles())
}

func TestWorkerStartStop(t *testing.T) {
	eng := &scriptedEngine{}
	tick := make(chan struct{})
	w := NewWorker(eng, store.Default(), WithWorkerSleep(func(ctx context.Context, d time.Duration) error {
		select {
		case tick <- struct{}{}:
		case <-ctx.Done():
		}
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.True(t, w.Start(ctx))
	assert.False(t, w.Start(ctx), "second start is rejected")
	<-tick
	assert.True(t, w.Running())

	assert.True(t, w.Stop(ctx))
	assert.False(t, w.Stop(ctx), "second stop is rejected")
	<-tick

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	w.Wait(waitCtx)
	assert.False(t, w.Running())
	assert.False(t, w.Halted())

	_, flattened := eng.count()
	assert.Equal(t, 0, flattened, "positions stay open by default")
}

func TestWorkerFlattensOnStopWhenConfigured(t *testing.T) {
	cfg := store.Default()
	cfg.Risk.CloseOnStop = true
	eng := &scriptedEngine{}
	tick := make(chan struct{})
	w := NewWorker(eng, cfg, WithWorkerSleep(func(ctx context.Context, d time.Duration) error {
		select {
		case tick <- struct{}{}:
		case <-ctx.Done():
		}
		return ctx.Err()
	}))

	require.True(t, w.Start(context.Background()))
	<-tick
	w.Stop(context.Background())
	<-tick

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Wait(waitCtx)

	_, flattened := eng.count()
	assert.Equal(t, 1, flattened)
}

func TestWorkerRestartKeepsRequestedFlatten(t *testing.T) {
	cfg := store.Default()
	cfg.Risk.CloseOnStop = true
	eng := &scriptedEngine{}
	tick := make(chan struct{})
	w := NewWorker(eng, cfg, WithWorkerSleep(func(ctx context.Context, d time.Duration) error {
		select {
		case tick <- struct{}{}:
		case <-ctx.Done():
		}
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.True(t, w.Start(ctx))
	<-tick

	// stop and restart while the loop is still parked in its sleep
	require.True(t, w.Stop(ctx))
	require.True(t, w.Start(ctx))
	<-tick
	<-tick

	_, flattened := eng.count()
	assert.Equal(t, 1, flattened)
	assert.True(t, w.Running())

	w.Stop(ctx)
	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	w.Wait(waitCtx)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	eng := &scriptedEngine{}
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(eng, store.Default(), WithWorkerSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	w.running = true

	w.Run(ctx)
	cycles, _ := eng.count()
	assert.Equal(t, 1, cycles)
}
