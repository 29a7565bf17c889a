package signal

import (
	"math"
	"sync"

	"eth-scalper/internal/types"
)

const (
	MinWeight = 0.01
	MaxWeight = 10.0
)

// DefaultPrior favours the price model over news and book.
var DefaultPrior = [3]float64{0.6, 0.3, 0.1}

// Weights is the adaptive linear model shared by scoring and learning.
// Components always lie in [MinWeight, MaxWeight] and sum to 1.
type Weights struct {
	mu sync.RWMutex
	w  [3]float64
	lr float64
}

func NewWeights(prior [3]float64, learningRate float64) *Weights {
	return &Weights{w: normalize(prior), lr: learningRate}
}

// WeightsFromSlice builds weights from a config prior, falling back to
// DefaultPrior when the slice is not exactly three values.
func WeightsFromSlice(prior []float64, learningRate float64) *Weights {
	p := DefaultPrior
	if len(prior) == 3 {
		copy(p[:], prior)
	}
	return NewWeights(p, learningRate)
}

func (w *Weights) Get() [3]float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.w
}

func (w *Weights) Dot(f types.Features) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return dot(w.w, f.Vec())
}

// Update applies one gradient step toward outcome (+1 win, -1 loss):
// w += lr * (outcome - w.f) * f, then clamp and renormalise.
func (w *Weights) Update(f types.Features, outcome float64) [3]float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	x := f.Vec()
	err := outcome - dot(w.w, x)
	var next [3]float64
	for i := range next {
		next[i] = w.w[i] + w.lr*err*x[i]
	}
	w.w = normalize(next)
	return w.w
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// normalize clamps each component, rescales to sum 1, then pins any component
// that fell under MinWeight and redistributes the remaining mass.
func normalize(v [3]float64) [3]float64 {
	sum := 0.0
	for i := range v {
		if math.IsNaN(v[i]) {
			v[i] = MinWeight
		}
		v[i] = clamp(v[i], MinWeight, MaxWeight)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}

	var pinned [3]bool
	for pass := 0; pass < len(v); pass++ {
		free, fixed := 0.0, 0.0
		changed := false
		for i := range v {
			if !pinned[i] && v[i] < MinWeight {
				pinned[i] = true
				changed = true
			}
			if pinned[i] {
				fixed += MinWeight
			} else {
				free += v[i]
			}
		}
		if !changed {
			break
		}
		for i := range v {
			if pinned[i] {
				v[i] = MinWeight
			} else if free > 0 {
				v[i] *= (1 - fixed) / free
			}
		}
	}
	return v
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
