package signal

import (
	"errors"
	"math"

	"eth-scalper/internal/ta"
	"eth-scalper/internal/types"
)

var (
	ErrNotEnoughCandles = errors.New("not enough candles")
	ErrZeroPrice        = errors.New("last close is not positive")
)

// Scale factors applied before tanh saturation.
const (
	modelGain = 200.0
	newsGain  = 2.0
	bookGain  = 2.0
)

type Signal struct {
	Direction  int            `json:"direction"`
	Confidence float64        `json:"confidence"`
	Rel        float64        `json:"rel"`
	Price      float64        `json:"price"`
	Features   types.Features `json:"features"`
}

// Fusion scores a directional signal from EMA trend, news sentiment and book imbalance.
type Fusion struct {
	weights    *Weights
	fast, slow int
	minCandles int
}

func NewFusion(weights *Weights, fast, slow, minCandles int) *Fusion {
	return &Fusion{weights: weights, fast: fast, slow: slow, minCandles: minCandles}
}

func (f *Fusion) Weights() *Weights { return f.weights }

func (f *Fusion) Score(candles []types.Candle, sentiment, imbalance float64) (Signal, error) {
	if len(candles) < f.minCandles {
		return Signal{}, ErrNotEnoughCandles
	}
	closes := Closes(candles)
	price := closes[len(closes)-1]
	if price <= 0 {
		return Signal{}, ErrZeroPrice
	}

	rel := ta.RelStrength(closes, f.fast, f.slow)
	feats := Featurize(rel, sentiment, imbalance)
	score := f.weights.Dot(feats)

	return Signal{
		Direction:  sign(score),
		Confidence: clamp(math.Abs(score), 0, 1),
		Rel:        rel,
		Price:      price,
		Features:   feats,
	}, nil
}

// Featurize saturates the raw inputs into [-1, 1].
func Featurize(rel, sentiment, imbalance float64) types.Features {
	return types.Features{
		Model: saturate(rel * modelGain),
		News:  saturate(sentiment * newsGain),
		Book:  saturate(imbalance * bookGain),
	}
}

func Closes(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func saturate(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Tanh(x)
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
