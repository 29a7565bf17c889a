package risk

import (
	"math"

	"eth-scalper/internal/store"
	"eth-scalper/internal/ta"
)

const (
	volatilityMinCloses = 10
	fallbackVolatility  = 0.002
)

// Sizer maps confidence and account state to leverage, quantity and exit targets.
type Sizer struct {
	minLev, maxLev int
	exponent       float64
	marginFraction float64

	scalpMin, scalpMax float64

	derateAfter    int
	derateLeverage float64
	derateScalp    float64
	maxLosses      int
}

func NewSizer(cfg *store.Config) *Sizer {
	return &Sizer{
		minLev:         cfg.Leverage.Min,
		maxLev:         cfg.Leverage.Max,
		exponent:       cfg.Leverage.Exponent,
		marginFraction: cfg.MarginFraction(),
		scalpMin:       cfg.Risk.ScalpMin,
		scalpMax:       cfg.Risk.ScalpMax,
		derateAfter:    cfg.Risk.DerateAfterLosses,
		derateLeverage: cfg.Risk.DerateLeverage,
		derateScalp:    cfg.Risk.DerateScalp,
		maxLosses:      cfg.Risk.MaxConsecutiveLosses,
	}
}

// Leverage is round(min + (max-min)*conf^exponent), clamped to [min, max].
func (s *Sizer) Leverage(confidence float64) int {
	c := math.Max(0, math.Min(1, confidence))
	if math.IsNaN(confidence) {
		c = 0
	}
	lev := int(math.Round(float64(s.minLev) + float64(s.maxLev-s.minLev)*math.Pow(c, s.exponent)))
	return s.clampLev(lev)
}

// Quantity is the whole-unit size that commits marginFraction of balance at leverage.
func (s *Sizer) Quantity(balance, price float64, leverage int) int {
	if balance <= 0 || price <= 0 || leverage <= 0 {
		return 0
	}
	q := math.Floor(balance * s.marginFraction * float64(leverage) / price)
	if q < 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return 0
	}
	return int(q)
}

// ScalpTarget is twice the close-to-close volatility, clamped to the configured band.
func (s *Sizer) ScalpTarget(closes []float64) float64 {
	vol := ta.Volatility(closes, volatilityMinCloses, fallbackVolatility)
	return math.Max(s.scalpMin, math.Min(s.scalpMax, vol*2))
}

func (s *Sizer) Defensive(consecutiveLosses int) bool {
	return consecutiveLosses >= s.derateAfter
}

// Derate shrinks leverage (floored at the minimum) and tightens the scalp target
// once the loss streak reaches the defensive threshold.
func (s *Sizer) Derate(consecutiveLosses, leverage int, scalp float64) (int, float64) {
	if !s.Defensive(consecutiveLosses) {
		return leverage, scalp
	}
	lev := max(s.minLev, int(float64(leverage)*s.derateLeverage))
	return lev, scalp * s.derateScalp
}

// KillSwitch reports whether the loss streak forbids new cycles.
func (s *Sizer) KillSwitch(consecutiveLosses int) bool {
	return consecutiveLosses >= s.maxLosses
}

func (s *Sizer) MaxLosses() int { return s.maxLosses }

func (s *Sizer) clampLev(lev int) int {
	if lev < s.minLev {
		return s.minLev
	}
	if lev > s.maxLev {
		return s.maxLev
	}
	return lev
}
