package ta

import (
	"math"

	"github.com/markcheno/go-talib"
)

// EMA returns the adjusted exponential moving average of vals with the given span,
// weighting every observation from the first one (no SMA seed). Values are
// accumulated as offsets from the first so a flat series returns it exactly.
func EMA(vals []float64, span int) float64 {
	if len(vals) == 0 || span <= 0 {
		return math.NaN()
	}
	alpha := 2.0 / (float64(span) + 1.0)
	base := vals[0]
	num, den := 0.0, 0.0
	for _, v := range vals {
		num = num*(1-alpha) + (v - base)
		den = den*(1-alpha) + 1
	}
	return base + num/den
}

func PctChange(vals []float64) []float64 {
	if len(vals) < 2 {
		return nil
	}
	out := make([]float64, 0, len(vals)-1)
	for i := 1; i < len(vals); i++ {
		if vals[i-1] == 0 {
			continue
		}
		out = append(out, vals[i]/vals[i-1]-1)
	}
	return out
}

// StdDev is the population standard deviation of the whole series.
func StdDev(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	if len(vals) == 1 {
		return 0
	}
	out := talib.StdDev(vals, len(vals), 1.0)
	sd := out[len(out)-1]
	if math.IsNaN(sd) || sd < 0 {
		return 0
	}
	return sd
}

// Volatility is the standard deviation of close-to-close returns; fallback is
// returned when there are minCloses or fewer closes.
func Volatility(closes []float64, minCloses int, fallback float64) float64 {
	if len(closes) <= minCloses {
		return fallback
	}
	r := PctChange(closes)
	if len(r) == 0 {
		return fallback
	}
	return StdDev(r)
}

// RelStrength is the normalised fast/slow EMA spread (fast-slow)/last.
func RelStrength(closes []float64, fast, slow int) float64 {
	if len(closes) == 0 {
		return 0
	}
	last := closes[len(closes)-1]
	if last == 0 {
		return 0
	}
	return (EMA(closes, fast) - EMA(closes, slow)) / last
}
