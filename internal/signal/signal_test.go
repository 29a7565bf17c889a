package signal

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-scalper/internal/types"
)

func flatCandles(n int, price float64) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		out[i] = types.Candle{Ts: int64(i) * 60_000, Open: price, High: price, Low: price, Close: price}
	}
	return out
}

func TestScoreFlatMarketHolds(t *testing.T) {
	f := NewFusion(NewWeights(DefaultPrior, 0.03), 5, 30, 30)

	sig, err := f.Score(flatCandles(30, 2000), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, sig.Direction)
	assert.Equal(t, 0.0, sig.Confidence)
	assert.Equal(t, 0.0, sig.Rel)
	assert.Equal(t, 2000.0, sig.Price)
}

func TestScoreRequiresMinimumCandles(t *testing.T) {
	f := NewFusion(NewWeights(DefaultPrior, 0.03), 5, 30, 30)

	_, err := f.Score(flatCandles(29, 2000), 0, 0)
	assert.ErrorIs(t, err, ErrNotEnoughCandles)

	_, err = f.Score(flatCandles(30, 0), 0, 0)
	assert.ErrorIs(t, err, ErrZeroPrice)
}

func TestScoreUptrendIsLong(t *testing.T) {
	f := NewFusion(NewWeights(DefaultPrior, 0.03), 5, 30, 30)
	candles := flatCandles(60, 2000)
	for i := range candles {
		candles[i].Close = 2000 + float64(i)*2
	}

	sig, err := f.Score(candles, 0.1, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 1, sig.Direction)
	assert.Greater(t, sig.Rel, 0.0003)
	assert.Greater(t, sig.Confidence, 0.0)
	assert.LessOrEqual(t, sig.Confidence, 1.0)
}

func TestFeaturesAreBounded(t *testing.T) {
	for _, x := range []float64{-1e12, -50, -1, 0, 1, 50, 1e12, math.Inf(1), math.Inf(-1), math.NaN()} {
		feats := Featurize(x, x, x)
		for _, v := range feats.Vec() {
			assert.GreaterOrEqual(t, v, -1.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestWeightsStayNormalised(t *testing.T) {
	w := NewWeights(DefaultPrior, 0.03)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 5000; i++ {
		f := Featurize(rng.NormFloat64()/100, rng.NormFloat64(), rng.NormFloat64())
		outcome := 1.0
		if rng.Intn(2) == 0 {
			outcome = -1
		}
		got := w.Update(f, outcome)

		sum := 0.0
		for _, v := range got {
			assert.GreaterOrEqual(t, v, MinWeight-1e-12)
			assert.LessOrEqual(t, v, MaxWeight)
			sum += v
		}
		require.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestWeightsUpdateRewardsAgreeingFeature(t *testing.T) {
	w := NewWeights(DefaultPrior, 0.03)
	before := w.Get()

	// only the book feature was active and the trade won
	after := w.Update(types.Features{Book: 1}, 1)
	assert.Greater(t, after[2], before[2])
	assert.Less(t, after[0], before[0])
}

func TestWeightsFloorHoldsUnderRepeatedPressure(t *testing.T) {
	w := NewWeights(DefaultPrior, 0.03)
	for i := 0; i < 2000; i++ {
		w.Update(types.Features{Model: 1, News: -1, Book: -1}, 1)
	}
	got := w.Get()
	assert.InDelta(t, MinWeight, got[1], 1e-9)
	assert.InDelta(t, MinWeight, got[2], 1e-9)
	assert.InDelta(t, 1-2*MinWeight, got[0], 1e-9)
}

func TestWeightsFromSlice(t *testing.T) {
	prior := WeightsFromSlice(nil, 0.03).Get()
	for i := range prior {
		assert.InDelta(t, DefaultPrior[i], prior[i], 1e-12)
	}
	got := WeightsFromSlice([]float64{1, 1, 2}, 0.03).Get()
	assert.InDelta(t, 0.25, got[0], 1e-12)
	assert.InDelta(t, 0.5, got[2], 1e-12)
}

func TestAssessNewsNeutralWhenEmpty(t *testing.T) {
	assert.Equal(t, types.NeutralSentiment(), AssessNews(nil))
}

func TestAssessNews(t *testing.T) {
	articles := []types.NewsItem{
		{Title: "Ethereum upgrade launch sparks surge", URL: "https://www.coindesk.com/a"},
		{Title: "Ethereum upgrade launch delayed once more", URL: "https://cointelegraph.com/b"},
		{Title: "Exchange hack drains wallets", Description: "users sell in panic", URL: "https://example.com/c"},
	}
	got := AssessNews(articles)

	// one overlapping pair of three titles, two reputable hosts
	assert.InDelta(t, 0.4*(1.0/3.0)+0.6*(2.0/3.0), got.Credibility, 1e-12)
	// +3/3, +2/3, -2/3 averaged
	assert.InDelta(t, (1.0+2.0/3.0-2.0/3.0)/3.0, got.Score, 1e-12)
	assert.Equal(t, 3, got.Articles)
}

func TestAssessNewsClampsPerArticle(t *testing.T) {
	articles := []types.NewsItem{{Title: "scam hack attack fail drop bear"}}
	got := AssessNews(articles)
	assert.Equal(t, -1.0, got.Score)
	assert.Equal(t, 0.0, got.Credibility)
}

func TestApplyWhales(t *testing.T) {
	whales := []types.LargeTransfer{{Hash: "0x1", Value: 250}}

	pos := ApplyWhales(types.NewsSentiment{Score: 0.1}, whales)
	assert.InDelta(t, 0.3, pos.Score, 1e-12)
	assert.Equal(t, 1, pos.Whales)

	neutral := ApplyWhales(types.NewsSentiment{Score: 0}, whales)
	assert.InDelta(t, -0.2, neutral.Score, 1e-12)

	none := ApplyWhales(types.NewsSentiment{Score: 0.1}, nil)
	assert.Equal(t, 0.1, none.Score)
}

func TestImbalance(t *testing.T) {
	assert.Equal(t, 0.0, Imbalance(nil, 20))
	assert.Equal(t, 0.0, Imbalance(&types.OrderBook{}, 20))

	book := &types.OrderBook{
		Bids: []types.Level{{Price: 1999, Size: 3}, {Price: 1998, Size: 1}},
		Asks: []types.Level{{Price: 2001, Size: 1}, {Price: 2002, Size: 100}},
	}
	assert.InDelta(t, (4.0-101.0)/105.0, Imbalance(book, 20), 1e-12)
	// top level only
	assert.InDelta(t, 0.5, Imbalance(book, 1), 1e-12)
}
