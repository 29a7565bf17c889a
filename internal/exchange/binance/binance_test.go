package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/store"
)

type fixedPrice struct {
	p   float64
	err error
}

func (f fixedPrice) Price(ctx context.Context) (float64, error) { return f.p, f.err }

func newTestMarket(t *testing.T, h http.HandlerFunc, fallback PriceSource) *Market {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := gobinance.NewFuturesClient("", "")
	client.BaseURL = srv.URL
	return NewMarket(client, store.Default(), fallback)
}

func TestCandles(t *testing.T) {
	m := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "120", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1700000000000,"2000.0","2002.5","1999.0","2001.0","12.5",1700000059999,"0",10,"0","0","0"],
			[1700000060000,"2001.0","2003.0","2000.5","2002.0","8.0",1700000119999,"0",7,"0","0","0"]
		]`))
	}, nil)

	candles, err := m.Candles(context.Background(), 120)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000060000), candles[1].Ts)
	assert.Equal(t, 2002.0, candles[1].Close)
	assert.Equal(t, 12.5, candles[0].Vol)
}

func TestCandlesTransportErrorIsNoData(t *testing.T) {
	m := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":-1000,"msg":"boom"}`))
	}, nil)

	_, err := m.Candles(context.Background(), 120)
	assert.ErrorIs(t, err, interfaces.ErrNoData)
}

func TestOrderBook(t *testing.T) {
	m := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/depth", r.URL.Path)
		w.Write([]byte(`{"lastUpdateId":1,"E":1,"T":1,
			"bids":[["2000.00","3.0"],["1999.50","1.0"]],
			"asks":[["2000.50","2.0"]]}`))
	}, nil)

	book, err := m.OrderBook(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, 3.0, book.Bids[0].Size)
	assert.Equal(t, 2000.5, book.Asks[0].Price)
}

func TestLastPriceFallsBack(t *testing.T) {
	down := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	p, ok := newTestMarket(t, down, fixedPrice{p: 1999.9}).LastPrice(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 1999.9, p)

	_, ok = newTestMarket(t, down, fixedPrice{err: errors.New("down")}).LastPrice(context.Background())
	assert.False(t, ok)

	_, ok = newTestMarket(t, down, nil).LastPrice(context.Background())
	assert.False(t, ok)
}

func TestLastPriceTicker(t *testing.T) {
	m := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/ticker/price", r.URL.Path)
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"2003.25","time":1700000000000}`))
	}, fixedPrice{p: 1})

	p, ok := m.LastPrice(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 2003.25, p)
}
