package coingecko

import (
	"context"
	"fmt"
	"net/url"

	"eth-scalper/internal/api"
)

const DefaultBaseURL = "https://api.coingecko.com"

// Client is the secondary last-price source.
type Client struct {
	client   *api.Client
	coinID   string
	currency string
}

func New(opts ...api.ClientOption) *Client {
	base := []api.ClientOption{api.WithBaseURL(DefaultBaseURL), api.WithHeader("Accept", "application/json")}
	return &Client{client: api.NewClient(append(base, opts...)...), coinID: "ethereum", currency: "usd"}
}

func (c *Client) Price(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("ids", c.coinID)
	q.Set("vs_currencies", c.currency)

	var out map[string]map[string]float64
	if err := c.client.GetJSON(ctx, "/api/v3/simple/price", q, &out); err != nil {
		return 0, err
	}
	p, ok := out[c.coinID][c.currency]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("coingecko: no %s/%s price", c.coinID, c.currency)
	}
	return p, nil
}
