package onchain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"eth-scalper/internal/api"
	"eth-scalper/internal/types"
)

const DefaultEtherscanBase = "https://api.etherscan.io"

// Etherscan watches recent internal transactions for large ETH transfers.
type Etherscan struct {
	client *api.Client
	key    string
	window int
}

type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type internalTx struct {
	Hash  string `json:"hash"`
	To    string `json:"to"`
	Value string `json:"value"`
}

func NewEtherscan(key string, opts ...api.ClientOption) *Etherscan {
	base := []api.ClientOption{api.WithBaseURL(DefaultEtherscanBase)}
	return &Etherscan{client: api.NewClient(append(base, opts...)...), key: key, window: 50}
}

// LargeTransfers returns transfers of at least minValue ETH among the latest window
// internal transactions. An Etherscan "no transactions" reply is not an error.
func (e *Etherscan) LargeTransfers(ctx context.Context, minValue float64) ([]types.LargeTransfer, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlistinternal")
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("page", "1")
	q.Set("offset", fmt.Sprint(e.window))
	q.Set("sort", "desc")
	q.Set("apikey", e.key)

	var resp etherscanResponse
	if err := e.client.GetJSON(ctx, "/api", q, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "1" {
		return nil, nil
	}
	var txs []internalTx
	if err := json.Unmarshal(resp.Result, &txs); err != nil {
		return nil, fmt.Errorf("decode etherscan result: %w", err)
	}

	threshold := decimal.NewFromFloat(minValue)
	var out []types.LargeTransfer
	for _, tx := range txs {
		wei, err := decimal.NewFromString(tx.Value)
		if err != nil {
			continue
		}
		eth := wei.Shift(-18)
		if eth.LessThan(threshold) {
			continue
		}
		v, _ := eth.Float64()
		out = append(out, types.LargeTransfer{Hash: tx.Hash, To: tx.To, Value: v})
	}
	return out, nil
}
