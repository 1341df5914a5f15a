package reputation

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Holder is one entry of a token's holder list.
type Holder struct {
	Address    string
	Balance    *big.Int
	Percent    float64
	IsContract bool
}

// Moralis fetches token holder distributions.
type Moralis struct {
	baseURL string
	apiKey  string
	chain   string
	limit   int
	client  *http.Client
}

// NewMoralis creates a holder API client for chain (e.g. "eth").
func NewMoralis(baseURL, apiKey, chain string, timeout time.Duration) *Moralis {
	return &Moralis{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		chain:   chain,
		limit:   20,
		client:  &http.Client{Timeout: timeout},
	}
}

type ownersResponse struct {
	Result []struct {
		OwnerAddress string  `json:"owner_address"`
		Balance      string  `json:"balance"`
		Percent      float64 `json:"percentage_relative_to_total_supply"`
		IsContract   bool    `json:"is_contract"`
	} `json:"result"`
}

// TopHolders returns the largest holders of token, largest first.
func (m *Moralis) TopHolders(ctx context.Context, token common.Address) ([]Holder, error) {
	q := url.Values{}
	q.Set("chain", m.chain)
	q.Set("order", "DESC")
	q.Set("limit", strconv.Itoa(m.limit))

	endpoint := fmt.Sprintf("%s/erc20/%s/owners?%s", m.baseURL, token.Hex(), q.Encode())
	req, err := newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", m.apiKey)

	var resp ownersResponse
	if err := doJSON(m.client, req, "moralis", &resp); err != nil {
		return nil, err
	}

	holders := make([]Holder, 0, len(resp.Result))
	for _, r := range resp.Result {
		balance, ok := new(big.Int).SetString(r.Balance, 10)
		if !ok {
			balance = new(big.Int)
		}
		holders = append(holders, Holder{
			Address:    strings.ToLower(r.OwnerAddress),
			Balance:    balance,
			Percent:    r.Percent,
			IsContract: r.IsContract,
		})
	}
	return holders, nil
}
