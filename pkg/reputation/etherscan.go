package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Etherscan fetches verified contract source.
type Etherscan struct {
	baseURL string
	apiKey  string
	chainID int64
	client  *http.Client
}

// NewEtherscan creates a client against the v2 multichain endpoint.
func NewEtherscan(baseURL, apiKey string, chainID int64, timeout time.Duration) *Etherscan {
	return &Etherscan{
		baseURL: baseURL,
		apiKey:  apiKey,
		chainID: chainID,
		client:  &http.Client{Timeout: timeout},
	}
}

type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceCodeEntry struct {
	SourceCode   string `json:"SourceCode"`
	ContractName string `json:"ContractName"`
}

// SourceCode returns the verified source of address, or "" when it is unverified.
func (e *Etherscan) SourceCode(ctx context.Context, address common.Address) (string, error) {
	q := url.Values{}
	q.Set("chainid", strconv.FormatInt(e.chainID, 10))
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address.Hex())
	q.Set("apikey", e.apiKey)

	req, err := newRequest(ctx, http.MethodGet, e.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	var resp etherscanResponse
	if err := doJSON(e.client, req, "etherscan", &resp); err != nil {
		return "", err
	}
	if resp.Status != "1" {
		// on failure result is a plain string
		var reason string
		_ = json.Unmarshal(resp.Result, &reason)
		return "", fmt.Errorf("etherscan: %s: %s", resp.Message, reason)
	}

	var entries []sourceCodeEntry
	if err := json.Unmarshal(resp.Result, &entries); err != nil {
		return "", fmt.Errorf("failed to decode etherscan result: %w", err)
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[0].SourceCode, nil
}
