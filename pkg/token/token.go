// Package token holds the in-flight token record tracked by the sniper and
// the lifecycle states it moves through.
package token

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Venue identifies the pool flavour a token was detected on.
type Venue string

const (
	VenueUniswapV2 Venue = "uniswap_v2"
	VenueUniswapV3 Venue = "uniswap_v3"
)

// Token represents one ERC-20 candidate under observation.
type Token struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	Fee         uint32 `json:"fee"`
	TickSpacing int32  `json:"tick_spacing"`
	PoolAddress string `json:"pool_address"`
	Venue       Venue  `json:"venue"`
	IsToken0    bool   `json:"is_token_0"`
	SourceCode  string `json:"-"`

	State      State     `json:"state"`
	Liquidity  Liquidity `json:"liquidity"`
	IsTradable bool      `json:"is_tradable"`

	AmountBought      *big.Int  `json:"amount_bought"`
	EthSpent          *big.Int  `json:"eth_spent"`
	TimeOfPurchase    time.Time `json:"time_of_purchase"`
	EthReceivedAtSale *big.Int  `json:"eth_received_at_sale"`
	TxGasCost         *big.Int  `json:"tx_gas_cost"`

	TimeBuckets   []Bucket `json:"time_buckets"`
	VolumeBuckets []Bucket `json:"volume_buckets"`

	PurchaseAttempts Counter `json:"purchase_attempts"`
	SellAttempts     Counter `json:"sell_attempts"`
	HoneypotChecks   Counter `json:"honeypot_checks"`
	HolderChecks     Counter `json:"holder_checks"`

	DetectedAt    time.Time `json:"detected_at"`
	Verdict       string    `json:"verdict,omitempty"`
	RemovalReason string    `json:"removal_reason,omitempty"`
}

// New returns a freshly detected token keyed by its normalized address.
func New(address common.Address, pool common.Address, venue Venue, now time.Time) *Token {
	return &Token{
		Address:           NormalizeAddress(address.Hex()),
		PoolAddress:       NormalizeAddress(pool.Hex()),
		Venue:             venue,
		State:             Detected,
		Liquidity:         NewLiquidity(TierZero, nil),
		AmountBought:      new(big.Int),
		EthSpent:          new(big.Int),
		EthReceivedAtSale: new(big.Int),
		TxGasCost:         new(big.Int),
		DetectedAt:        now,
	}
}

// NormalizeAddress returns the canonical lowercase 0x-prefixed form used as registry key.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		addr = "0x" + addr
	}
	return strings.ToLower("0x" + addr[2:])
}

// CommonAddress returns the token address as a go-ethereum address.
func (t *Token) CommonAddress() common.Address {
	return common.HexToAddress(t.Address)
}

// Pool returns the pool address as a go-ethereum address.
func (t *Token) Pool() common.Address {
	return common.HexToAddress(t.PoolAddress)
}

// Label is the human readable identifier used in decision logs.
func (t *Token) Label() string {
	if t.Symbol == "" && t.Name == "" {
		return t.Address
	}
	return t.Name + " (" + t.Symbol + ")"
}

// AddGasCost accumulates gas spent on any transaction for this token.
func (t *Token) AddGasCost(cost *big.Int) {
	if cost == nil || cost.Sign() == 0 {
		return
	}
	if t.TxGasCost == nil {
		t.TxGasCost = new(big.Int)
	}
	t.TxGasCost.Add(t.TxGasCost, cost)
}

// Clone returns a deep copy safe to use outside the registry lock.
func (t *Token) Clone() Token {
	c := *t
	c.AmountBought = copyInt(t.AmountBought)
	c.EthSpent = copyInt(t.EthSpent)
	c.EthReceivedAtSale = copyInt(t.EthReceivedAtSale)
	c.TxGasCost = copyInt(t.TxGasCost)
	c.Liquidity = t.Liquidity.clone()
	c.TimeBuckets = cloneBuckets(t.TimeBuckets)
	c.VolumeBuckets = cloneBuckets(t.VolumeBuckets)
	return c
}

// ProfitLoss returns realised ETH received minus ETH spent and gas.
func (t *Token) ProfitLoss() *big.Int {
	pnl := new(big.Int)
	if t.EthReceivedAtSale != nil {
		pnl.Add(pnl, t.EthReceivedAtSale)
	}
	if t.EthSpent != nil {
		pnl.Sub(pnl, t.EthSpent)
	}
	if t.TxGasCost != nil {
		pnl.Sub(pnl, t.TxGasCost)
	}
	return pnl
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
