package token

import (
	"encoding/json"
	"math/big"
)

// Tier classifies the base-asset liquidity of a pool.
type Tier int

const (
	TierZero Tier = iota
	TierMicro
	TierVeryLow
	TierLow
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierZero:
		return "zero"
	case TierMicro:
		return "micro"
	case TierVeryLow:
		return "very_low"
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Liquidity is a tier tagged with the raw base-asset amount that produced it.
type Liquidity struct {
	tier   Tier
	amount *big.Int
}

// NewLiquidity builds a Liquidity value. A zero tier never carries an amount.
func NewLiquidity(tier Tier, amount *big.Int) Liquidity {
	if tier == TierZero || amount == nil {
		return Liquidity{tier: tier}
	}
	return Liquidity{tier: tier, amount: new(big.Int).Set(amount)}
}

// Tier returns the classification.
func (l Liquidity) Tier() Tier {
	return l.tier
}

// Amount returns the raw amount regardless of tier.
func (l Liquidity) Amount() *big.Int {
	if l.amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(l.amount)
}

// Tradable reports whether the tier is above zero and micro.
func (l Liquidity) Tradable() bool {
	return l.tier > TierMicro
}

func (l Liquidity) clone() Liquidity {
	return NewLiquidity(l.tier, l.amount)
}

type liquidityJSON struct {
	Tier   string `json:"tier"`
	Amount string `json:"amount"`
}

// MarshalJSON encodes the tier name with the decimal wei amount.
func (l Liquidity) MarshalJSON() ([]byte, error) {
	return json.Marshal(liquidityJSON{Tier: l.tier.String(), Amount: l.Amount().String()})
}
