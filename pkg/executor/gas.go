package executor

import (
	"math/big"
	"math/rand/v2"

	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/apmfree78/snipper-sub000/pkg/config"
	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// FeeTier selects the priority fee.
type FeeTier int

const (
	TierStandard FeeTier = iota
	TierElevated
	TierAggressive
)

func (t FeeTier) String() string {
	switch t {
	case TierElevated:
		return "elevated"
	case TierAggressive:
		return "aggressive"
	default:
		return "standard"
	}
}

// TierForAttempt escalates the tier with the number of earlier failed
// attempts: none is standard, one is elevated, two or more aggressive.
func TierForAttempt(failures token.Counter) FeeTier {
	switch {
	case failures == 0:
		return TierStandard
	case failures == 1:
		return TierElevated
	default:
		return TierAggressive
	}
}

// buyTier picks the tier of a buy. PurchaseAttempts already counts the
// attempt in flight while SellAttempts counts failures only.
func buyTier(tok *token.Token) FeeTier {
	failures := tok.PurchaseAttempts
	if failures > 0 {
		failures--
	}
	return TierForAttempt(failures)
}

// london is any chain config with EIP-1559 active from genesis.
var london = &params.ChainConfig{ChainID: big.NewInt(1), LondonBlock: big.NewInt(0)}

// NextBaseFee returns the base fee of the block after parent.
func NextBaseFee(parent *types.Header) *big.Int {
	if parent == nil || parent.BaseFee == nil {
		return new(big.Int)
	}
	return eip1559.CalcBaseFee(london, parent)
}

// Fees are EIP-1559 fee caps for one transaction.
type Fees struct {
	TipCap *big.Int
	FeeCap *big.Int
}

// GasStrategy prices transactions from the parent header.
type GasStrategy struct {
	bufferPercent float64
	jitterPercent float64
	tips          config.FeeTips
	random        func() float64
}

// NewGasStrategy creates a strategy from config
func NewGasStrategy(cfg config.GasConfig) (*GasStrategy, error) {
	tips, err := cfg.Tips()
	if err != nil {
		return nil, err
	}
	return &GasStrategy{
		bufferPercent: cfg.BufferPercent,
		jitterPercent: cfg.JitterPercent,
		tips:          tips,
		random:        rand.Float64,
	}, nil
}

func (g *GasStrategy) tip(tier FeeTier) *big.Int {
	switch tier {
	case TierElevated:
		return new(big.Int).Set(g.tips.Elevated)
	case TierAggressive:
		return new(big.Int).Set(g.tips.Aggressive)
	default:
		return new(big.Int).Set(g.tips.Standard)
	}
}

// Fees returns the buffered, jittered next base fee plus the tier tip,
// clamped to the configured fee cap.
func (g *GasStrategy) Fees(parent *types.Header, tier FeeTier) Fees {
	base := NextBaseFee(parent)
	buffered := new(big.Int).Add(base, market.PercentOf(base, g.bufferPercent))
	jitter := market.PercentOf(buffered, g.jitterPercent*g.random())

	tip := g.tip(tier)
	feeCap := new(big.Int).Add(buffered, jitter)
	feeCap.Add(feeCap, tip)

	if g.tips.MaxFee != nil && g.tips.MaxFee.Sign() > 0 && feeCap.Cmp(g.tips.MaxFee) > 0 {
		feeCap.Set(g.tips.MaxFee)
		if tip.Cmp(feeCap) > 0 {
			tip.Set(feeCap)
		}
	}
	return Fees{TipCap: tip, FeeCap: feeCap}
}

// WithBribe adds extra wei per gas to both caps.
func (f Fees) WithBribe(perGas *big.Int) Fees {
	return Fees{
		TipCap: new(big.Int).Add(f.TipCap, perGas),
		FeeCap: new(big.Int).Add(f.FeeCap, perGas),
	}
}
