package market

import (
	"fmt"
	"math/big"

	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// Thresholds are inclusive lower bounds, in wei of the base asset, for each
// tier above Micro. Any nonzero amount below VeryLow is Micro.
type Thresholds struct {
	VeryLow *big.Int
	Low     *big.Int
	Medium  *big.Int
	High    *big.Int
}

// Validate checks that the bounds are positive and strictly increasing.
func (t Thresholds) Validate() error {
	bounds := []*big.Int{t.VeryLow, t.Low, t.Medium, t.High}
	for i, b := range bounds {
		if b == nil || b.Sign() <= 0 {
			return fmt.Errorf("liquidity threshold %d must be positive", i)
		}
		if i > 0 && b.Cmp(bounds[i-1]) <= 0 {
			return fmt.Errorf("liquidity thresholds must be strictly increasing")
		}
	}
	return nil
}

// Classify maps a raw base-asset amount to its tier.
func (t Thresholds) Classify(raw *big.Int) token.Liquidity {
	switch {
	case raw == nil || raw.Sign() <= 0:
		return token.NewLiquidity(token.TierZero, nil)
	case raw.Cmp(t.High) >= 0:
		return token.NewLiquidity(token.TierHigh, raw)
	case raw.Cmp(t.Medium) >= 0:
		return token.NewLiquidity(token.TierMedium, raw)
	case raw.Cmp(t.Low) >= 0:
		return token.NewLiquidity(token.TierLow, raw)
	case raw.Cmp(t.VeryLow) >= 0:
		return token.NewLiquidity(token.TierVeryLow, raw)
	default:
		return token.NewLiquidity(token.TierMicro, raw)
	}
}
