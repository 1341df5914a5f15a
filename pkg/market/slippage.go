package market

import (
	"fmt"
	"math/big"
	"strings"
)

// Slippage is the tolerated haircut applied to a quoted minimum output.
type Slippage int

const (
	SlippageNone Slippage = iota
	SlippageOnePercent
	SlippageTwoPercent
	SlippageTenPercent
)

// basis points kept after the haircut
var slippageKeep = map[Slippage]int64{
	SlippageNone:       10000,
	SlippageOnePercent: 9900,
	SlippageTwoPercent: 9800,
	SlippageTenPercent: 9000,
}

func (s Slippage) String() string {
	switch s {
	case SlippageOnePercent:
		return "1%"
	case SlippageTwoPercent:
		return "2%"
	case SlippageTenPercent:
		return "10%"
	default:
		return "none"
	}
}

// ParseSlippage accepts "none", "0", "1%", "2%" and "10%".
func ParseSlippage(s string) (Slippage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "0", "0%":
		return SlippageNone, nil
	case "1", "1%":
		return SlippageOnePercent, nil
	case "2", "2%":
		return SlippageTwoPercent, nil
	case "10", "10%":
		return SlippageTenPercent, nil
	default:
		return SlippageNone, fmt.Errorf("unsupported slippage %q (want none, 1%%, 2%% or 10%%)", s)
	}
}

// Apply returns minOut reduced by the tolerance, rounded down.
func (s Slippage) Apply(minOut *big.Int) *big.Int {
	if minOut == nil {
		return new(big.Int)
	}
	keep, ok := slippageKeep[s]
	if !ok {
		keep = 10000
	}
	out := new(big.Int).Mul(minOut, big.NewInt(keep))
	return out.Quo(out, big.NewInt(10000))
}
