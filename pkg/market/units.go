package market

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// ParseEther converts a decimal ETH string such as "0.05" into wei.
func ParseEther(s string) (*big.Int, error) {
	return ParseUnits(s, etherDecimals)
}

// ParseUnits converts a decimal string into the integer amount for decimals.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", s)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// FormatUnits renders an integer amount with decimals as a decimal string.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// FormatEther renders wei as ETH.
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, etherDecimals)
}

// PercentOf returns amount * percent / 100 using decimal arithmetic, rounded down.
func PercentOf(amount *big.Int, percent float64) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	return decimal.NewFromBigInt(amount, 0).
		Mul(decimal.NewFromFloat(percent)).
		Div(decimal.NewFromInt(100)).
		Floor().
		BigInt()
}

// MultipleOf returns amount * multiple rounded down.
func MultipleOf(amount *big.Int, multiple float64) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	return decimal.NewFromBigInt(amount, 0).Mul(decimal.NewFromFloat(multiple)).Floor().BigInt()
}
