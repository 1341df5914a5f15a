// Package market answers how much liquidity a pool holds and what a swap against it returns.
package market

import (
	"errors"
	"math/big"
)

// Constant-product pools charge 0.3% of the input.
var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
)

var (
	ErrInsufficientInput     = errors.New("insufficient input amount")
	ErrInsufficientOutput    = errors.New("insufficient output amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

// Hop is one pool traversed by a multi-hop swap, oriented in the swap direction.
type Hop struct {
	ReserveIn  *big.Int
	ReserveOut *big.Int
}

// QuoteAmountOut returns the output of swapping amountIn into a constant-product pool.
func QuoteAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	amountInWithFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDenominator)
	denominator.Add(denominator, amountInWithFee)

	return numerator.Quo(numerator, denominator), nil
}

// QuoteAmountIn returns the minimum input that yields amountOut. It rounds up.
func QuoteAmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInsufficientOutput
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, feeDenominator)
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, feeNumerator)

	amountIn := numerator.Quo(numerator, denominator)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}

// GetAmountsOut chains QuoteAmountOut across path. The result starts with
// amountIn and has one entry per hop.
func GetAmountsOut(amountIn *big.Int, path []Hop) ([]*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	if len(path) == 0 {
		return nil, errors.New("empty swap path")
	}
	amounts := make([]*big.Int, 0, len(path)+1)
	amounts = append(amounts, new(big.Int).Set(amountIn))

	current := amountIn
	for _, hop := range path {
		out, err := QuoteAmountOut(current, hop.ReserveIn, hop.ReserveOut)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, out)
		current = out
	}
	return amounts, nil
}
