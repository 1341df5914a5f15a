package market

import (
	"errors"
	"math/big"
	"testing"
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestQuoteAmountOut_KnownValue(t *testing.T) {
	out, err := QuoteAmountOut(big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Int64() != 996 {
		t.Fatalf("expected 996, got %s", out)
	}
}

func TestQuoteAmountOut_Monotonic(t *testing.T) {
	reserveIn, reserveOut := eth(10), eth(20)
	prev := big.NewInt(0)
	for _, in := range []*big.Int{big.NewInt(1), eth(1), eth(5), eth(100), eth(1_000_000)} {
		out, err := QuoteAmountOut(in, reserveIn, reserveOut)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Cmp(prev) <= 0 {
			t.Fatalf("output did not grow: %s <= %s", out, prev)
		}
		if out.Cmp(reserveOut) >= 0 {
			t.Fatalf("output %s drains the pool", out)
		}
		prev = out
	}
}

func TestQuoteAmountOut_Errors(t *testing.T) {
	if _, err := QuoteAmountOut(big.NewInt(0), eth(1), eth(1)); !errors.Is(err, ErrInsufficientInput) {
		t.Fatalf("expected ErrInsufficientInput, got %v", err)
	}
	if _, err := QuoteAmountOut(eth(1), big.NewInt(0), eth(1)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if _, err := QuoteAmountOut(eth(1), eth(1), nil); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestQuoteAmountIn_CoversRequestedOutput(t *testing.T) {
	reserveIn, reserveOut := eth(7), eth(3_000)
	for _, want := range []*big.Int{big.NewInt(1), eth(1), eth(250), eth(2_999)} {
		in, err := QuoteAmountIn(want, reserveIn, reserveOut)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := QuoteAmountOut(in, reserveIn, reserveOut)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Cmp(want) < 0 {
			t.Fatalf("input %s yields %s, want at least %s", in, got, want)
		}
	}
}

func TestQuoteAmountIn_InvertsQuoteAmountOut(t *testing.T) {
	reserveIn, reserveOut := eth(10), eth(20)
	for _, x := range []*big.Int{big.NewInt(1_000_000), big.NewInt(1e15), eth(1), eth(5)} {
		out, err := QuoteAmountOut(x, reserveIn, reserveOut)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		back, err := QuoteAmountIn(out, reserveIn, reserveOut)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// Flooring the output costs at most a couple of wei of input at these reserves.
		diff := new(big.Int).Sub(x, back)
		if diff.Cmp(big.NewInt(-1)) < 0 || diff.Cmp(big.NewInt(2)) > 0 {
			t.Fatalf("amount in %s came back as %s", x, back)
		}
	}
}

func TestQuoteAmountIn_Errors(t *testing.T) {
	if _, err := QuoteAmountIn(big.NewInt(0), eth(1), eth(1)); !errors.Is(err, ErrInsufficientOutput) {
		t.Fatalf("expected ErrInsufficientOutput, got %v", err)
	}
	if _, err := QuoteAmountIn(eth(1), eth(1), eth(1)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity for draining output, got %v", err)
	}
}

func TestGetAmountsOut(t *testing.T) {
	path := []Hop{
		{ReserveIn: big.NewInt(1_000_000), ReserveOut: big.NewInt(1_000_000)},
		{ReserveIn: big.NewInt(1_000_000), ReserveOut: big.NewInt(2_000_000)},
	}
	amounts, err := GetAmountsOut(big.NewInt(1000), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(amounts) != 3 {
		t.Fatalf("expected 3 amounts, got %d", len(amounts))
	}
	if amounts[0].Int64() != 1000 || amounts[1].Int64() != 996 {
		t.Fatalf("unexpected amounts %v", amounts)
	}
	second, _ := QuoteAmountOut(amounts[1], path[1].ReserveIn, path[1].ReserveOut)
	if amounts[2].Cmp(second) != 0 {
		t.Fatalf("expected %s, got %s", second, amounts[2])
	}

	if _, err := GetAmountsOut(big.NewInt(1), nil); err == nil {
		t.Fatal("expected error for empty path")
	}
	for _, in := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		if _, err := GetAmountsOut(in, path); !errors.Is(err, ErrInsufficientInput) {
			t.Fatalf("expected ErrInsufficientInput for %v, got %v", in, err)
		}
	}
}
