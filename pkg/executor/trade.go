// Package executor turns buy and sell decisions into signed swap transactions
// against a TxBackend, or into quote-based paper trades.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// Side of a trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TxErrorKind classifies a failed trade.
type TxErrorKind string

const (
	// KindSubmission means the transaction never reached the chain.
	KindSubmission TxErrorKind = "submission"
	// KindReverted means the transaction was mined with a failing status.
	KindReverted TxErrorKind = "reverted"
	// KindZeroAmount means the transaction succeeded but nothing was received.
	KindZeroAmount TxErrorKind = "zero_amount"
	// KindNotIncluded means no receipt appeared before the timeout.
	KindNotIncluded TxErrorKind = "not_included"
	// KindQuote means the pool refused to quote the swap: the quoter call
	// reverted or the reserves cannot fill it.
	KindQuote TxErrorKind = "quote"
)

// revertCode is the JSON-RPC error code nodes use for a reverted eth_call.
const revertCode = 3

// quoteError classifies a failed quote. Reverts and unfillable reserves are
// properties of the token and become KindQuote; anything else is a
// transport fault and stays KindSubmission.
func quoteError(side Side, err error, gas *big.Int) *TxError {
	kind := KindSubmission
	if isRevert(err) || errors.Is(err, market.ErrInsufficientLiquidity) || errors.Is(err, market.ErrInsufficientInput) {
		kind = KindQuote
	}
	return &TxError{Kind: kind, Err: fmt.Errorf("quote %s: %w", side, err), GasCost: gas}
}

func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertCode {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

// TxError is the error returned for every failed trade.
type TxError struct {
	Kind    TxErrorKind
	Err     error
	GasCost *big.Int
}

func (e *TxError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// KindOf returns the TxErrorKind of err, or "" when err is not a TxError.
func KindOf(err error) TxErrorKind {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr.Kind
	}
	return ""
}

// Trade is the result of a buy or sell. Amount is zero on any failure and
// GasCost includes gas burned by reverted transactions.
type Trade struct {
	Side  Side
	Token string
	// Amount is tokens received on a buy and tokens sold on a sell.
	Amount *big.Int
	// EthAmount is ETH spent on a buy and ETH received on a sell.
	EthAmount *big.Int
	GasCost   *big.Int
	TxHash    common.Hash
	Simulated bool
	At        time.Time
}

func newTrade(side Side, tok *token.Token, at time.Time) *Trade {
	return &Trade{
		Side:      side,
		Token:     tok.Address,
		Amount:    new(big.Int),
		EthAmount: new(big.Int),
		GasCost:   new(big.Int),
		At:        at,
	}
}

// Succeeded reports whether the trade moved a nonzero amount.
func (t *Trade) Succeeded() bool {
	return t != nil && t.Amount != nil && t.Amount.Sign() > 0
}

// Trader executes swaps. Both methods always return a non-nil Trade; the
// error describes why its Amount is zero.
type Trader interface {
	Buy(ctx context.Context, tok token.Token, ethAmount *big.Int) (*Trade, error)
	Sell(ctx context.Context, tok token.Token, amount *big.Int) (*Trade, error)
}
