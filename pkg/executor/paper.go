package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// HeaderReader returns the chain head.
type HeaderReader interface {
	LatestHeader(ctx context.Context) (*types.Header, error)
}

// PaperTrader fills trades at quoted prices without sending transactions.
// Gas is charged at the fee cap the live executor would have offered.
type PaperTrader struct {
	venue    market.Venue
	headers  HeaderReader
	gas      *GasStrategy
	gasLimit uint64
	now      func() time.Time
	logger   *zap.Logger
}

var _ Trader = (*PaperTrader)(nil)

// NewPaperTrader creates a paper trader
func NewPaperTrader(venue market.Venue, headers HeaderReader, gas *GasStrategy, gasLimit uint64, logger *zap.Logger) *PaperTrader {
	return &PaperTrader{
		venue:    venue,
		headers:  headers,
		gas:      gas,
		gasLimit: gasLimit,
		now:      time.Now,
		logger:   logger,
	}
}

func (p *PaperTrader) estimateGas(ctx context.Context, tier FeeTier) (*big.Int, error) {
	header, err := p.headers.LatestHeader(ctx)
	if err != nil {
		return nil, err
	}
	fees := p.gas.Fees(header, tier)
	return new(big.Int).Mul(fees.FeeCap, new(big.Int).SetUint64(p.gasLimit)), nil
}

// Buy quotes ethAmount into tok.
func (p *PaperTrader) Buy(ctx context.Context, tok token.Token, ethAmount *big.Int) (*Trade, error) {
	trade := newTrade(SideBuy, &tok, p.now())
	trade.Simulated = true

	out, err := p.venue.QuoteBuy(ctx, &tok, ethAmount)
	if err != nil {
		return trade, quoteError(SideBuy, err, trade.GasCost)
	}
	gas, err := p.estimateGas(ctx, buyTier(&tok))
	if err != nil {
		return trade, &TxError{Kind: KindSubmission, Err: err, GasCost: trade.GasCost}
	}
	trade.GasCost = gas
	if out.Sign() <= 0 {
		return trade, &TxError{Kind: KindZeroAmount, Err: fmt.Errorf("quote for %s is zero", tok.Address), GasCost: gas}
	}

	trade.Amount = out
	trade.EthAmount = new(big.Int).Set(ethAmount)
	return trade, nil
}

// Sell quotes amount of tok back into ETH. A nil amount sells the unsold
// remainder of the position.
func (p *PaperTrader) Sell(ctx context.Context, tok token.Token, amount *big.Int) (*Trade, error) {
	trade := newTrade(SideSell, &tok, p.now())
	trade.Simulated = true

	remaining := new(big.Int).Sub(tok.AmountBought, tok.TotalSold())
	if amount == nil || amount.Cmp(remaining) > 0 {
		amount = remaining
	}
	if amount.Sign() <= 0 {
		return trade, &TxError{Kind: KindZeroAmount, Err: fmt.Errorf("no %s balance to sell", tok.Address), GasCost: trade.GasCost}
	}

	out, err := p.venue.QuoteSell(ctx, &tok, amount)
	if err != nil {
		return trade, quoteError(SideSell, err, trade.GasCost)
	}
	gas, err := p.estimateGas(ctx, TierForAttempt(tok.SellAttempts))
	if err != nil {
		return trade, &TxError{Kind: KindSubmission, Err: err, GasCost: trade.GasCost}
	}
	trade.GasCost = gas

	p.logger.Debug("Paper sell filled",
		zap.String("token", tok.Address),
		zap.String("amount", amount.String()),
		zap.String("eth_out", out.String()))

	trade.Amount = new(big.Int).Set(amount)
	trade.EthAmount = out
	return trade, nil
}
