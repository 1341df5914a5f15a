package executor

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/internal/metrics"
	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

const traderName = "Trader"

// logTrader wraps Trader with logging of every trade
type logTrader struct {
	trader Trader
	logger *zap.Logger
}

// NewLog creates a logging decorator for a Trader.
// It logs entry, outcome, duration and gas and counts trades by side and status.
func NewLog(trader Trader, logger *zap.Logger) Trader {
	return &logTrader{
		trader: trader,
		logger: logger,
	}
}

// Buy wraps the trader method with logging
func (lt *logTrader) Buy(ctx context.Context, tok token.Token, ethAmount *big.Int) (trade *Trade, err error) {
	start := time.Now()

	lt.logger.Info("Buy started",
		zap.String("service", traderName),
		zap.String("token", tok.Label()),
		zap.String("address", tok.Address),
		zap.String("eth_amount", market.FormatEther(ethAmount)),
		zap.Uint8("attempt", uint8(tok.PurchaseAttempts)),
	)

	defer func() {
		lt.finish(SideBuy, &tok, trade, err, time.Since(start))
	}()

	return lt.trader.Buy(ctx, tok, ethAmount)
}

// Sell wraps the trader method with logging
func (lt *logTrader) Sell(ctx context.Context, tok token.Token, amount *big.Int) (trade *Trade, err error) {
	start := time.Now()

	fields := []zap.Field{
		zap.String("service", traderName),
		zap.String("token", tok.Label()),
		zap.String("address", tok.Address),
		zap.Uint8("attempt", uint8(tok.SellAttempts)),
	}
	if amount != nil {
		fields = append(fields, zap.String("amount", market.FormatUnits(amount, tok.Decimals)))
	}
	lt.logger.Info("Sell started", fields...)

	defer func() {
		lt.finish(SideSell, &tok, trade, err, time.Since(start))
	}()

	return lt.trader.Sell(ctx, tok, amount)
}

func (lt *logTrader) finish(side Side, tok *token.Token, trade *Trade, err error, duration time.Duration) {
	method := "Buy"
	if side == SideSell {
		method = "Sell"
	}

	gas := new(big.Int)
	if trade != nil && trade.GasCost != nil {
		gas = trade.GasCost
	}
	gasEth, _ := new(big.Float).Quo(new(big.Float).SetInt(gas), big.NewFloat(1e18)).Float64()
	metrics.TradeGasCost.WithLabelValues(string(side)).Observe(gasEth)

	if err != nil {
		metrics.TradesTotal.WithLabelValues(string(side), string(KindOf(err))).Inc()
		lt.logger.Error(method+" failed",
			zap.String("service", traderName),
			zap.String("token", tok.Label()),
			zap.String("address", tok.Address),
			zap.String("kind", string(KindOf(err))),
			zap.String("gas_cost", market.FormatEther(gas)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	metrics.TradesTotal.WithLabelValues(string(side), "success").Inc()
	lt.logger.Info(method+" completed",
		zap.String("service", traderName),
		zap.String("token", tok.Label()),
		zap.String("address", tok.Address),
		zap.String("amount", market.FormatUnits(trade.Amount, tok.Decimals)),
		zap.String("eth_amount", market.FormatEther(trade.EthAmount)),
		zap.String("gas_cost", market.FormatEther(gas)),
		zap.String("tx_hash", trade.TxHash.Hex()),
		zap.Bool("simulated", trade.Simulated),
		zap.Duration("duration", duration),
	)
}
