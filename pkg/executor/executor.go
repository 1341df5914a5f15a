package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/internal/metrics"
	"github.com/apmfree78/snipper-sub000/pkg/ethereum"
	"github.com/apmfree78/snipper-sub000/pkg/ethereum/contracts"
	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// Options tune an Executor.
type Options struct {
	Slippage       market.Slippage
	GasLimit       uint64
	DeadlineWindow time.Duration
	// Relay submits through private bundles when set.
	Relay *RelayOptions
}

// Executor trades through a venue on a TxBackend. The same executor drives
// live trading on the wallet and dry runs on a simulation fork.
type Executor struct {
	backend ethereum.TxBackend
	venue   market.Venue
	nonces  *NonceManager
	gas     *GasStrategy
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
}

var _ Trader = (*Executor)(nil)

// New creates an executor. nonces may be shared between executors on the same account.
func New(backend ethereum.TxBackend, venue market.Venue, gas *GasStrategy, nonces *NonceManager, opts Options, logger *zap.Logger) *Executor {
	if nonces == nil {
		nonces = NewNonceManager()
	}
	return &Executor{
		backend: backend,
		venue:   venue,
		nonces:  nonces,
		gas:     gas,
		opts:    opts,
		now:     time.Now,
		logger:  logger,
	}
}

// Buy spends ethAmount on tok. The amount bought is the balance delta, so
// fee-on-transfer tokens report what actually arrived.
func (e *Executor) Buy(ctx context.Context, tok token.Token, ethAmount *big.Int) (*Trade, error) {
	trade := newTrade(SideBuy, &tok, e.now())
	account := e.backend.Address()

	header, err := e.backend.LatestHeader(ctx)
	if err != nil {
		return trade, &TxError{Kind: KindSubmission, Err: err, GasCost: trade.GasCost}
	}

	expected, err := e.venue.QuoteBuy(ctx, &tok, ethAmount)
	if err != nil {
		return trade, quoteError(SideBuy, err, trade.GasCost)
	}
	minOut := e.opts.Slippage.Apply(expected)

	call, err := e.venue.BuildBuy(&tok, ethAmount, minOut, account, e.deadline(header))
	if err != nil {
		return trade, &TxError{Kind: KindSubmission, Err: err, GasCost: trade.GasCost}
	}

	before, err := e.backend.BalanceOf(ctx, tok.CommonAddress(), account)
	if err != nil {
		return trade, &TxError{Kind: KindSubmission, Err: err, GasCost: trade.GasCost}
	}

	receipt, gasCost, err := e.submit(ctx, call, header, buyTier(&tok))
	trade.GasCost.Add(trade.GasCost, gasCost)
	if receipt != nil {
		trade.TxHash = receipt.TxHash
	}
	if err != nil {
		return trade, withGas(err, trade.GasCost)
	}

	after, err := e.backend.BalanceOf(ctx, tok.CommonAddress(), account)
	if err != nil {
		return trade, &TxError{Kind: KindZeroAmount, Err: fmt.Errorf("read balance after buy: %w", err), GasCost: trade.GasCost}
	}
	received := new(big.Int).Sub(after, before)
	if received.Sign() <= 0 {
		return trade, &TxError{Kind: KindZeroAmount, Err: fmt.Errorf("buy of %s delivered no tokens", tok.Address), GasCost: trade.GasCost}
	}

	trade.Amount = received
	trade.EthAmount = new(big.Int).Set(ethAmount)
	return trade, nil
}

// Sell sells up to amount of tok, capped at the held balance. The ETH
// received is the native balance delta with the sell's gas added back.
func (e *Executor) Sell(ctx context.Context, tok token.Token, amount *big.Int) (*Trade, error) {
	trade := newTrade(SideSell, &tok, e.now())
	account := e.backend.Address()
	tier := TierForAttempt(tok.SellAttempts)

	header, err := e.backend.LatestHeader(ctx)
	if err != nil {
		return trade, &TxError{Kind: KindSubmission, Err: err, GasCost: trade.GasCost}
	}

	balance, err := e.backend.BalanceOf(ctx, tok.CommonAddress(), account)
	if err != nil {
		return trade, &TxError{Kind: KindSubmission, Err: err, GasCost: trade.GasCost}
	}
	if amount == nil || amount.Cmp(balance) > 0 {
		amount = balance
	}
	if amount.Sign() <= 0 {
		return trade, &TxError{Kind: KindZeroAmount, Err: fmt.Errorf("no %s balance to sell", tok.Address), GasCost: trade.GasCost}
	}

	if err := e.ensureAllowance(ctx, &tok, amount, header, tier, trade); err != nil {
		return trade, withGas(err, trade.GasCost)
	}

	expected, err := e.venue.QuoteSell(ctx, &tok, amount)
	if err != nil {
		return trade, quoteError(SideSell, err, trade.GasCost)
	}
	call, err := e.venue.BuildSell(&tok, amount, e.opts.Slippage.Apply(expected), account, e.deadline(header))
	if err != nil {
		return trade, &TxError{Kind: KindSubmission, Err: err, GasCost: trade.GasCost}
	}

	ethBefore, err := e.backend.NativeBalance(ctx, account)
	if err != nil {
		return trade, &TxError{Kind: KindSubmission, Err: err, GasCost: trade.GasCost}
	}

	receipt, gasCost, err := e.submit(ctx, call, header, tier)
	trade.GasCost.Add(trade.GasCost, gasCost)
	if receipt != nil {
		trade.TxHash = receipt.TxHash
	}
	if err != nil {
		return trade, withGas(err, trade.GasCost)
	}

	ethAfter, err := e.backend.NativeBalance(ctx, account)
	if err != nil {
		return trade, &TxError{Kind: KindZeroAmount, Err: fmt.Errorf("read balance after sell: %w", err), GasCost: trade.GasCost}
	}
	received := new(big.Int).Sub(ethAfter, ethBefore)
	received.Add(received, gasCost)
	if received.Sign() <= 0 {
		return trade, &TxError{Kind: KindZeroAmount, Err: fmt.Errorf("sell of %s returned no ETH", tok.Address), GasCost: trade.GasCost}
	}

	trade.Amount = new(big.Int).Set(amount)
	trade.EthAmount = received
	return trade, nil
}

// ensureAllowance approves the venue's spender for the max amount when the
// current allowance does not cover amount.
func (e *Executor) ensureAllowance(ctx context.Context, tok *token.Token, amount *big.Int, header *types.Header, tier FeeTier, trade *Trade) error {
	spender := e.venue.Spender()
	allowance, err := contracts.Allowance(ctx, e.backend, tok.CommonAddress(), e.backend.Address(), spender)
	if err != nil {
		return &TxError{Kind: KindSubmission, Err: fmt.Errorf("read allowance: %w", err)}
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	data, err := contracts.PackApprove(spender, math.MaxBig256)
	if err != nil {
		return &TxError{Kind: KindSubmission, Err: err}
	}
	_, gasCost, err := e.submitDirect(ctx, market.Call{To: tok.CommonAddress(), Data: data, Value: new(big.Int)}, header, tier)
	trade.GasCost.Add(trade.GasCost, gasCost)
	if err != nil {
		return err
	}

	e.logger.Debug("Approved spender",
		zap.String("token", tok.Address),
		zap.String("spender", spender.Hex()))
	return nil
}

func (e *Executor) deadline(header *types.Header) *big.Int {
	return new(big.Int).SetUint64(header.Time + uint64(e.opts.DeadlineWindow.Seconds()))
}

// submit routes call through the relay when configured, otherwise the public mempool.
func (e *Executor) submit(ctx context.Context, call market.Call, header *types.Header, tier FeeTier) (*types.Receipt, *big.Int, error) {
	if e.opts.Relay != nil {
		return e.submitBundle(ctx, call, header, tier)
	}
	return e.submitDirect(ctx, call, header, tier)
}

func (e *Executor) buildTx(nonce uint64, call market.Call, fees Fees) *types.Transaction {
	to := call.To
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.backend.ChainID(),
		Nonce:     nonce,
		GasTipCap: fees.TipCap,
		GasFeeCap: fees.FeeCap,
		Gas:       e.opts.GasLimit,
		To:        &to,
		Value:     value,
		Data:      call.Data,
	})
}

// submitDirect signs, broadcasts and waits. The returned gas cost is zero
// unless a receipt was obtained.
func (e *Executor) submitDirect(ctx context.Context, call market.Call, header *types.Header, tier FeeTier) (*types.Receipt, *big.Int, error) {
	account := e.backend.Address()
	nonce, err := e.nonces.Next(ctx, e.backend)
	if err != nil {
		return nil, new(big.Int), &TxError{Kind: KindSubmission, Err: fmt.Errorf("nonce: %w", err)}
	}

	fees := e.gas.Fees(header, tier)
	signed, err := e.backend.SignTx(e.buildTx(nonce, call, fees))
	if err != nil {
		e.nonces.Reset(account)
		return nil, new(big.Int), &TxError{Kind: KindSubmission, Err: err}
	}

	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		e.nonces.Reset(account)
		metrics.ErrorsTotal.WithLabelValues("executor", "send_transaction").Inc()
		return nil, new(big.Int), &TxError{Kind: KindSubmission, Err: err}
	}

	e.logger.Debug("Transaction submitted",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Stringer("tier", tier),
		zap.String("fee_cap", fees.FeeCap.String()))

	return e.await(ctx, signed, fees.FeeCap)
}

// await waits for the receipt of tx and converts its status.
func (e *Executor) await(ctx context.Context, tx *types.Transaction, feeCap *big.Int) (*types.Receipt, *big.Int, error) {
	receipt, err := e.backend.WaitReceipt(ctx, tx.Hash())
	if err != nil {
		e.nonces.Reset(e.backend.Address())
		return nil, new(big.Int), &TxError{Kind: KindNotIncluded, Err: err}
	}

	cost := gasCost(receipt, feeCap)
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, cost, &TxError{Kind: KindReverted, Err: fmt.Errorf("transaction %s reverted", tx.Hash().Hex()), GasCost: cost}
	}
	return receipt, cost, nil
}

func gasCost(receipt *types.Receipt, fallbackPrice *big.Int) *big.Int {
	price := receipt.EffectiveGasPrice
	if price == nil || price.Sign() == 0 {
		price = fallbackPrice
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price)
}

// withGas stamps the accumulated gas cost on a TxError.
func withGas(err error, cost *big.Int) error {
	if txErr, ok := err.(*TxError); ok {
		txErr.GasCost = new(big.Int).Set(cost)
		return txErr
	}
	return &TxError{Kind: KindSubmission, Err: err, GasCost: new(big.Int).Set(cost)}
}

// AccountAddress returns the trading account.
func (e *Executor) AccountAddress() common.Address {
	return e.backend.Address()
}
