package executor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/relay"
)

// Bundler simulates and submits private bundles.
type Bundler interface {
	SimulateBundle(ctx context.Context, rawTxs [][]byte, block *big.Int) (*relay.Simulation, error)
	SendBundle(ctx context.Context, rawTxs [][]byte, block *big.Int) (common.Hash, error)
}

// RelayOptions route trades through a Bundler instead of the public mempool.
type RelayOptions struct {
	Bundler Bundler
	// TipPercent of the simulated gas fees is paid on top as a builder bribe.
	TipPercent float64
	// TargetBlocks is how many consecutive blocks the bundle is offered for.
	TargetBlocks int
}

// submitBundle simulates the signed transaction as a single-tx bundle, adds
// the bribe to its fee caps and offers it for the next TargetBlocks blocks.
func (e *Executor) submitBundle(ctx context.Context, call market.Call, header *types.Header, tier FeeTier) (*types.Receipt, *big.Int, error) {
	r := e.opts.Relay
	account := e.backend.Address()

	nonce, err := e.nonces.Next(ctx, e.backend)
	if err != nil {
		return nil, new(big.Int), &TxError{Kind: KindSubmission, Err: fmt.Errorf("nonce: %w", err)}
	}
	fail := func(kind TxErrorKind, err error) (*types.Receipt, *big.Int, error) {
		e.nonces.Reset(account)
		return nil, new(big.Int), &TxError{Kind: kind, Err: err}
	}

	fees := e.gas.Fees(header, tier)
	raw, _, err := e.signRaw(nonce, call, fees)
	if err != nil {
		return fail(KindSubmission, err)
	}

	target := new(big.Int).Add(header.Number, big.NewInt(1))
	sim, err := r.Bundler.SimulateBundle(ctx, [][]byte{raw}, target)
	if err != nil {
		return fail(KindSubmission, err)
	}
	if sim.Reverted() {
		return fail(KindReverted, fmt.Errorf("bundle simulation reverted: %s", sim.Revert))
	}

	if bribe := bribePerGas(sim, r.TipPercent); bribe.Sign() > 0 {
		fees = fees.WithBribe(bribe)
	}
	raw, signed, err := e.signRaw(nonce, call, fees)
	if err != nil {
		return fail(KindSubmission, err)
	}

	blocks := r.TargetBlocks
	if blocks < 1 {
		blocks = 1
	}
	sent := 0
	for i := 0; i < blocks; i++ {
		block := new(big.Int).Add(target, big.NewInt(int64(i)))
		hash, err := r.Bundler.SendBundle(ctx, [][]byte{raw}, block)
		if err != nil {
			e.logger.Warn("Bundle submission failed",
				zap.String("block", block.String()),
				zap.Error(err))
			continue
		}
		sent++
		e.logger.Debug("Bundle submitted",
			zap.String("bundle_hash", hash.Hex()),
			zap.String("tx_hash", signed.Hash().Hex()),
			zap.String("block", block.String()))
	}
	if sent == 0 {
		return fail(KindSubmission, fmt.Errorf("no bundle accepted for blocks %s..%s", target, new(big.Int).Add(target, big.NewInt(int64(blocks-1)))))
	}

	return e.await(ctx, signed, fees.FeeCap)
}

func (e *Executor) signRaw(nonce uint64, call market.Call, fees Fees) ([]byte, *types.Transaction, error) {
	signed, err := e.backend.SignTx(e.buildTx(nonce, call, fees))
	if err != nil {
		return nil, nil, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return raw, signed, nil
}

// bribePerGas spreads percent of the simulated gas fees over the gas used.
func bribePerGas(sim *relay.Simulation, percent float64) *big.Int {
	if sim == nil || sim.TotalGasUsed == 0 || sim.GasFees == nil || percent <= 0 {
		return new(big.Int)
	}
	total := market.PercentOf(sim.GasFees, percent)
	return total.Quo(total, new(big.Int).SetUint64(sim.TotalGasUsed))
}
