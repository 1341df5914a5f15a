// Package relay submits transaction bundles to a private block-builder relay.
package relay

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/flashbots"
	"github.com/lmittmann/w3"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/internal/metrics"
)

// Simulation summarises a simulated bundle.
type Simulation struct {
	TotalGasUsed uint64
	GasFees      *big.Int
	// Revert is the first failing transaction's reason, empty when all succeeded.
	Revert string
}

// Reverted reports whether any transaction in the bundle failed.
func (s *Simulation) Reverted() bool {
	return s.Revert != ""
}

// Flashbots is a relay client authenticated with a searcher signing key.
type Flashbots struct {
	client *w3.Client
	logger *zap.Logger
}

// Dial connects to the relay at url. signingKey only identifies the searcher;
// it never holds funds.
func Dial(url string, signingKey *ecdsa.PrivateKey, logger *zap.Logger) (*Flashbots, error) {
	client, err := flashbots.Dial(url, signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay %s: %w", url, err)
	}
	return &Flashbots{client: client, logger: logger}, nil
}

// Close closes the relay connection.
func (f *Flashbots) Close() error {
	return f.client.Close()
}

// SimulateBundle runs rawTxs on top of block.
func (f *Flashbots) SimulateBundle(ctx context.Context, rawTxs [][]byte, block *big.Int) (*Simulation, error) {
	var resp flashbots.CallBundleResponse
	if err := f.client.CallCtx(ctx, flashbots.CallBundle(&flashbots.CallBundleRequest{
		RawTransactions: rawTxs,
		BlockNumber:     block,
	}).Returns(&resp)); err != nil {
		metrics.ExternalCalls.WithLabelValues("relay_simulate", "error").Inc()
		return nil, fmt.Errorf("eth_callBundle failed: %w", err)
	}
	metrics.ExternalCalls.WithLabelValues("relay_simulate", "ok").Inc()

	sim := &Simulation{TotalGasUsed: resp.TotalGasUsed, GasFees: resp.GasFees}
	if sim.GasFees == nil {
		sim.GasFees = new(big.Int)
	}
	for _, r := range resp.Results {
		if r.Revert != "" {
			sim.Revert = r.Revert
			break
		}
		if r.Error != nil {
			sim.Revert = r.Error.Error()
			break
		}
	}
	return sim, nil
}

// SendBundle submits rawTxs for inclusion in block.
func (f *Flashbots) SendBundle(ctx context.Context, rawTxs [][]byte, block *big.Int) (common.Hash, error) {
	var bundleHash common.Hash
	if err := f.client.CallCtx(ctx, flashbots.SendBundle(&flashbots.SendBundleRequest{
		RawTransactions: rawTxs,
		BlockNumber:     block,
	}).Returns(&bundleHash)); err != nil {
		metrics.ExternalCalls.WithLabelValues("relay_send", "error").Inc()
		return common.Hash{}, fmt.Errorf("eth_sendBundle for block %s failed: %w", block, err)
	}
	metrics.ExternalCalls.WithLabelValues("relay_send", "ok").Inc()

	f.logger.Debug("Bundle sent",
		zap.String("bundle_hash", bundleHash.Hex()),
		zap.String("block", block.String()))
	return bundleHash, nil
}
