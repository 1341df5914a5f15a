// Package simulation provides ephemeral forked chains for dry-run trades.
package simulation

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/pkg/ethereum"
	"github.com/apmfree78/snipper-sub000/pkg/ethereum/contracts"
)

// RawRPC issues JSON-RPC calls, including the node-specific anvil_ and evm_ methods.
type RawRPC interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// Chain is the typed read side of the fork.
type Chain interface {
	geth.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Fork is a forked chain on which account is impersonated. It implements
// ethereum.TxBackend; transactions are sent unsigned and the node signs them
// on behalf of the impersonated account.
type Fork struct {
	raw     RawRPC
	chain   Chain
	chainID *big.Int
	account common.Address

	receiptInterval time.Duration
	receiptTimeout  time.Duration

	// local transaction hash -> hash assigned by the node
	mu     sync.Mutex
	hashes map[common.Hash]common.Hash

	onClose   func() error
	closeOnce sync.Once
	logger    *zap.Logger
}

var _ ethereum.TxBackend = (*Fork)(nil)

// NewFork wraps an already running fork node.
func NewFork(raw RawRPC, chain Chain, chainID *big.Int, account common.Address, logger *zap.Logger) *Fork {
	return &Fork{
		raw:             raw,
		chain:           chain,
		chainID:         chainID,
		account:         account,
		receiptInterval: 100 * time.Millisecond,
		receiptTimeout:  30 * time.Second,
		hashes:          make(map[common.Hash]common.Hash),
		logger:          logger,
	}
}

func (f *Fork) Address() common.Address { return f.account }
func (f *Fork) ChainID() *big.Int       { return new(big.Int).Set(f.chainID) }

func (f *Fork) CallContract(ctx context.Context, msg geth.CallMsg, block *big.Int) ([]byte, error) {
	return f.chain.CallContract(ctx, msg, block)
}

func (f *Fork) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return contracts.BalanceOf(ctx, f, token, owner)
}

func (f *Fork) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return f.chain.BalanceAt(ctx, addr, nil)
}

func (f *Fork) LatestHeader(ctx context.Context) (*types.Header, error) {
	return f.chain.HeaderByNumber(ctx, nil)
}

func (f *Fork) PendingNonce(ctx context.Context) (uint64, error) {
	return f.chain.PendingNonceAt(ctx, f.account)
}

// SignTx returns tx unchanged; the node signs for the impersonated account.
func (f *Fork) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return tx, nil
}

// sendArgs is the eth_sendTransaction request object.
type sendArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 hexutil.Bytes   `json:"data"`
}

// SendTransaction submits tx from the impersonated account.
func (f *Fork) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	args := sendArgs{
		From:                 f.account,
		To:                   tx.To(),
		Gas:                  hexutil.Uint64(tx.Gas()),
		MaxFeePerGas:         (*hexutil.Big)(tx.GasFeeCap()),
		MaxPriorityFeePerGas: (*hexutil.Big)(tx.GasTipCap()),
		Value:                (*hexutil.Big)(tx.Value()),
		Nonce:                hexutil.Uint64(tx.Nonce()),
		Data:                 tx.Data(),
	}

	var nodeHash common.Hash
	if err := f.raw.CallContext(ctx, &nodeHash, "eth_sendTransaction", args); err != nil {
		return fmt.Errorf("eth_sendTransaction on fork: %w", err)
	}

	f.mu.Lock()
	f.hashes[tx.Hash()] = nodeHash
	f.mu.Unlock()
	return nil
}

// WaitReceipt accepts either the local hash passed to SendTransaction or the node's hash.
func (f *Fork) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	if nodeHash, ok := f.hashes[hash]; ok {
		hash = nodeHash
	}
	f.mu.Unlock()
	return ethereum.WaitReceipt(ctx, f.chain, hash, f.receiptInterval, f.receiptTimeout)
}

// SubmitAndWait sends tx and waits for its receipt.
func (f *Fork) SubmitAndWait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if err := f.SendTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return f.WaitReceipt(ctx, tx.Hash())
}

// Fund sets the native balance of addr.
func (f *Fork) Fund(ctx context.Context, addr common.Address, amount *big.Int) error {
	if err := f.raw.CallContext(ctx, nil, "anvil_setBalance", addr, (*hexutil.Big)(amount)); err != nil {
		return fmt.Errorf("anvil_setBalance %s: %w", addr.Hex(), err)
	}
	return nil
}

// Impersonate lets the node sign for addr.
func (f *Fork) Impersonate(ctx context.Context, addr common.Address) error {
	if err := f.raw.CallContext(ctx, nil, "anvil_impersonateAccount", addr); err != nil {
		return fmt.Errorf("anvil_impersonateAccount %s: %w", addr.Hex(), err)
	}
	return nil
}

// Snapshot records the current fork state.
func (f *Fork) Snapshot(ctx context.Context) (string, error) {
	var id hexutil.Big
	if err := f.raw.CallContext(ctx, &id, "evm_snapshot"); err != nil {
		return "", fmt.Errorf("evm_snapshot: %w", err)
	}
	return id.String(), nil
}

// Revert restores the state recorded by Snapshot.
func (f *Fork) Revert(ctx context.Context, id string) error {
	var ok bool
	if err := f.raw.CallContext(ctx, &ok, "evm_revert", id); err != nil {
		return fmt.Errorf("evm_revert %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("evm_revert %s: snapshot not found", id)
	}
	return nil
}

// Close releases the fork. Safe to call more than once.
func (f *Fork) Close() error {
	var err error
	f.closeOnce.Do(func() {
		if f.onClose != nil {
			err = f.onClose()
		}
		f.raw.Close()
	})
	return err
}
