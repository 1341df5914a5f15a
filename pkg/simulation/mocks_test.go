package simulation

import (
	"context"
	"math/big"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type rpcCall struct {
	method string
	args   []any
}

// mockRaw records JSON-RPC calls; CallFunc fills in results.
type mockRaw struct {
	CallFunc func(result any, method string, args ...any) error

	mu     sync.Mutex
	calls  []rpcCall
	closed int
}

func (m *mockRaw) CallContext(_ context.Context, result any, method string, args ...any) error {
	m.mu.Lock()
	m.calls = append(m.calls, rpcCall{method: method, args: args})
	m.mu.Unlock()
	if m.CallFunc != nil {
		return m.CallFunc(result, method, args...)
	}
	return nil
}

func (m *mockRaw) Close() {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
}

func (m *mockRaw) methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.method
	}
	return out
}

type mockChain struct {
	CallContractFunc       func(ctx context.Context, msg geth.CallMsg, block *big.Int) ([]byte, error)
	BalanceAtFunc          func(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error)
	HeaderByNumberFunc     func(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAtFunc     func(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceiptFunc func(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

func (m *mockChain) CallContract(ctx context.Context, msg geth.CallMsg, block *big.Int) ([]byte, error) {
	return m.CallContractFunc(ctx, msg, block)
}

func (m *mockChain) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	return m.BalanceAtFunc(ctx, account, block)
}

func (m *mockChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return m.HeaderByNumberFunc(ctx, number)
}

func (m *mockChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return m.PendingNonceAtFunc(ctx, account)
}

func (m *mockChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return m.TransactionReceiptFunc(ctx, hash)
}
