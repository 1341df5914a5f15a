package ethereum

import (
	"context"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type mockRPC struct {
	CallContractFunc        func(ctx context.Context, msg geth.CallMsg, block *big.Int) ([]byte, error)
	FilterLogsFunc          func(ctx context.Context, q geth.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogsFunc func(ctx context.Context, q geth.FilterQuery, ch chan<- types.Log) (geth.Subscription, error)
	HeaderByNumberFunc      func(ctx context.Context, number *big.Int) (*types.Header, error)
	SubscribeNewHeadFunc    func(ctx context.Context, ch chan<- *types.Header) (geth.Subscription, error)
	BalanceAtFunc           func(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error)
	PendingNonceAtFunc      func(ctx context.Context, account common.Address) (uint64, error)
	SendTransactionFunc     func(ctx context.Context, tx *types.Transaction) error
	TransactionReceiptFunc  func(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

func (m *mockRPC) CallContract(ctx context.Context, msg geth.CallMsg, block *big.Int) ([]byte, error) {
	return m.CallContractFunc(ctx, msg, block)
}

func (m *mockRPC) FilterLogs(ctx context.Context, q geth.FilterQuery) ([]types.Log, error) {
	return m.FilterLogsFunc(ctx, q)
}

func (m *mockRPC) SubscribeFilterLogs(ctx context.Context, q geth.FilterQuery, ch chan<- types.Log) (geth.Subscription, error) {
	return m.SubscribeFilterLogsFunc(ctx, q, ch)
}

func (m *mockRPC) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (m *mockRPC) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return m.HeaderByNumberFunc(ctx, number)
}

func (m *mockRPC) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (geth.Subscription, error) {
	return m.SubscribeNewHeadFunc(ctx, ch)
}

func (m *mockRPC) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	return m.BalanceAtFunc(ctx, account, block)
}

func (m *mockRPC) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return m.PendingNonceAtFunc(ctx, account)
}

func (m *mockRPC) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return m.SendTransactionFunc(ctx, tx)
}

func (m *mockRPC) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return m.TransactionReceiptFunc(ctx, hash)
}

func (m *mockRPC) Close() {}

type mockSubscription struct {
	errCh chan error
}

func newMockSubscription() *mockSubscription {
	return &mockSubscription{errCh: make(chan error, 1)}
}

func (s *mockSubscription) Err() <-chan error { return s.errCh }
func (s *mockSubscription) Unsubscribe()      {}
