package executor

import (
	"context"
	"math/big"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/relay"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

var (
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	testRouter  = common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d")
)

// mockBackend is a TxBackend whose behavior is set per test.
type mockBackend struct {
	mu sync.Mutex

	CallContractFunc  func(ctx context.Context, msg geth.CallMsg, block *big.Int) ([]byte, error)
	BalanceOfFunc     func(ctx context.Context, tok, owner common.Address) (*big.Int, error)
	NativeBalanceFunc func(ctx context.Context, addr common.Address) (*big.Int, error)
	LatestHeaderFunc  func(ctx context.Context) (*types.Header, error)
	PendingNonceFunc  func(ctx context.Context) (uint64, error)
	SendFunc          func(ctx context.Context, tx *types.Transaction) error
	WaitReceiptFunc   func(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	sent         []*types.Transaction
	nonceFetches int
}

func (m *mockBackend) CallContract(ctx context.Context, msg geth.CallMsg, block *big.Int) ([]byte, error) {
	if m.CallContractFunc != nil {
		return m.CallContractFunc(ctx, msg, block)
	}
	return common.LeftPadBytes(nil, 32), nil
}

func (m *mockBackend) Address() common.Address { return testAccount }
func (m *mockBackend) ChainID() *big.Int       { return big.NewInt(1) }

func (m *mockBackend) BalanceOf(ctx context.Context, tok, owner common.Address) (*big.Int, error) {
	return m.BalanceOfFunc(ctx, tok, owner)
}

func (m *mockBackend) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if m.NativeBalanceFunc != nil {
		return m.NativeBalanceFunc(ctx, addr)
	}
	return new(big.Int), nil
}

func (m *mockBackend) LatestHeader(ctx context.Context) (*types.Header, error) {
	if m.LatestHeaderFunc != nil {
		return m.LatestHeaderFunc(ctx)
	}
	return testHeader(), nil
}

func (m *mockBackend) PendingNonce(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	m.nonceFetches++
	m.mu.Unlock()
	if m.PendingNonceFunc != nil {
		return m.PendingNonceFunc(ctx)
	}
	return 7, nil
}

func (m *mockBackend) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return tx, nil
}

func (m *mockBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	m.sent = append(m.sent, tx)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, tx)
	}
	return nil
}

func (m *mockBackend) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if m.WaitReceiptFunc != nil {
		return m.WaitReceiptFunc(ctx, hash)
	}
	return successReceipt(hash, 100000), nil
}

func (m *mockBackend) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// mockVenue quotes fixed amounts and records built calls.
type mockVenue struct {
	QuoteBuyFunc  func(ctx context.Context, tok *token.Token, ethIn *big.Int) (*big.Int, error)
	QuoteSellFunc func(ctx context.Context, tok *token.Token, amountIn *big.Int) (*big.Int, error)

	lastSellAmount *big.Int
	lastMinOut     *big.Int
}

func (v *mockVenue) Name() token.Venue       { return token.VenueUniswapV2 }
func (v *mockVenue) Spender() common.Address { return testRouter }

func (v *mockVenue) QuoteBuy(ctx context.Context, tok *token.Token, ethIn *big.Int) (*big.Int, error) {
	if v.QuoteBuyFunc != nil {
		return v.QuoteBuyFunc(ctx, tok, ethIn)
	}
	return big.NewInt(1000), nil
}

func (v *mockVenue) QuoteSell(ctx context.Context, tok *token.Token, amountIn *big.Int) (*big.Int, error) {
	if v.QuoteSellFunc != nil {
		return v.QuoteSellFunc(ctx, tok, amountIn)
	}
	return new(big.Int).Set(amountIn), nil
}

func (v *mockVenue) BuildBuy(_ *token.Token, ethIn, minOut *big.Int, _ common.Address, _ *big.Int) (market.Call, error) {
	v.lastMinOut = minOut
	return market.Call{To: testRouter, Data: []byte{0x7f, 0xf3, 0x6a, 0xb5}, Value: new(big.Int).Set(ethIn)}, nil
}

func (v *mockVenue) BuildSell(_ *token.Token, amountIn, minOut *big.Int, _ common.Address, _ *big.Int) (market.Call, error) {
	v.lastSellAmount = amountIn
	v.lastMinOut = minOut
	return market.Call{To: testRouter, Data: []byte{0x18, 0xcb, 0xaf, 0xe5}, Value: new(big.Int)}, nil
}

func (v *mockVenue) Liquidity(context.Context, *token.Token) (*big.Int, error) {
	return new(big.Int), nil
}

// mockBundler records submitted bundles.
type mockBundler struct {
	SimulateFunc func(ctx context.Context, rawTxs [][]byte, block *big.Int) (*relay.Simulation, error)
	SendFunc     func(ctx context.Context, rawTxs [][]byte, block *big.Int) (common.Hash, error)

	mu     sync.Mutex
	blocks []uint64
	raws   [][]byte
}

func (b *mockBundler) SimulateBundle(ctx context.Context, rawTxs [][]byte, block *big.Int) (*relay.Simulation, error) {
	if b.SimulateFunc != nil {
		return b.SimulateFunc(ctx, rawTxs, block)
	}
	return &relay.Simulation{TotalGasUsed: 100000, GasFees: big.NewInt(1e15)}, nil
}

func (b *mockBundler) SendBundle(ctx context.Context, rawTxs [][]byte, block *big.Int) (common.Hash, error) {
	b.mu.Lock()
	b.blocks = append(b.blocks, block.Uint64())
	b.raws = append(b.raws, rawTxs[0])
	b.mu.Unlock()
	if b.SendFunc != nil {
		return b.SendFunc(ctx, rawTxs, block)
	}
	return common.HexToHash("0xb0b"), nil
}

func testHeader() *types.Header {
	return &types.Header{
		Number:   big.NewInt(100),
		Time:     1_700_000_000,
		GasLimit: 30_000_000,
		GasUsed:  15_000_000,
		BaseFee:  big.NewInt(10_000_000_000),
	}
}

func successReceipt(hash common.Hash, gasUsed uint64) *types.Receipt {
	return &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            hash,
		GasUsed:           gasUsed,
		EffectiveGasPrice: big.NewInt(10_000_000_000),
	}
}

func uint256(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}
