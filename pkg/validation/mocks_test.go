package validation

import (
	"context"
	"math/big"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/reputation"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

type mockLiquidity struct {
	LiquidityFunc func(ctx context.Context, tok *token.Token) (*big.Int, error)
}

func (m *mockLiquidity) Liquidity(ctx context.Context, tok *token.Token) (*big.Int, error) {
	return m.LiquidityFunc(ctx, tok)
}

type mockSupply struct {
	TotalSupplyFunc func(ctx context.Context, tok common.Address) (*big.Int, error)
	BalanceOfFunc   func(ctx context.Context, tok, owner common.Address) (*big.Int, error)
}

func (m *mockSupply) TotalSupply(ctx context.Context, tok common.Address) (*big.Int, error) {
	return m.TotalSupplyFunc(ctx, tok)
}

func (m *mockSupply) BalanceOf(ctx context.Context, tok, owner common.Address) (*big.Int, error) {
	return m.BalanceOfFunc(ctx, tok, owner)
}

type mockSources struct {
	SourceCodeFunc func(ctx context.Context, addr common.Address) (string, error)
	calls          int
}

func (m *mockSources) SourceCode(ctx context.Context, addr common.Address) (string, error) {
	m.calls++
	return m.SourceCodeFunc(ctx, addr)
}

type mockReviewer struct {
	ReviewFunc func(ctx context.Context, source string) (reputation.Assessment, error)
	calls      int
}

func (m *mockReviewer) Review(ctx context.Context, source string) (reputation.Assessment, error) {
	m.calls++
	return m.ReviewFunc(ctx, source)
}

type mockHolders struct {
	TopHoldersFunc func(ctx context.Context, tok common.Address) ([]reputation.Holder, error)
}

func (m *mockHolders) TopHolders(ctx context.Context, tok common.Address) ([]reputation.Holder, error) {
	return m.TopHoldersFunc(ctx, tok)
}

type mockDryRun struct {
	DryRunFunc func(ctx context.Context, tok token.Token) (Verdict, error)
}

func (m *mockDryRun) DryRun(ctx context.Context, tok token.Token) (Verdict, error) {
	return m.DryRunFunc(ctx, tok)
}

var (
	sandboxRouter = common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d")
	sandboxUser   = common.HexToAddress("0x00000000000000000000000000000000000c0ffe")
)

// fakeSandbox models a token whose buy and sell behavior is configurable.
// Buys credit buyYield tokens; sells debit at most sellTake of the amount sold.
type fakeSandbox struct {
	mu sync.Mutex

	tokenBalance *big.Int
	native       *big.Int
	buyYield     *big.Int
	sellTake     func(amount *big.Int) *big.Int
	revertSells  bool
	nonce        uint64
	pending      map[common.Hash]*types.Receipt

	funded *big.Int
	closed bool
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{
		tokenBalance: new(big.Int),
		native:       new(big.Int),
		buyYield:     big.NewInt(1000),
		sellTake:     func(a *big.Int) *big.Int { return a },
		pending:      make(map[common.Hash]*types.Receipt),
	}
}

func (s *fakeSandbox) CallContract(context.Context, geth.CallMsg, *big.Int) ([]byte, error) {
	// allowance is always zero, so every sell approves first
	return common.LeftPadBytes(nil, 32), nil
}

func (s *fakeSandbox) Address() common.Address { return sandboxUser }
func (s *fakeSandbox) ChainID() *big.Int       { return big.NewInt(1) }

func (s *fakeSandbox) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.tokenBalance), nil
}

func (s *fakeSandbox) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.native), nil
}

func (s *fakeSandbox) LatestHeader(context.Context) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), GasLimit: 30_000_000, GasUsed: 15_000_000, BaseFee: big.NewInt(1e9), Time: 1}, nil
}

func (s *fakeSandbox) PendingNonce(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce, nil
}

func (s *fakeSandbox) SignTx(tx *types.Transaction) (*types.Transaction, error) { return tx, nil }

func (s *fakeSandbox) SendTransaction(_ context.Context, tx *types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonce++

	status := types.ReceiptStatusSuccessful
	switch {
	case *tx.To() != sandboxRouter:
		// approve
	case tx.Value().Sign() > 0:
		s.tokenBalance.Add(s.tokenBalance, s.buyYield)
	case s.revertSells:
		status = types.ReceiptStatusFailed
	default:
		s.tokenBalance.Sub(s.tokenBalance, s.sellTake(new(big.Int).Set(s.tokenBalance)))
		s.native.Add(s.native, big.NewInt(1e15))
	}
	s.pending[tx.Hash()] = &types.Receipt{Status: status, TxHash: tx.Hash(), GasUsed: 21000, EffectiveGasPrice: big.NewInt(1)}
	return nil
}

func (s *fakeSandbox) WaitReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[hash], nil
}

func (s *fakeSandbox) Fund(_ context.Context, _ common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funded = amount
	s.native.Set(amount)
	return nil
}

func (s *fakeSandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// sandboxVenue quotes one token per wei and routes everything through
// sandboxRouter. buyErr and sellErr make the matching quote fail.
type sandboxVenue struct {
	buyErr  error
	sellErr error
}

func (sandboxVenue) Name() token.Venue       { return token.VenueUniswapV2 }
func (sandboxVenue) Spender() common.Address { return sandboxRouter }

func (v sandboxVenue) QuoteBuy(_ context.Context, _ *token.Token, in *big.Int) (*big.Int, error) {
	if v.buyErr != nil {
		return nil, v.buyErr
	}
	return new(big.Int).Set(in), nil
}

func (v sandboxVenue) QuoteSell(_ context.Context, _ *token.Token, in *big.Int) (*big.Int, error) {
	if v.sellErr != nil {
		return nil, v.sellErr
	}
	return new(big.Int).Set(in), nil
}

// revertError is how a node reports a reverted eth_call.
type revertError struct{ reason string }

func (e revertError) Error() string  { return "execution reverted: " + e.reason }
func (e revertError) ErrorCode() int { return 3 }

func (sandboxVenue) BuildBuy(_ *token.Token, ethIn, _ *big.Int, _ common.Address, _ *big.Int) (market.Call, error) {
	return market.Call{To: sandboxRouter, Data: []byte{1}, Value: new(big.Int).Set(ethIn)}, nil
}

func (sandboxVenue) BuildSell(*token.Token, *big.Int, *big.Int, common.Address, *big.Int) (market.Call, error) {
	return market.Call{To: sandboxRouter, Data: []byte{2}, Value: new(big.Int)}, nil
}

func (sandboxVenue) Liquidity(context.Context, *token.Token) (*big.Int, error) {
	return new(big.Int), nil
}
