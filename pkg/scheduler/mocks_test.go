package scheduler

import (
	"context"
	"math/big"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/apmfree78/snipper-sub000/pkg/ethereum/contracts"
	"github.com/apmfree78/snipper-sub000/pkg/executor"
	"github.com/apmfree78/snipper-sub000/pkg/notify"
	"github.com/apmfree78/snipper-sub000/pkg/token"
	"github.com/apmfree78/snipper-sub000/pkg/tradestore"
	"github.com/apmfree78/snipper-sub000/pkg/validation"
)

type mockValidator struct {
	AdvanceFunc func(ctx context.Context, tok token.Token) (validation.Outcome, error)
}

func (m *mockValidator) Advance(ctx context.Context, tok token.Token) (validation.Outcome, error) {
	if m.AdvanceFunc == nil {
		return validation.Outcome{Address: tok.Address, From: tok.State, To: tok.State}, nil
	}
	return m.AdvanceFunc(ctx, tok)
}

type mockTrader struct {
	BuyFunc  func(ctx context.Context, tok token.Token, ethAmount *big.Int) (*executor.Trade, error)
	SellFunc func(ctx context.Context, tok token.Token, amount *big.Int) (*executor.Trade, error)

	mu    sync.Mutex
	buys  []token.Token
	sells []sellCall
}

type sellCall struct {
	tok    token.Token
	amount *big.Int
}

func (m *mockTrader) Buy(ctx context.Context, tok token.Token, ethAmount *big.Int) (*executor.Trade, error) {
	m.mu.Lock()
	m.buys = append(m.buys, tok)
	m.mu.Unlock()
	return m.BuyFunc(ctx, tok, ethAmount)
}

func (m *mockTrader) Sell(ctx context.Context, tok token.Token, amount *big.Int) (*executor.Trade, error) {
	m.mu.Lock()
	m.sells = append(m.sells, sellCall{tok: tok, amount: amount})
	m.mu.Unlock()
	return m.SellFunc(ctx, tok, amount)
}

func (m *mockTrader) buyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buys)
}

func (m *mockTrader) sellCalls() []sellCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sellCall(nil), m.sells...)
}

type mockQuoter struct {
	QuoteSellFunc func(ctx context.Context, tok *token.Token, amountIn *big.Int) (*big.Int, error)
}

func (m *mockQuoter) QuoteSell(ctx context.Context, tok *token.Token, amountIn *big.Int) (*big.Int, error) {
	if m.QuoteSellFunc == nil {
		return new(big.Int), nil
	}
	return m.QuoteSellFunc(ctx, tok, amountIn)
}

type mockLedger struct {
	RecordTradeErr    error
	UpsertPositionErr error

	mu        sync.Mutex
	trades    []*tradestore.Trade
	positions []*tradestore.Position
}

func (m *mockLedger) RecordTrade(_ context.Context, trade *tradestore.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return m.RecordTradeErr
}

func (m *mockLedger) UpsertPosition(_ context.Context, pos *tradestore.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertPositionErr != nil {
		return m.UpsertPositionErr
	}
	m.positions = append(m.positions, pos)
	return nil
}

func (m *mockLedger) lastPosition() *tradestore.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.positions) == 0 {
		return nil
	}
	return m.positions[len(m.positions)-1]
}

func (m *mockLedger) tradeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trades)
}

type mockPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (m *mockPublisher) Publish(_ context.Context, ev notify.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) kinds() []notify.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Kind, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Kind)
	}
	return out
}

type mockMetadata struct {
	TokenMetadataFunc func(ctx context.Context, tok common.Address) (contracts.Metadata, error)
	calls             int
}

func (m *mockMetadata) TokenMetadata(ctx context.Context, tok common.Address) (contracts.Metadata, error) {
	m.calls++
	return m.TokenMetadataFunc(ctx, tok)
}

type mockSources struct {
	SourceCodeFunc func(ctx context.Context, addr common.Address) (string, error)
}

func (m *mockSources) SourceCode(ctx context.Context, addr common.Address) (string, error) {
	return m.SourceCodeFunc(ctx, addr)
}

type mockChain struct {
	headers   chan *types.Header
	headerErr chan error
	logs      chan types.Log
	logErr    chan error
	// resubscribe, when set, holds every subscription after the first until closed.
	resubscribe chan struct{}

	mu         sync.Mutex
	headerSubs int
	logSubs    int
}

func newMockChain() *mockChain {
	return &mockChain{
		headers:   make(chan *types.Header),
		headerErr: make(chan error, 1),
		logs:      make(chan types.Log),
		logErr:    make(chan error, 1),
	}
}

func (m *mockChain) SubscribeNewBlocks(ctx context.Context) (<-chan *types.Header, <-chan error) {
	m.mu.Lock()
	m.headerSubs++
	n := m.headerSubs
	m.mu.Unlock()
	m.hold(ctx, n)
	return m.headers, m.headerErr
}

func (m *mockChain) SubscribeLogs(ctx context.Context, _ geth.FilterQuery) (<-chan types.Log, <-chan error) {
	m.mu.Lock()
	m.logSubs++
	n := m.logSubs
	m.mu.Unlock()
	m.hold(ctx, n)
	return m.logs, m.logErr
}

func (m *mockChain) hold(ctx context.Context, n int) {
	if n == 1 || m.resubscribe == nil {
		return
	}
	select {
	case <-m.resubscribe:
	case <-ctx.Done():
	}
}

func (m *mockChain) subscriptions() (headers, logs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.headerSubs, m.logSubs
}

type mockLogHandler struct {
	mu   sync.Mutex
	logs []types.Log
	err  error
}

func (m *mockLogHandler) Handle(_ context.Context, log types.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return m.err
}

func (m *mockLogHandler) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

type mockSweeper struct {
	SweepFunc func(ctx context.Context, now time.Time) <-chan Outcome

	mu    sync.Mutex
	calls int
}

func (m *mockSweeper) Sweep(ctx context.Context, now time.Time) <-chan Outcome {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.SweepFunc(ctx, now)
}

func (m *mockSweeper) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
