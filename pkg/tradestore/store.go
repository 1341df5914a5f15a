// Package tradestore persists the trade ledger: every buy and sell the
// sniper attempts, and one position row per token that reached a trade.
package tradestore

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/apmfree78/snipper-sub000/pkg/executor"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

var (
	// ErrTradeNotFound is returned when a trade lookup finds no matching record.
	ErrTradeNotFound = errors.New("trade not found")
	// ErrPositionNotFound is returned when no position exists for a token.
	ErrPositionNotFound = errors.New("position not found")
)

// Trade status values
const (
	StatusSuccess = "success"
)

// Trade is one ledger entry.
type Trade struct {
	ID        uuid.UUID
	Token     string
	Name      string
	Symbol    string
	Side      executor.Side
	Amount    *big.Int
	EthAmount *big.Int
	GasCost   *big.Int
	TxHash    string
	// Status is "success" or the failure kind.
	Status    string
	Simulated bool
	CreatedAt time.Time
}

// NewTrade builds a ledger entry from a trade result and the error returned with it.
func NewTrade(tok token.Token, tr *executor.Trade, err error) *Trade {
	entry := &Trade{
		ID:        uuid.New(),
		Token:     tok.Address,
		Name:      tok.Name,
		Symbol:    tok.Symbol,
		Status:    StatusSuccess,
		Amount:    new(big.Int),
		EthAmount: new(big.Int),
		GasCost:   new(big.Int),
		CreatedAt: time.Now().UTC(),
	}
	if tr != nil {
		entry.Side = tr.Side
		entry.Amount = orZero(tr.Amount)
		entry.EthAmount = orZero(tr.EthAmount)
		entry.GasCost = orZero(tr.GasCost)
		entry.Simulated = tr.Simulated
		if tr.TxHash != (common.Hash{}) {
			entry.TxHash = tr.TxHash.Hex()
		}
		if !tr.At.IsZero() {
			entry.CreatedAt = tr.At.UTC()
		}
	}
	if err != nil {
		entry.Status = string(executor.KindOf(err))
		if entry.Status == "" {
			entry.Status = "error"
		}
	}
	return entry
}

// Position is the ledger view of one traded token.
type Position struct {
	Token         string
	Name          string
	Symbol        string
	Venue         token.Venue
	Pool          string
	State         token.State
	AmountBought  *big.Int
	EthSpent      *big.Int
	EthReceived   *big.Int
	GasCost       *big.Int
	PnL           *big.Int
	Verdict       string
	RemovalReason string
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// NewPosition snapshots a token into its ledger position. Terminal tokens are closed at now.
func NewPosition(tok token.Token, now time.Time) *Position {
	pos := &Position{
		Token:         tok.Address,
		Name:          tok.Name,
		Symbol:        tok.Symbol,
		Venue:         tok.Venue,
		Pool:          tok.PoolAddress,
		State:         tok.State,
		AmountBought:  orZero(tok.AmountBought),
		EthSpent:      orZero(tok.EthSpent),
		EthReceived:   orZero(tok.EthReceivedAtSale),
		GasCost:       orZero(tok.TxGasCost),
		PnL:           tok.ProfitLoss(),
		Verdict:       tok.Verdict,
		RemovalReason: tok.RemovalReason,
		OpenedAt:      tok.TimeOfPurchase.UTC(),
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = now.UTC()
	}
	if tok.State.Terminal() {
		closed := now.UTC()
		pos.ClosedAt = &closed
	}
	return pos
}

// Summary aggregates realised results over closed positions.
type Summary struct {
	Positions   int      `json:"positions"`
	Open        int      `json:"open"`
	Closed      int      `json:"closed"`
	Wins        int      `json:"wins"`
	Losses      int      `json:"losses"`
	EthSpent    *big.Int `json:"eth_spent"`
	EthReceived *big.Int `json:"eth_received"`
	GasCost     *big.Int `json:"gas_cost"`
	RealizedPnL *big.Int `json:"realized_pnl"`
}

// Store defines the trade ledger persistence operations.
type Store interface {
	RecordTrade(ctx context.Context, trade *Trade) error
	GetTrade(ctx context.Context, id uuid.UUID) (*Trade, error)
	ListTrades(ctx context.Context, opts ...QueryOption) ([]*Trade, error)
	UpsertPosition(ctx context.Context, pos *Position) error
	GetPosition(ctx context.Context, tokenAddress string) (*Position, error)
	ListPositions(ctx context.Context, opts ...QueryOption) ([]*Position, error)
	Summary(ctx context.Context) (*Summary, error)
}

// QueryOptions filter list queries
type QueryOptions struct {
	Token  *string
	Open   *bool
	Limit  int
	Offset int
}

// QueryOption configures QueryOptions
type QueryOption func(*QueryOptions)

// ByToken restricts a list to one token address.
func ByToken(addr string) QueryOption {
	return func(o *QueryOptions) {
		a := token.NormalizeAddress(addr)
		o.Token = &a
	}
}

// OnlyOpen restricts positions to open (true) or closed (false) ones.
func OnlyOpen(open bool) QueryOption {
	return func(o *QueryOptions) {
		o.Open = &open
	}
}

// WithPage sets limit and offset.
func WithPage(limit, offset int) QueryOption {
	return func(o *QueryOptions) {
		o.Limit = limit
		o.Offset = offset
	}
}

func applyOptions(opts []QueryOption) *QueryOptions {
	options := &QueryOptions{Limit: 100}
	for _, opt := range opts {
		opt(options)
	}
	if options.Limit <= 0 || options.Limit > 1000 {
		options.Limit = 100
	}
	if options.Offset < 0 {
		options.Offset = 0
	}
	return options
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
