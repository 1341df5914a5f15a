package tradestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/apmfree78/snipper-sub000/pkg/token"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the trade ledger
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) RecordTrade(ctx context.Context, trade *Trade) error {
	if trade.ID == uuid.Nil {
		trade.ID = uuid.New()
	}
	_, err := s.db.NewInsert().
		Model(toTradeDao(trade)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}

func (s *pgStore) GetTrade(ctx context.Context, id uuid.UUID) (*Trade, error) {
	dao := new(TradeDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return toTrade(dao), nil
}

func (s *pgStore) ListTrades(ctx context.Context, opts ...QueryOption) ([]*Trade, error) {
	options := applyOptions(opts)

	var daos []TradeDao
	query := s.db.NewSelect().
		Model(&daos).
		Order("created_at DESC").
		Limit(options.Limit).
		Offset(options.Offset)
	if options.Token != nil {
		query = query.Where("token_address = ?", *options.Token)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}

	trades := make([]*Trade, 0, len(daos))
	for i := range daos {
		trades = append(trades, toTrade(&daos[i]))
	}
	return trades, nil
}

func (s *pgStore) UpsertPosition(ctx context.Context, pos *Position) error {
	_, err := s.db.NewInsert().
		Model(toPositionDao(pos)).
		On("CONFLICT (token_address) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("symbol = EXCLUDED.symbol").
		Set("state = EXCLUDED.state").
		Set("amount_bought = EXCLUDED.amount_bought").
		Set("eth_spent = EXCLUDED.eth_spent").
		Set("eth_received = EXCLUDED.eth_received").
		Set("gas_cost = EXCLUDED.gas_cost").
		Set("pnl = EXCLUDED.pnl").
		Set("verdict = EXCLUDED.verdict").
		Set("removal_reason = EXCLUDED.removal_reason").
		Set("closed_at = EXCLUDED.closed_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

func (s *pgStore) GetPosition(ctx context.Context, tokenAddress string) (*Position, error) {
	dao := new(PositionDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("token_address = ?", token.NormalizeAddress(tokenAddress)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return toPosition(dao), nil
}

func (s *pgStore) ListPositions(ctx context.Context, opts ...QueryOption) ([]*Position, error) {
	options := applyOptions(opts)

	var daos []PositionDao
	query := s.db.NewSelect().
		Model(&daos).
		Order("opened_at DESC").
		Limit(options.Limit).
		Offset(options.Offset)
	if options.Token != nil {
		query = query.Where("token_address = ?", *options.Token)
	}
	if options.Open != nil {
		if *options.Open {
			query = query.Where("closed_at IS NULL")
		} else {
			query = query.Where("closed_at IS NOT NULL")
		}
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	positions := make([]*Position, 0, len(daos))
	for i := range daos {
		positions = append(positions, toPosition(&daos[i]))
	}
	return positions, nil
}

// Summary totals closed positions; open ones only count toward Positions and Open.
func (s *pgStore) Summary(ctx context.Context) (*Summary, error) {
	var agg struct {
		Positions   int    `bun:"positions"`
		Open        int    `bun:"open_count"`
		Wins        int    `bun:"wins"`
		Losses      int    `bun:"losses"`
		EthSpent    string `bun:"eth_spent"`
		EthReceived string `bun:"eth_received"`
		GasCost     string `bun:"gas_cost"`
		PnL         string `bun:"pnl"`
	}
	err := s.db.NewSelect().
		Model((*PositionDao)(nil)).
		ColumnExpr("COUNT(*) AS positions").
		ColumnExpr("COUNT(*) FILTER (WHERE closed_at IS NULL) AS open_count").
		ColumnExpr("COUNT(*) FILTER (WHERE closed_at IS NOT NULL AND pnl > 0) AS wins").
		ColumnExpr("COUNT(*) FILTER (WHERE closed_at IS NOT NULL AND pnl <= 0) AS losses").
		ColumnExpr("COALESCE(SUM(eth_spent) FILTER (WHERE closed_at IS NOT NULL), 0)::text AS eth_spent").
		ColumnExpr("COALESCE(SUM(eth_received) FILTER (WHERE closed_at IS NOT NULL), 0)::text AS eth_received").
		ColumnExpr("COALESCE(SUM(gas_cost) FILTER (WHERE closed_at IS NOT NULL), 0)::text AS gas_cost").
		ColumnExpr("COALESCE(SUM(pnl) FILTER (WHERE closed_at IS NOT NULL), 0)::text AS pnl").
		Scan(ctx, &agg)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize positions: %w", err)
	}

	return &Summary{
		Positions:   agg.Positions,
		Open:        agg.Open,
		Closed:      agg.Positions - agg.Open,
		Wins:        agg.Wins,
		Losses:      agg.Losses,
		EthSpent:    parseInt(agg.EthSpent),
		EthReceived: parseInt(agg.EthReceived),
		GasCost:     parseInt(agg.GasCost),
		RealizedPnL: parseInt(agg.PnL),
	}, nil
}
