package tradestore

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/apmfree78/snipper-sub000/pkg/executor"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// TradeDao is a data access object that maps directly to the 'trades' table in PostgreSQL.
type TradeDao struct {
	bun.BaseModel `bun:"table:trades,alias:t"`
	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	TokenAddress  string    `bun:"token_address,notnull,type:varchar(42)"`
	Name          string    `bun:"name,type:varchar(255)"`
	Symbol        string    `bun:"symbol,type:varchar(64)"`
	Side          string    `bun:"side,notnull,type:varchar(8)"`
	Amount        string    `bun:"amount,notnull,type:numeric(78,0)"`
	EthAmount     string    `bun:"eth_amount,notnull,type:numeric(78,0)"`
	GasCost       string    `bun:"gas_cost,notnull,type:numeric(78,0)"`
	TxHash        *string   `bun:"tx_hash,type:varchar(66)"`
	Status        string    `bun:"status,notnull,type:varchar(32)"`
	Simulated     bool      `bun:"simulated,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// PositionDao is a data access object that maps directly to the 'positions' table in PostgreSQL.
type PositionDao struct {
	bun.BaseModel `bun:"table:positions,alias:p"`
	TokenAddress  string     `bun:"token_address,pk,type:varchar(42)"`
	Name          string     `bun:"name,type:varchar(255)"`
	Symbol        string     `bun:"symbol,type:varchar(64)"`
	Venue         string     `bun:"venue,notnull,type:varchar(32)"`
	PoolAddress   string     `bun:"pool_address,notnull,type:varchar(42)"`
	State         string     `bun:"state,notnull,type:varchar(32)"`
	AmountBought  string     `bun:"amount_bought,notnull,type:numeric(78,0)"`
	EthSpent      string     `bun:"eth_spent,notnull,type:numeric(78,0)"`
	EthReceived   string     `bun:"eth_received,notnull,type:numeric(78,0)"`
	GasCost       string     `bun:"gas_cost,notnull,type:numeric(78,0)"`
	PnL           string     `bun:"pnl,notnull,type:numeric(78,0)"`
	Verdict       *string    `bun:"verdict,type:varchar(32)"`
	RemovalReason *string    `bun:"removal_reason,type:text"`
	OpenedAt      time.Time  `bun:"opened_at,notnull"`
	ClosedAt      *time.Time `bun:"closed_at"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func toTradeDao(tr *Trade) *TradeDao {
	dao := &TradeDao{
		ID:           tr.ID,
		TokenAddress: tr.Token,
		Name:         tr.Name,
		Symbol:       tr.Symbol,
		Side:         string(tr.Side),
		Amount:       intString(tr.Amount),
		EthAmount:    intString(tr.EthAmount),
		GasCost:      intString(tr.GasCost),
		Status:       tr.Status,
		Simulated:    tr.Simulated,
		CreatedAt:    tr.CreatedAt,
	}
	if tr.TxHash != "" {
		dao.TxHash = &tr.TxHash
	}
	return dao
}

func toTrade(dao *TradeDao) *Trade {
	tr := &Trade{
		ID:        dao.ID,
		Token:     dao.TokenAddress,
		Name:      dao.Name,
		Symbol:    dao.Symbol,
		Side:      executor.Side(dao.Side),
		Amount:    parseInt(dao.Amount),
		EthAmount: parseInt(dao.EthAmount),
		GasCost:   parseInt(dao.GasCost),
		Status:    dao.Status,
		Simulated: dao.Simulated,
		CreatedAt: dao.CreatedAt,
	}
	if dao.TxHash != nil {
		tr.TxHash = *dao.TxHash
	}
	return tr
}

func toPositionDao(pos *Position) *PositionDao {
	dao := &PositionDao{
		TokenAddress: pos.Token,
		Name:         pos.Name,
		Symbol:       pos.Symbol,
		Venue:        string(pos.Venue),
		PoolAddress:  pos.Pool,
		State:        pos.State.String(),
		AmountBought: intString(pos.AmountBought),
		EthSpent:     intString(pos.EthSpent),
		EthReceived:  intString(pos.EthReceived),
		GasCost:      intString(pos.GasCost),
		PnL:          intString(pos.PnL),
		OpenedAt:     pos.OpenedAt,
		ClosedAt:     pos.ClosedAt,
		UpdatedAt:    time.Now().UTC(),
	}
	if pos.Verdict != "" {
		dao.Verdict = &pos.Verdict
	}
	if pos.RemovalReason != "" {
		dao.RemovalReason = &pos.RemovalReason
	}
	return dao
}

func toPosition(dao *PositionDao) *Position {
	pos := &Position{
		Token:        dao.TokenAddress,
		Name:         dao.Name,
		Symbol:       dao.Symbol,
		Venue:        token.Venue(dao.Venue),
		Pool:         dao.PoolAddress,
		AmountBought: parseInt(dao.AmountBought),
		EthSpent:     parseInt(dao.EthSpent),
		EthReceived:  parseInt(dao.EthReceived),
		GasCost:      parseInt(dao.GasCost),
		PnL:          parseInt(dao.PnL),
		OpenedAt:     dao.OpenedAt,
		ClosedAt:     dao.ClosedAt,
	}
	if st, err := token.ParseState(dao.State); err == nil {
		pos.State = st
	}
	if dao.Verdict != nil {
		pos.Verdict = *dao.Verdict
	}
	if dao.RemovalReason != nil {
		pos.RemovalReason = *dao.RemovalReason
	}
	return pos
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseInt reads a numeric column; postgres may render a scale suffix.
func parseInt(s string) *big.Int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			s = s[:i]
			break
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
