package tradestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/apmfree78/snipper-sub000/pkg/app/errors"
	apphttp "github.com/apmfree78/snipper-sub000/pkg/app/http"
	"github.com/apmfree78/snipper-sub000/pkg/market"
)

// Handler serves the trade ledger over HTTP.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a ledger handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Routes mounts the handler on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/positions", apphttp.HandleError(h.listPositions))
	r.Get("/positions/{address}", apphttp.HandleError(h.getPosition))
	r.Get("/trades", apphttp.HandleError(h.listTrades))
	r.Get("/trades/{id}", apphttp.HandleError(h.getTrade))
	r.Get("/summary", apphttp.HandleError(h.summary))
}

// PositionResponse is the JSON view of a position. Amounts are wei strings.
type PositionResponse struct {
	Token         string     `json:"token"`
	Name          string     `json:"name"`
	Symbol        string     `json:"symbol"`
	Venue         string     `json:"venue"`
	Pool          string     `json:"pool"`
	State         string     `json:"state"`
	AmountBought  string     `json:"amount_bought"`
	EthSpent      string     `json:"eth_spent"`
	EthReceived   string     `json:"eth_received"`
	GasCost       string     `json:"gas_cost"`
	PnL           string     `json:"pnl"`
	PnLEther      string     `json:"pnl_ether"`
	Verdict       string     `json:"verdict,omitempty"`
	RemovalReason string     `json:"removal_reason,omitempty"`
	OpenedAt      time.Time  `json:"opened_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// TradeResponse is the JSON view of a ledger entry.
type TradeResponse struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Amount    string    `json:"amount"`
	EthAmount string    `json:"eth_amount"`
	GasCost   string    `json:"gas_cost"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Status    string    `json:"status"`
	Simulated bool      `json:"simulated"`
	CreatedAt time.Time `json:"created_at"`
}

// SummaryResponse is the JSON view of Summary.
type SummaryResponse struct {
	Positions        int    `json:"positions"`
	Open             int    `json:"open"`
	Closed           int    `json:"closed"`
	Wins             int    `json:"wins"`
	Losses           int    `json:"losses"`
	EthSpent         string `json:"eth_spent"`
	EthReceived      string `json:"eth_received"`
	GasCost          string `json:"gas_cost"`
	RealizedPnL      string `json:"realized_pnl"`
	RealizedPnLEther string `json:"realized_pnl_ether"`
}

func (h *Handler) listPositions(w http.ResponseWriter, r *http.Request) error {
	opts, err := queryOptions(r)
	if err != nil {
		return err
	}
	if raw := r.URL.Query().Get("open"); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			return apperrors.BadRequestError(err, "open must be true or false")
		}
		opts = append(opts, OnlyOpen(open))
	}

	positions, err := h.store.ListPositions(r.Context(), opts...)
	if err != nil {
		h.logger.Error("Failed to list positions", zap.Error(err))
		return apperrors.DependencyError(err, "failed to list positions")
	}
	resp := make([]PositionResponse, 0, len(positions))
	for _, p := range positions {
		resp = append(resp, toPositionResponse(p))
	}
	return h.writeJSON(w, map[string]any{"positions": resp, "count": len(resp)})
}

func (h *Handler) getPosition(w http.ResponseWriter, r *http.Request) error {
	address := chi.URLParam(r, "address")
	pos, err := h.store.GetPosition(r.Context(), address)
	if err != nil {
		if errors.Is(err, ErrPositionNotFound) {
			return apperrors.ResourceNotFoundError(err, "position not found")
		}
		h.logger.Error("Failed to get position", zap.String("address", address), zap.Error(err))
		return apperrors.DependencyError(err, "failed to get position")
	}
	return h.writeJSON(w, toPositionResponse(pos))
}

func (h *Handler) listTrades(w http.ResponseWriter, r *http.Request) error {
	opts, err := queryOptions(r)
	if err != nil {
		return err
	}
	trades, err := h.store.ListTrades(r.Context(), opts...)
	if err != nil {
		h.logger.Error("Failed to list trades", zap.Error(err))
		return apperrors.DependencyError(err, "failed to list trades")
	}
	resp := make([]TradeResponse, 0, len(trades))
	for _, t := range trades {
		resp = append(resp, toTradeResponse(t))
	}
	return h.writeJSON(w, map[string]any{"trades": resp, "count": len(resp)})
}

func (h *Handler) getTrade(w http.ResponseWriter, r *http.Request) error {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid trade id")
	}
	trade, err := h.store.GetTrade(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTradeNotFound) {
			return apperrors.ResourceNotFoundError(err, "trade not found")
		}
		h.logger.Error("Failed to get trade", zap.Stringer("id", id), zap.Error(err))
		return apperrors.DependencyError(err, "failed to get trade")
	}
	return h.writeJSON(w, toTradeResponse(trade))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) error {
	s, err := h.store.Summary(r.Context())
	if err != nil {
		h.logger.Error("Failed to summarize positions", zap.Error(err))
		return apperrors.DependencyError(err, "failed to summarize positions")
	}
	return h.writeJSON(w, SummaryResponse{
		Positions:        s.Positions,
		Open:             s.Open,
		Closed:           s.Closed,
		Wins:             s.Wins,
		Losses:           s.Losses,
		EthSpent:         intString(s.EthSpent),
		EthReceived:      intString(s.EthReceived),
		GasCost:          intString(s.GasCost),
		RealizedPnL:      intString(s.RealizedPnL),
		RealizedPnLEther: formatEther(s.RealizedPnL),
	})
}

func queryOptions(r *http.Request) ([]QueryOption, error) {
	q := r.URL.Query()
	var opts []QueryOption
	if tok := q.Get("token"); tok != "" {
		opts = append(opts, ByToken(tok))
	}

	limit, offset := 0, 0
	var err error
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return nil, apperrors.BadRequestError(err, fmt.Sprintf("invalid limit %q", raw))
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return nil, apperrors.BadRequestError(err, fmt.Sprintf("invalid offset %q", raw))
		}
	}
	if limit > 0 || offset > 0 {
		opts = append(opts, WithPage(limit, offset))
	}
	return opts, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
	return nil
}

func toPositionResponse(p *Position) PositionResponse {
	return PositionResponse{
		Token:         p.Token,
		Name:          p.Name,
		Symbol:        p.Symbol,
		Venue:         string(p.Venue),
		Pool:          p.Pool,
		State:         p.State.String(),
		AmountBought:  intString(p.AmountBought),
		EthSpent:      intString(p.EthSpent),
		EthReceived:   intString(p.EthReceived),
		GasCost:       intString(p.GasCost),
		PnL:           intString(p.PnL),
		PnLEther:      formatEther(p.PnL),
		Verdict:       p.Verdict,
		RemovalReason: p.RemovalReason,
		OpenedAt:      p.OpenedAt,
		ClosedAt:      p.ClosedAt,
	}
}

func toTradeResponse(t *Trade) TradeResponse {
	return TradeResponse{
		ID:        t.ID.String(),
		Token:     t.Token,
		Symbol:    t.Symbol,
		Side:      string(t.Side),
		Amount:    intString(t.Amount),
		EthAmount: intString(t.EthAmount),
		GasCost:   intString(t.GasCost),
		TxHash:    t.TxHash,
		Status:    t.Status,
		Simulated: t.Simulated,
		CreatedAt: t.CreatedAt,
	}
}

func formatEther(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return market.FormatEther(v)
}
