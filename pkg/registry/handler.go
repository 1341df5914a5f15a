package registry

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/apmfree78/snipper-sub000/pkg/app/errors"
	apphttp "github.com/apmfree78/snipper-sub000/pkg/app/http"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// Handler exposes read-only views of the registry over HTTP.
type Handler struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHandler creates a registry handler.
func NewHandler(registry *Registry, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		logger:   logger,
	}
}

// TokenResponse is the JSON view of a tracked token.
type TokenResponse struct {
	token.Token
	ProfitLoss string `json:"profit_loss"`
}

// Routes mounts the handler on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", apphttp.HandleError(h.list))
	r.Get("/{address}", apphttp.HandleError(h.get))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) error {
	var tokens []token.Token
	if raw := r.URL.Query().Get("state"); raw != "" {
		st, err := token.ParseState(raw)
		if err != nil {
			return apperrors.BadRequestError(err, fmt.Sprintf("unknown state %q", raw))
		}
		tokens = h.registry.ByState(st)
	} else {
		tokens = h.registry.All()
	}

	resp := make([]TokenResponse, 0, len(tokens))
	for i := range tokens {
		resp = append(resp, toResponse(&tokens[i]))
	}
	return h.writeJSON(w, map[string]any{"tokens": resp, "count": len(resp)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) error {
	address := chi.URLParam(r, "address")
	tok, ok := h.registry.Get(address)
	if !ok {
		return apperrors.ResourceNotFoundError(nil, "token not tracked")
	}
	return h.writeJSON(w, toResponse(&tok))
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
	return nil
}

func toResponse(t *token.Token) TokenResponse {
	pnl := big.NewInt(0)
	if t.State == token.Sold || t.EthReceivedAtSale.Sign() > 0 {
		pnl = t.ProfitLoss()
	}
	return TokenResponse{Token: *t, ProfitLoss: pnl.String()}
}
