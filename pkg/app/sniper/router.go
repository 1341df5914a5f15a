package sniper

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apperrors "github.com/apmfree78/snipper-sub000/pkg/app/errors"
	apphttp "github.com/apmfree78/snipper-sub000/pkg/app/http"
	"github.com/apmfree78/snipper-sub000/pkg/config"
	"github.com/apmfree78/snipper-sub000/pkg/registry"
	"github.com/apmfree78/snipper-sub000/pkg/token"
	"github.com/apmfree78/snipper-sub000/pkg/tradestore"
)

const defaultHTTPMiddlewareTimeout = 60 * time.Second

// EngineStatus is the view of the scheduler engine served by /ready and /status.
type EngineStatus interface {
	Ready() bool
	LastBlock() uint64
	LastFailureRate() float64
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Status          string         `json:"status"`
	Chain           string         `json:"chain"`
	Mode            string         `json:"mode"`
	Venue           string         `json:"venue"`
	TradingEnabled  bool           `json:"trading_enabled"`
	LedgerEnabled   bool           `json:"ledger_enabled"`
	LastBlock       uint64         `json:"last_block"`
	LastFailureRate float64        `json:"last_failure_rate"`
	Tracked         int            `json:"tracked"`
	ByState         map[string]int `json:"by_state"`
}

// newRouter mounts the operational API. store may be nil when the ledger is
// disabled; the ledger routes then answer 503.
func newRouter(cfg *config.Config, reg *registry.Registry, store tradestore.Store, engine EngineStatus, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !engine.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tokens", registry.NewHandler(reg, logger).Routes)
		r.Get("/status", handleGetStatus(cfg, reg, store != nil, engine, logger))

		if store != nil {
			tradestore.NewHandler(store, logger).Routes(r)
			return
		}
		disabled := apphttp.HandleError(func(http.ResponseWriter, *http.Request) error {
			return apperrors.UnavailableError("trade ledger is disabled")
		})
		for _, path := range []string{"/positions", "/positions/{address}", "/trades", "/trades/{id}", "/summary"} {
			r.Get(path, disabled)
		}
	})

	return r
}

func handleGetStatus(cfg *config.Config, reg *registry.Registry, ledger bool, engine EngineStatus, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		counts := reg.CountByState()
		byState := make(map[string]int, len(counts))
		tracked := 0
		for s := token.Detected; s <= token.Removed; s++ {
			byState[s.String()] = counts[s]
			tracked += counts[s]
		}

		status := "running"
		if !engine.Ready() {
			status = "starting"
		}
		resp := StatusResponse{
			Status:          status,
			Chain:           cfg.Ethereum.Chain,
			Mode:            cfg.Trading.Mode,
			Venue:           cfg.Trading.Venue,
			TradingEnabled:  cfg.Trading.Enabled,
			LedgerEnabled:   ledger,
			LastBlock:       engine.LastBlock(),
			LastFailureRate: engine.LastFailureRate(),
			Tracked:         tracked,
			ByState:         byState,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("Failed to encode response", zap.Error(err))
		}
	}
}
