package sniper

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/pkg/config"
	"github.com/apmfree78/snipper-sub000/pkg/registry"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

type fakeEngine struct {
	ready bool
	block uint64
	rate  float64
}

func (f *fakeEngine) Ready() bool              { return f.ready }
func (f *fakeEngine) LastBlock() uint64        { return f.block }
func (f *fakeEngine) LastFailureRate() float64 { return f.rate }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Ethereum.Chain = "mainnet"
	cfg.Trading.Mode = config.ModeSimulation
	cfg.Trading.Venue = string(token.VenueUniswapV2)
	cfg.Trading.Enabled = true
	cfg.Monitoring.Enabled = true
	return cfg
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRouter_HealthAndReady(t *testing.T) {
	engine := &fakeEngine{}
	router := newRouter(testConfig(), registry.New(zap.NewNop()), nil, engine, zap.NewNop())

	rec := get(router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/ready").Code)

	engine.ready = true
	engine.block = 19_000_000
	rec = get(router, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	router := newRouter(testConfig(), registry.New(zap.NewNop()), nil, &fakeEngine{}, zap.NewNop())
	assert.Equal(t, http.StatusOK, get(router, "/metrics").Code)

	cfg := testConfig()
	cfg.Monitoring.Enabled = false
	router = newRouter(cfg, registry.New(zap.NewNop()), nil, &fakeEngine{}, zap.NewNop())
	assert.Equal(t, http.StatusNotFound, get(router, "/metrics").Code)
}

func TestRouter_Status(t *testing.T) {
	reg := registry.New(zap.NewNop())
	tok := token.New(common.HexToAddress("0x1111111111111111111111111111111111111111"), common.HexToAddress("0x2222222222222222222222222222222222222222"), token.VenueUniswapV2, time.Unix(1, 0))
	reg.InsertOrGet(tok)
	require.NoError(t, reg.Transition(tok.Address, token.CheckingHoneypot))

	engine := &fakeEngine{ready: true, block: 42, rate: 0.25}
	rec := get(newRouter(testConfig(), reg, nil, engine, zap.NewNop()), "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "simulation", status.Mode)
	assert.Equal(t, uint64(42), status.LastBlock)
	assert.Equal(t, 0.25, status.LastFailureRate)
	assert.Equal(t, 1, status.Tracked)
	assert.Equal(t, 1, status.ByState["checking_honeypot"])
	assert.Equal(t, 0, status.ByState["bought"])
	assert.False(t, status.LedgerEnabled)
}

func TestRouter_TokensMounted(t *testing.T) {
	reg := registry.New(zap.NewNop())
	tok := token.New(common.HexToAddress("0x1111111111111111111111111111111111111111"), common.HexToAddress("0x2222222222222222222222222222222222222222"), token.VenueUniswapV2, time.Unix(1, 0))
	reg.InsertOrGet(tok)
	router := newRouter(testConfig(), reg, nil, &fakeEngine{}, zap.NewNop())

	assert.Equal(t, http.StatusOK, get(router, "/api/v1/tokens/").Code)
	assert.Equal(t, http.StatusOK, get(router, "/api/v1/tokens/"+tok.Address).Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/api/v1/tokens/0x3333333333333333333333333333333333333333").Code)
}

func TestRouter_LedgerDisabled(t *testing.T) {
	router := newRouter(testConfig(), registry.New(zap.NewNop()), nil, &fakeEngine{}, zap.NewNop())

	for _, path := range []string{"/api/v1/positions", "/api/v1/trades", "/api/v1/summary"} {
		rec := get(router, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}
