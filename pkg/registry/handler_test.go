package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(r *Registry) http.Handler {
	router := chi.NewRouter()
	router.Route("/tokens", NewHandler(r, zap.NewNop()).Routes)
	return router
}

func TestHandler_ListAndFilter(t *testing.T) {
	r := New(zap.NewNop())
	r.InsertOrGet(newToken("x"))
	router := newTestRouter(r)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tokens/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tokens []map[string]any `json:"tokens"`
		Count  int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "detected", body.Tokens[0]["state"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tokens/?state=bought", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Count)
}

func TestHandler_BadState(t *testing.T) {
	router := newTestRouter(New(zap.NewNop()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tokens/?state=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetByAddress(t *testing.T) {
	r := New(zap.NewNop())
	r.InsertOrGet(newToken("x"))
	router := newTestRouter(r)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tokens/"+tokenAddr, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "x", body["name"])
	assert.Equal(t, "0", body["profit_loss"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tokens/0x0000000000000000000000000000000000000001", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
