package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/nimbus-copilot/services/providers"
	mockprovider "github.com/upb/nimbus-copilot/services/providers/mock"
)

type staticChain struct {
	configured []providers.ID
	skipped    []providers.ID
}

func (c staticChain) Providers() []providers.ID { return c.configured }
func (c staticChain) Skipped() []providers.ID   { return c.skipped }
func (c staticChain) Fallback() providers.Adapter {
	return mockprovider.NewAdapter()
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok)
	return data
}

func TestHandleHealth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("always returns healthy", func(t *testing.T) {
		handler := NewHealthHandler(staticChain{}, "development", logger)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()

		handler.HandleHealth(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		data := decodeData(t, w)
		assert.Equal(t, "healthy", data["status"])
		assert.NotEmpty(t, data["timestamp"])
	})
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	t.Run("ready when a provider is configured", func(t *testing.T) {
		handler := NewHealthHandler(staticChain{
			configured: []providers.ID{providers.Bedrock},
			skipped:    []providers.ID{providers.Friendli},
		}, "development", logger)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)

		data := decodeData(t, w)
		assert.Equal(t, "ready", data["status"])

		checks := data["checks"].(map[string]interface{})
		assert.Equal(t, "configured", checks["bedrock"])
		assert.Equal(t, "not_configured", checks["friendli"])
	})

	t.Run("degraded when nothing is configured", func(t *testing.T) {
		handler := NewHealthHandler(staticChain{
			skipped: []providers.ID{providers.Friendli, providers.Bedrock},
		}, "development", logger)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "degraded", decodeData(t, w)["status"])
	})
}

func TestHandleStatus(t *testing.T) {
	handler := NewHealthHandler(staticChain{
		configured: []providers.ID{providers.Friendli, providers.Bedrock},
	}, "production", zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, Version, data["version"])
	assert.Equal(t, "production", data["environment"])
	assert.Equal(t, []interface{}{"friendli", "bedrock"}, data["providers"])
	assert.Equal(t, "mock", data["fallback"])
	assert.NotContains(t, data, "skipped")
}
