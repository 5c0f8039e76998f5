package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/nimbus-copilot/services/providers"
	"github.com/upb/nimbus-copilot/utils"
)

// Version is reported by the status endpoint
const Version = "0.1.0"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusResponse represents the application status response
type StatusResponse struct {
	Version     string   `json:"version"`
	Environment string   `json:"environment"`
	Providers   []string `json:"providers"`
	Skipped     []string `json:"skipped,omitempty"`
	Fallback    string   `json:"fallback"`
}

// ChainInspector exposes the resolved fallback chain
type ChainInspector interface {
	Providers() []providers.ID
	Skipped() []providers.ID
	Fallback() providers.Adapter
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	chain       ChainInspector
	environment string
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(chain ChainInspector, environment string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		chain:       chain,
		environment: environment,
		logger:      logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// The router can always answer through the mock fallback, so readiness is
// 200 either way; the status is "degraded" when no real provider is
// configured.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	for _, id := range h.chain.Providers() {
		checks[string(id)] = "configured"
	}
	for _, id := range h.chain.Skipped() {
		checks[string(id)] = "not_configured"
	}

	status := "ready"
	if len(h.chain.Providers()) == 0 {
		status = "degraded"
		h.logger.Warn("no completion providers configured, serving mock answers only")
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Version:     Version,
		Environment: h.environment,
		Providers:   idStrings(h.chain.Providers()),
		Skipped:     idStrings(h.chain.Skipped()),
		Fallback:    string(h.chain.Fallback().ID()),
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write status response", zap.Error(err))
	}
}

func idStrings(ids []providers.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
