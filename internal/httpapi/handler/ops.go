package handler

import (
	"net/http"
	"time"

	"github.com/pollenwatch/pollenwatch/internal/httpapi/models"
	"github.com/pollenwatch/pollenwatch/internal/httpapi/response"
	"github.com/pollenwatch/pollenwatch/internal/pollen"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version  string
	registry *pollen.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version string, registry *pollen.Registry) *OpsHandler {
	return &OpsHandler{
		version:  version,
		registry: registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, models.HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Locations: len(h.registry.List()),
		Timestamp: time.Now(),
	})
}
