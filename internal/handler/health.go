package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"ollama-proxy-go/internal/model"
	"ollama-proxy-go/internal/service"
)

// HealthHandler serves the upstream health check.
type HealthHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(svc *service.ProxyService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: svc,
		logger:  logger.With("component", "health_handler"),
	}
}

// Health probes upstream /api/version. It answers 200 only when upstream
// answered 200, and 502 otherwise. Only the bare path matches; a query
// string falls through to NotFound without an upstream call.
func (h *HealthHandler) Health(c echo.Context) error {
	if hasQuery(c) {
		return NotFound(c)
	}
	report, err := h.service.Probe(c.Request().Context())
	if err != nil {
		h.logger.Error("health probe failed", "err", err)
		return c.JSON(http.StatusBadGateway, model.HealthReport{Error: describeFailure(err)})
	}
	if !report.OK {
		h.logger.Warn("upstream unhealthy", "upstream_status", report.UpstreamStatus)
		return c.JSON(http.StatusBadGateway, report)
	}
	return c.JSON(http.StatusOK, report)
}
