package handler

import (
	"github.com/labstack/echo/v4"

	"ollama-proxy-go/internal/config"
	"ollama-proxy-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// OPTIONS never reaches a route; the CORS middleware answers it.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/", Root)
	e.GET("/health", health.Health)
	e.GET("/favicon.ico", Favicon)
	e.GET("/api/*", proxy.Handle)
	// echo matches the most specific node first, so /api/* needs its own
	// POST route; /* alone would answer 405 there.
	e.POST("/api/*", proxy.Handle)
	e.POST("/*", proxy.Handle)
	e.GET("/*", NotFound)
}

// RegisterMetrics exposes the Prometheus registry when metrics are enabled.
func RegisterMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if !cfg.Metrics.Enabled {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(m.Handler()))
}
