package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"ollama-proxy-go/internal/metrics"
)

// MetricsMiddleware counts inbound requests and observes their latency and
// response size. Preflights are counted too; the middleware sits ahead of CORS.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			method := metrics.NormalizeMethod(c.Request().Method)
			path := metrics.NormalizePath(c.Request().URL.Path)
			status := strconv.Itoa(resolveStatus(c, err))

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(time.Since(start).Seconds())
			m.ResponseSize.WithLabelValues(path).Observe(float64(c.Response().Size))

			return err
		}
	}
}
