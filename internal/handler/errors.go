package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// NewHTTPErrorHandler renders framework errors (405, 413, 429, recovered
// panics) as a plain-text status line. Headers already set by middleware,
// CORS included, are left in place.
func NewHTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				"err", err,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.String(code, strings.ToLower(http.StatusText(code))+"\n")
		}
		if werr != nil {
			logger.Error("writing error response", "err", werr)
		}
	}
}
