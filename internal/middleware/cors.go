// Package middleware provides Echo middleware for CORS, logging and metrics.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	corsAllowHeaders = "Content-Type, Accept"
	corsAllowMethods = "GET, POST, OPTIONS"
)

// CORS returns an Echo middleware that stamps the cross-origin headers on
// every response and answers preflight requests itself.
//
// Unlike echo's CORS middleware the headers do not depend on the request
// carrying an Origin header, and they survive error responses because they
// are set before the handler runs.
func CORS(allowOrigin string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, allowOrigin)
			h.Set(echo.HeaderAccessControlAllowHeaders, corsAllowHeaders)
			h.Set(echo.HeaderAccessControlAllowMethods, corsAllowMethods)

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
