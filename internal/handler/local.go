package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	rootBody     = "ollama-proxy ok\n"
	notFoundBody = "not found\n"
)

// Root answers the liveness ping without touching upstream.
func Root(c echo.Context) error {
	return c.String(http.StatusOK, rootBody)
}

// Favicon keeps browsers from logging a 404 on every page load.
// Only the bare path matches; a query string falls through to NotFound.
func Favicon(c echo.Context) error {
	if hasQuery(c) {
		return NotFound(c)
	}
	return c.NoContent(http.StatusNoContent)
}

// NotFound answers GETs outside the forwarded /api/ tree.
func NotFound(c echo.Context) error {
	return c.String(http.StatusNotFound, notFoundBody)
}

// hasQuery reports whether the request target carried a '?', even an empty one.
func hasQuery(c echo.Context) bool {
	u := c.Request().URL
	return u.RawQuery != "" || u.ForceQuery
}
