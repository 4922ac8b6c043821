package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// resolveStatus reports the status the client will see. A returned error is
// rendered later by the HTTP error handler, so the response writer does not
// carry that status yet.
func resolveStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
