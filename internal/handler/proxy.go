package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"ollama-proxy-go/internal/model"
	"ollama-proxy-go/internal/service"
)

// ProxyHandler forwards API requests to the upstream Ollama server.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request upstream and relays the upstream status,
// Content-Type and body bytes unchanged. POST bodies are read in full before
// the upstream call is made.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	path, rawQuery := rawPathAndQuery(req)

	var body []byte
	if req.Method == http.MethodPost {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return he
			}
			return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body").SetInternal(err)
		}
		body = b
	}

	pr := &model.ProxyRequest{
		Ctx:      req.Context(),
		Method:   req.Method,
		Path:     path,
		RawQuery: rawQuery,
		Header:   req.Header,
		Body:     body,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	return c.Blob(resp.StatusCode, resp.Header.Get(echo.HeaderContentType), resp.Body)
}

// mapError answers a transport failure with 502 and a JSON description.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
	)
	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": describeFailure(err),
	})
}

// describeFailure turns an upstream transport error into the message shown
// to the caller.
func describeFailure(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "upstream request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "client disconnected"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "upstream host unreachable: " + dnsErr.Error()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "upstream connection failed: " + opErr.Error()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "upstream request failed: " + urlErr.Err.Error()
	}
	return "upstream request failed: " + err.Error()
}

// rawPathAndQuery returns the request target exactly as the client sent it,
// split at the first '?'.
func rawPathAndQuery(req *http.Request) (string, string) {
	uri := req.RequestURI
	if !strings.HasPrefix(uri, "/") {
		// Absolute-form or missing request target.
		return req.URL.EscapedPath(), req.URL.RawQuery
	}
	path, query, _ := strings.Cut(uri, "?")
	return path, query
}
