// Package service implements the forwarding and health-probe logic.
package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"ollama-proxy-go/internal/client"
	"ollama-proxy-go/internal/config"
	"ollama-proxy-go/internal/model"
)

// defaultContentType is assumed when the caller or upstream omits Content-Type.
const defaultContentType = "application/json"

const userAgent = "ollama-proxy-go/1.0"

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client  *client.OllamaClient
	cfg     *config.Config
	logger  *slog.Logger
	baseURL string
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.OllamaClient, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	if _, err := url.Parse(cfg.Upstream.BaseURL); err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	return &ProxyService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "proxy_service"),
		baseURL: cfg.Upstream.BaseURL,
	}, nil
}

// BaseURL returns the upstream base URL requests are forwarded to.
func (s *ProxyService) BaseURL() string {
	return s.baseURL
}

// Forward sends a ProxyRequest to the upstream and returns its response.
//
// Any HTTP response counts as a successful forward, 4xx and 5xx included;
// the returned error is non-nil only for transport failures. The call is
// bounded by the per-method timeout from config.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	upstreamURL := s.buildUpstreamURL(pr.Path, pr.RawQuery)
	header := s.requestHeaders(pr)

	var body []byte
	if pr.Method == http.MethodPost {
		body = pr.Body
		if body == nil {
			body = []byte{}
		}
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
		"bytes_in", len(body),
	)

	resp, err := s.client.Do(pr.Ctx, pr.Method, upstreamURL, header, body, s.cfg.Upstream.TimeoutFor(pr.Method))
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	resp.Header = s.filterResponseHeaders(resp.Header)
	return resp, nil
}

// buildUpstreamURL appends the inbound path and raw query to the base URL
// verbatim, without re-encoding.
func (s *ProxyService) buildUpstreamURL(path, rawQuery string) string {
	if rawQuery == "" {
		return s.baseURL + path
	}
	return s.baseURL + path + "?" + rawQuery
}

// requestHeaders builds the upstream request headers. Only POST carries a
// body, so only POST carries a Content-Type.
func (s *ProxyService) requestHeaders(pr *model.ProxyRequest) http.Header {
	dst := make(http.Header)
	dst.Set("User-Agent", userAgent)
	if pr.Method == http.MethodPost {
		ct := pr.Header.Get("Content-Type")
		if ct == "" {
			ct = defaultContentType
		}
		dst.Set("Content-Type", ct)
	}
	return dst
}

// filterResponseHeaders keeps only Content-Type, defaulting it when upstream
// sent none.
func (s *ProxyService) filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	ct := src.Get("Content-Type")
	if ct == "" {
		ct = defaultContentType
	}
	dst.Set("Content-Type", ct)
	return dst
}
