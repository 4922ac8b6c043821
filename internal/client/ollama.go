// Package client provides the upstream HTTP client for the Ollama API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/peterbourgon/unixtransport"

	"ollama-proxy-go/internal/config"
	"ollama-proxy-go/internal/metrics"
	"ollama-proxy-go/internal/model"
)

// OllamaClient sends requests to the upstream Ollama server.
type OllamaClient struct {
	httpClient *http.Client
	transport  *http.Transport
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewOllamaClient creates an OllamaClient with connection pooling.
// Base URLs with the http+unix and https+unix schemes are dialed over a unix
// domain socket. The metrics parameter is optional; pass nil to disable
// upstream metrics recording.
func NewOllamaClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *OllamaClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	unixtransport.Register(transport)

	return &OllamaClient{
		// No client-wide Timeout: every call carries its own deadline.
		httpClient: &http.Client{Transport: transport},
		transport:  transport,
		logger:     logger.With("component", "ollama_client"),
		metrics:    m,
	}
}

// Do executes a request against the upstream and reads the whole response
// within timeout. Any HTTP status is returned as a response; only transport
// failures (dial, TLS, deadline, truncated body) are returned as errors.
func (c *OllamaClient) Do(ctx context.Context, method, url string, header http.Header, body []byte, timeout time.Duration) (*model.ProxyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header != nil {
		req.Header = header
	}

	c.logger.Debug("upstream request",
		"method", method,
		"path", req.URL.Path,
		"timeout", timeout,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, 0, start)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(method, 0, start)
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	c.observe(method, resp.StatusCode, start)

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// observe records upstream latency, and the response status when one was received.
func (c *OllamaClient) observe(method string, status int, start time.Time) {
	if c.metrics == nil {
		return
	}
	m := metrics.NormalizeMethod(method)
	c.metrics.UpstreamDuration.WithLabelValues(m).Observe(time.Since(start).Seconds())
	if status == 0 {
		c.metrics.UpstreamFailures.WithLabelValues(m).Inc()
		return
	}
	c.metrics.UpstreamResponses.WithLabelValues(m, strconv.Itoa(status)).Inc()
}

// Close releases idle upstream connections.
func (c *OllamaClient) Close() {
	c.transport.CloseIdleConnections()
}
