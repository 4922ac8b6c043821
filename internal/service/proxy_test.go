package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"ollama-proxy-go/internal/client"
	"ollama-proxy-go/internal/config"
	"ollama-proxy-go/internal/model"
)

func newTestService(t *testing.T, baseURL string) *ProxyService {
	t.Helper()
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:              baseURL,
			HealthTimeoutSeconds: 10,
			GetTimeoutSeconds:    10,
			PostTimeoutSeconds:   10,
			IdleConnections:      10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	oc := client.NewOllamaClient(cfg, logger, nil)
	t.Cleanup(oc.Close)
	svc, err := NewProxyService(oc, cfg, logger)
	if err != nil {
		t.Fatalf("NewProxyService: %v", err)
	}
	return svc
}

func TestBuildUpstreamURL(t *testing.T) {
	s := &ProxyService{baseURL: "http://localhost:11434"}

	tests := []struct {
		name     string
		path     string
		rawQuery string
		want     string
	}{
		{"plain path", "/api/tags", "", "http://localhost:11434/api/tags"},
		{"query kept verbatim", "/api/tags", "a=1&b=%2F", "http://localhost:11434/api/tags?a=1&b=%2F"},
		{"encoded path kept", "/api/blobs/sha256:abc%20d", "", "http://localhost:11434/api/blobs/sha256:abc%20d"},
		{"repeated keys kept in order", "/api/x", "k=2&k=1", "http://localhost:11434/api/x?k=2&k=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.buildUpstreamURL(tt.path, tt.rawQuery)
			if got != tt.want {
				t.Errorf("buildUpstreamURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewProxyService_UsesConfiguredBaseURL(t *testing.T) {
	// config.Load normalises the trailing slash; the service takes the value as given.
	svc := newTestService(t, "http://localhost:11434")
	if svc.BaseURL() != "http://localhost:11434" {
		t.Errorf("BaseURL() = %q, want %q", svc.BaseURL(), "http://localhost:11434")
	}
}

func TestRequestHeaders(t *testing.T) {
	s := &ProxyService{}

	tests := []struct {
		name   string
		method string
		header http.Header
		wantCT string
	}{
		{"POST keeps content type", http.MethodPost, http.Header{"Content-Type": {"text/plain"}}, "text/plain"},
		{"POST defaults content type", http.MethodPost, http.Header{}, "application/json"},
		{"GET sends none", http.MethodGet, http.Header{"Content-Type": {"text/plain"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.requestHeaders(&model.ProxyRequest{Method: tt.method, Header: tt.header})
			if ct := got.Get("Content-Type"); ct != tt.wantCT {
				t.Errorf("Content-Type = %q, want %q", ct, tt.wantCT)
			}
			if ua := got.Get("User-Agent"); ua != userAgent {
				t.Errorf("User-Agent = %q, want %q", ua, userAgent)
			}
			if got.Get("Authorization") != "" {
				t.Error("unexpected Authorization header")
			}
		})
	}
}

func TestFilterResponseHeaders(t *testing.T) {
	s := &ProxyService{}

	got := s.filterResponseHeaders(http.Header{
		"Content-Type":      {"application/x-ndjson"},
		"Content-Length":    {"42"},
		"Transfer-Encoding": {"chunked"},
		"Set-Cookie":        {"session=abc"},
	})
	if len(got) != 1 {
		t.Errorf("kept %d headers, want only Content-Type: %v", len(got), got)
	}
	if ct := got.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/x-ndjson")
	}

	if ct := s.filterResponseHeaders(http.Header{}).Get("Content-Type"); ct != "application/json" {
		t.Errorf("default Content-Type = %q, want %q", ct, "application/json")
	}
}

func TestForward_GET(t *testing.T) {
	var gotURI string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3"}]}`))
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	resp, err := svc.Forward(&model.ProxyRequest{
		Ctx:      context.Background(),
		Method:   http.MethodGet,
		Path:     "/api/tags",
		RawQuery: "verbose=true",
		Header:   http.Header{},
	})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	if gotURI != "/api/tags?verbose=true" {
		t.Errorf("upstream request URI = %q, want %q", gotURI, "/api/tags?verbose=true")
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if string(resp.Body) != `{"models":[{"name":"llama3"}]}` {
		t.Errorf("body = %q", resp.Body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestForward_POST(t *testing.T) {
	var gotBody []byte
	var gotCT string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotCT = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":"hi","done":true}`))
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	resp, err := svc.Forward(&model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodPost,
		Path:   "/api/generate",
		Header: http.Header{},
		Body:   []byte(`{"model":"x"}`),
	})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	if string(gotBody) != `{"model":"x"}` {
		t.Errorf("upstream body = %q, want %q", gotBody, `{"model":"x"}`)
	}
	if gotCT != "application/json" {
		t.Errorf("upstream Content-Type = %q, want default %q", gotCT, "application/json")
	}
	if string(resp.Body) != `{"response":"hi","done":true}` {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestForward_POSTEmptyBody(t *testing.T) {
	var gotLen int64 = -2
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.ContentLength
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	if _, err := svc.Forward(&model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodPost,
		Path:   "/api/ps",
		Header: http.Header{},
	}); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if gotLen != 0 {
		t.Errorf("upstream ContentLength = %d, want 0", gotLen)
	}
}

func TestForward_ErrorStatusPassesThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid model name"}`))
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	resp, err := svc.Forward(&model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodPost,
		Path:   "/api/chat",
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("Forward() error = %v; upstream 4xx is not a proxy failure", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if string(resp.Body) != `{"error":"invalid model name"}` {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestForward_BinaryBodyUnchanged(t *testing.T) {
	payload := []byte{0x00, 0xff, 0xfe, '\n', 0x80, 'x'}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(payload)
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	resp, err := svc.Forward(&model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodGet,
		Path:   "/api/blobs/x",
		Header: http.Header{},
	})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if !bytes.Equal(resp.Body, payload) {
		t.Errorf("body = %v, want %v", resp.Body, payload)
	}
}

func TestForward_TransportFailure(t *testing.T) {
	svc := newTestService(t, "http://127.0.0.1:1")
	_, err := svc.Forward(&model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodGet,
		Path:   "/api/tags",
		Header: http.Header{},
	})
	if err == nil {
		t.Fatal("Forward() expected error for unreachable upstream, got nil")
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantOK      bool
		wantStatus  int
		wantVersion any
		wantRaw     string
	}{
		{"healthy", http.StatusOK, `{"version":"0.1.2"}`, true, 0, "0.1.2", ""},
		{"healthy without version field", http.StatusOK, `{}`, true, 0, nil, ""},
		{"malformed body", http.StatusOK, "not json", true, 0, nil, "not json"},
		{"invalid utf-8 replaced", http.StatusOK, "v\xff1", true, 0, nil, "v\uFFFD1"},
		{"json array is not an object", http.StatusOK, `["0.1.2"]`, true, 0, nil, `["0.1.2"]`},
		{"upstream error", http.StatusInternalServerError, `{"error":"boom"}`, false, 500, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/version" {
					t.Errorf("probe path = %q, want /api/version", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer upstream.Close()

			svc := newTestService(t, upstream.URL)
			report, err := svc.Probe(context.Background())
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if report.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v", report.OK, tt.wantOK)
			}
			if report.UpstreamStatus != tt.wantStatus {
				t.Errorf("UpstreamStatus = %d, want %d", report.UpstreamStatus, tt.wantStatus)
			}
			if report.Version != tt.wantVersion {
				t.Errorf("Version = %v, want %v", report.Version, tt.wantVersion)
			}
			if report.Raw != tt.wantRaw {
				t.Errorf("Raw = %q, want %q", report.Raw, tt.wantRaw)
			}
			if tt.wantOK && report.Upstream != upstream.URL {
				t.Errorf("Upstream = %q, want %q", report.Upstream, upstream.URL)
			}
		})
	}
}

func TestProbe_TransportFailure(t *testing.T) {
	svc := newTestService(t, "http://127.0.0.1:1")
	if _, err := svc.Probe(context.Background()); err == nil {
		t.Fatal("Probe() expected error for unreachable upstream, got nil")
	}
}
