// Package model defines shared types for the proxy.
package model

import (
	"context"
	"encoding/json"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// ProxyResponse is any HTTP response received from upstream, whatever its
// status. Transport failures never produce one.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HealthReport is the outcome of a /health probe.
// A healthy report carries Upstream and Version (nil renders as null); an
// unhealthy one carries either Error or UpstreamStatus.
type HealthReport struct {
	OK             bool
	Upstream       string
	Version        any
	Error          string
	UpstreamStatus int

	// Raw holds the upstream body when it was not a JSON object.
	Raw string
}

// MarshalJSON renders only the fields that belong to the report's shape.
func (r HealthReport) MarshalJSON() ([]byte, error) {
	if r.OK {
		return json.Marshal(struct {
			OK       bool   `json:"ok"`
			Upstream string `json:"upstream"`
			Version  any    `json:"version"`
		}{r.OK, r.Upstream, r.Version})
	}
	return json.Marshal(struct {
		OK             bool   `json:"ok"`
		Error          string `json:"error,omitempty"`
		UpstreamStatus int    `json:"upstream_status,omitempty"`
	}{r.OK, r.Error, r.UpstreamStatus})
}
