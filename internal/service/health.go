package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"ollama-proxy-go/internal/model"
)

// versionPath is the upstream endpoint probed by the health check.
const versionPath = "/api/version"

// Probe asks upstream for its version.
//
// A non-nil error means the probe never got an HTTP response. Otherwise the
// report is healthy only for a 200 status. A 200 body that is not a JSON
// object still yields a healthy report, with Raw set and no version.
func (s *ProxyService) Probe(ctx context.Context) (*model.HealthReport, error) {
	header := http.Header{"User-Agent": {userAgent}}
	resp, err := s.client.Do(ctx, http.MethodGet, s.baseURL+versionPath, header, nil, s.cfg.Upstream.HealthTimeout())
	if err != nil {
		return nil, fmt.Errorf("probe upstream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &model.HealthReport{UpstreamStatus: resp.StatusCode}, nil
	}

	report := &model.HealthReport{OK: true, Upstream: s.baseURL}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body, &payload); err != nil || payload == nil {
		report.Raw = strings.ToValidUTF8(string(resp.Body), "\uFFFD")
		s.logger.Warn("upstream version body is not a JSON object",
			"raw", report.Raw,
		)
		return report, nil
	}
	report.Version = payload["version"]
	return report, nil
}
