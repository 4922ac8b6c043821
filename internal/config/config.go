// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/ollama-proxy/config.toml",
	"configs/config.toml",
}

// reservedRoutes are answered locally and cannot host the metrics endpoint.
var reservedRoutes = []string{"/", "/health", "/favicon.ico"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config      string           `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host        string           `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port        int              `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Upstream    string           `kong:"short='u',help='Upstream Ollama base URL (overrides config).',env='OLLAMA_UPSTREAM'"`
	AllowOrigin string           `kong:"help='Access-Control-Allow-Origin value (overrides config).',env='CORS_ALLOW_ORIGIN'"`
	LogLevel    string           `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Version     kong.VersionFlag `kong:"short='v',help='Print version and exit.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	CORS     CORSConfig     `toml:"cors"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path, empty when running on defaults
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3030)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	BaseURL              string `toml:"base_url"`
	HealthTimeoutSeconds int    `toml:"health_timeout_seconds"`
	GetTimeoutSeconds    int    `toml:"get_timeout_seconds"`
	PostTimeoutSeconds   int    `toml:"post_timeout_seconds"`
	IdleConnections      int    `toml:"idle_connections"`
}

// CORSConfig holds the cross-origin header settings.
type CORSConfig struct {
	AllowOrigin string `toml:"allow_origin"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// An explicit path (via --config or CONFIG_PATH) must exist. Otherwise
// /etc/ollama-proxy/config.toml then configs/config.toml are searched, and
// built-in defaults are used when neither exists.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Upstream != "" {
		c.Upstream.BaseURL = cli.Upstream
	}
	if cli.AllowOrigin != "" {
		c.CORS.AllowOrigin = cli.AllowOrigin
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("upstream.base_url has no host; got %q", c.Upstream.BaseURL)
		}
	case "http+unix", "https+unix":
		if u.Path == "" {
			return fmt.Errorf("upstream.base_url has no socket path; got %q", c.Upstream.BaseURL)
		}
	default:
		return fmt.Errorf("upstream.base_url must use http, https, http+unix or https+unix; got %q", c.Upstream.BaseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("upstream.base_url must not carry a query or fragment; got %q", c.Upstream.BaseURL)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	for name, v := range map[string]int{
		"upstream.health_timeout_seconds": c.Upstream.HealthTimeoutSeconds,
		"upstream.get_timeout_seconds":    c.Upstream.GetTimeoutSeconds,
		"upstream.post_timeout_seconds":   c.Upstream.PostTimeoutSeconds,
		"upstream.idle_connections":       c.Upstream.IdleConnections,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative; got %d", name, v)
		}
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	if strings.ContainsAny(c.CORS.AllowOrigin, "\r\n") {
		return fmt.Errorf("cors.allow_origin must be a single header value; got %q", c.CORS.AllowOrigin)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p == "" || p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
		if p == "/api" || strings.HasPrefix(p, "/api/") {
			return fmt.Errorf("metrics.path %q conflicts with forwarded route \"/api/\"", p)
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with defaults.
// For integer fields zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3030
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 100 * 1024 * 1024 // 100 MB, image prompts are large
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "http://localhost:11434"
	}
	if c.Upstream.HealthTimeoutSeconds == 0 {
		c.Upstream.HealthTimeoutSeconds = 10
	}
	if c.Upstream.GetTimeoutSeconds == 0 {
		c.Upstream.GetTimeoutSeconds = 60
	}
	if c.Upstream.PostTimeoutSeconds == 0 {
		c.Upstream.PostTimeoutSeconds = 300
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 16
	}
	if c.CORS.AllowOrigin == "" {
		c.CORS.AllowOrigin = "*"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HealthTimeout is the deadline for the /api/version probe.
func (c *UpstreamConfig) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutSeconds) * time.Second
}

// TimeoutFor returns the forwarding deadline for an inbound method.
// POST covers generation calls and gets the long timeout; everything else
// gets the GET timeout.
func (c *UpstreamConfig) TimeoutFor(method string) time.Duration {
	if method == "POST" {
		return time.Duration(c.PostTimeoutSeconds) * time.Second
	}
	return time.Duration(c.GetTimeoutSeconds) * time.Second
}

// FilePath returns the config file that was loaded, or "" for built-in defaults.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
