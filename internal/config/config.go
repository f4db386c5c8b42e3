// Package config holds the moonlive server configuration. Values start from
// Default, are overlaid by an optional YAML file, then by MOONLIVE_*
// environment variables, and are checked by Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix starts every environment override.
const EnvPrefix = "MOONLIVE_"

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	API     APIConfig     `yaml:"api"`
	Cache   CacheConfig   `yaml:"cache"`
	Sidebar SidebarConfig `yaml:"sidebar"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP listener and live sockets.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins for the WebSocket upgrade. Empty means same origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// InsecureDevMode accepts any origin. Never enable it in production.
	InsecureDevMode bool `yaml:"insecure_dev_mode"`

	// MaxSockets fails readiness once this many live sockets are open.
	// Zero disables the check.
	MaxSockets int `yaml:"max_sockets"`

	// RateLimit caps page loads and socket upgrades per client IP per
	// minute. Zero disables it.
	RateLimit int `yaml:"rate_limit"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For or
	// X-Real-IP. Enable it only behind a proxy that sets them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIConfig points at the Moonstream API.
type APIConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	Attempts int           `yaml:"attempts"`
}

// CacheConfig configures the dashboard list cache. With RedisAddr set the
// cache is shared through Redis, otherwise it lives in process memory.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// SidebarConfig holds the sidebar's presentation settings.
type SidebarConfig struct {
	// Breakpoint is the viewport width below which the sidebar behaves as
	// a mobile drawer.
	Breakpoint int    `yaml:"breakpoint"`
	AuthCookie string `yaml:"auth_cookie"`
	LogoURL    string `yaml:"logo_url"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			URL:      "https://api.moonstream.to",
			Timeout:  10 * time.Second,
			Attempts: 3,
		},
		Cache: CacheConfig{
			TTL: 30 * time.Second,
		},
		Sidebar: SidebarConfig{
			Breakpoint: 992,
			AuthCookie: "moonstream_access_token",
			LogoURL:    "https://s3.amazonaws.com/static.simiotics.com/moonstream/assets/moon-logo%2Btext-white.png",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// not empty) and the environment seen through lookup. A nil lookup uses
// os.LookupEnv.
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("ADDR", &c.Server.Addr)
	dur("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	flag("INSECURE_DEV_MODE", &c.Server.InsecureDevMode)
	num("MAX_SOCKETS", &c.Server.MaxSockets)
	num("RATE_LIMIT", &c.Server.RateLimit)
	flag("TRUST_PROXY_HEADERS", &c.Server.TrustProxyHeaders)
	if v, ok := lookup(EnvPrefix + "ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("API_URL", &c.API.URL)
	dur("API_TIMEOUT", &c.API.Timeout)
	num("API_ATTEMPTS", &c.API.Attempts)

	dur("CACHE_TTL", &c.Cache.TTL)
	str("REDIS_ADDR", &c.Cache.RedisAddr)
	str("REDIS_PASSWORD", &c.Cache.RedisPassword)
	num("REDIS_DB", &c.Cache.RedisDB)

	num("BREAKPOINT", &c.Sidebar.Breakpoint)
	str("AUTH_COOKIE", &c.Sidebar.AuthCookie)
	str("LOGO_URL", &c.Sidebar.LogoURL)

	flag("METRICS_ENABLED", &c.Metrics.Enabled)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every problem at once, each wrapping ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Server.Addr == "" {
		bad("server.addr is empty")
	}
	if c.Server.ShutdownTimeout <= 0 {
		bad("server.shutdown_timeout must be positive")
	}
	if c.Server.MaxSockets < 0 {
		bad("server.max_sockets must not be negative")
	}
	if c.Server.RateLimit < 0 {
		bad("server.rate_limit must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		bad("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		bad("log.format %q is not text or json", c.Log.Format)
	}

	if u, err := url.Parse(c.API.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		bad("api.url %q is not an http(s) URL", c.API.URL)
	}
	if c.API.Timeout <= 0 {
		bad("api.timeout must be positive")
	}
	if c.API.Attempts < 1 {
		bad("api.attempts must be at least 1")
	}

	if c.Cache.TTL <= 0 {
		bad("cache.ttl must be positive")
	}

	if c.Sidebar.Breakpoint <= 0 {
		bad("sidebar.breakpoint must be positive")
	}
	if c.Sidebar.AuthCookie == "" {
		bad("sidebar.auth_cookie is empty")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		bad("metrics.path %q must start with /", c.Metrics.Path)
	}

	return errors.Join(errs...)
}

// String renders the configuration as YAML with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.Cache.RedisPassword != "" {
		masked.Cache.RedisPassword = "****"
	}
	out, err := yaml.Marshal(&masked)
	if err != nil {
		return err.Error()
	}
	return string(out)
}
