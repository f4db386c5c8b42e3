package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moonlive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 992, cfg.Sidebar.Breakpoint)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9000"
  allowed_origins: ["https://moonstream.to"]
api:
  url: "http://localhost:7191"
  timeout: 3s
cache:
  ttl: 1m
log:
  format: json
`)

	cfg, err := Load(path, env(map[string]string{
		"MOONLIVE_ADDR":       ":9100",
		"MOONLIVE_REDIS_ADDR": "localhost:6379",
		"MOONLIVE_BREAKPOINT": "768",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, []string{"https://moonstream.to"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "http://localhost:7191", cfg.API.URL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 768, cfg.Sidebar.Breakpoint)
	// untouched defaults survive
	assert.Equal(t, "moonstream_access_token", cfg.Sidebar.AuthCookie)
}

func TestLoad_EnvList(t *testing.T) {
	cfg, err := Load("", env(map[string]string{
		"MOONLIVE_ALLOWED_ORIGINS":     " https://a.example , ,https://b.example",
		"MOONLIVE_INSECURE_DEV_MODE":   "true",
		"MOONLIVE_RATE_LIMIT":          "120",
		"MOONLIVE_TRUST_PROXY_HEADERS": "1",
	}))
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Server.RateLimit)
	assert.True(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Server.InsecureDevMode)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""), env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{"unknown yaml field", "server:\n  port: 80\n", nil},
		{"bad duration env", "", map[string]string{"MOONLIVE_CACHE_TTL": "soon"}},
		{"bad int env", "", map[string]string{"MOONLIVE_MAX_SOCKETS": "many"}},
		{"bad bool env", "", map[string]string{"MOONLIVE_METRICS_ENABLED": "maybe"}},
		{"invalid after env", "", map[string]string{"MOONLIVE_API_URL": "ftp://x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path, env(tt.env))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"negative max sockets", func(c *Config) { c.Server.MaxSockets = -1 }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -5 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"relative api url", func(c *Config) { c.API.URL = "/api" }},
		{"zero attempts", func(c *Config) { c.API.Attempts = 0 }},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"zero breakpoint", func(c *Config) { c.Sidebar.Breakpoint = 0 }},
		{"no auth cookie", func(c *Config) { c.Sidebar.AuthCookie = "" }},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestString_MasksPassword(t *testing.T) {
	cfg := Default()
	cfg.Cache.RedisPassword = "hunter2"

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "****")
	assert.Equal(t, "hunter2", cfg.Cache.RedisPassword)
}
