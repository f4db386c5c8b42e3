// Package server wires configuration, the dashboard cache, the live router
// and the operational endpoints into one HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/moonstream-to/moonlive/client"
	"github.com/moonstream-to/moonlive/internal/config"
	"github.com/moonstream-to/moonlive/internal/dashboards"
	"github.com/moonstream-to/moonlive/internal/layout"
	"github.com/moonstream-to/moonlive/internal/sidebar"
	"github.com/moonstream-to/moonlive/pkg/health"
	"github.com/moonstream-to/moonlive/pkg/limits"
	"github.com/moonstream-to/moonlive/pkg/logging"
	"github.com/moonstream-to/moonlive/pkg/metrics"
	"github.com/moonstream-to/moonlive/pkg/retry"
	"github.com/moonstream-to/moonlive/pkg/router"
	"github.com/moonstream-to/moonlive/pkg/transport"
)

// Page is a live route that carries the sidebar.
type Page struct {
	Pattern string
	Title   string
}

// Pages are the routes the sidebar links to.
var Pages = []Page{
	{Pattern: "/{$}"},
	{Pattern: "/dashboard/{id}", Title: "Dashboard"},
	{Pattern: "/subscriptions", Title: "Subscriptions"},
	{Pattern: "/stream", Title: "Stream"},
	{Pattern: "/account/tokens", Title: "API Tokens"},
}

// Option configures a Server.
type Option func(*Server)

// WithLogger replaces the logger built from the config.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithHTTPClient sets the client used for the Moonstream API.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Server) { s.httpClient = hc }
}

// WithRedis uses an existing Redis client for the dashboard cache instead
// of dialing cache.redis_addr. The caller keeps ownership.
func WithRedis(rdb redis.UniversalClient) Option {
	return func(s *Server) {
		s.redis = rdb
		s.ownsRedis = false
	}
}

// Server is the moonlive HTTP server.
type Server struct {
	cfg        *config.Config
	log        logging.Logger
	version    string
	httpClient *http.Client

	redis     redis.UniversalClient
	ownsRedis bool

	metrics *metrics.Metrics
	cache   *dashboards.Cache
	router  *router.Router
	health  *health.Checker
}

// New builds the server. Nothing listens until Serve.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		l, err := newLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		s.log = l
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: cfg.API.Timeout}
	}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.NewWithRuntime()
	}

	s.cache = s.newCache()
	s.health = s.newHealth()
	s.router = s.newRouter()
	return s, nil
}

func newLogger(cfg config.LogConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewSlogLogger(
		logging.WithLevel(level),
		logging.WithJSON(cfg.Format == "json"),
	), nil
}

func (s *Server) newCache() *dashboards.Cache {
	rc := retry.DefaultConfig()
	rc.Attempts = s.cfg.API.Attempts

	apiClient := dashboards.NewClient(s.cfg.API.URL,
		dashboards.WithHTTPClient(s.httpClient),
		dashboards.WithRetry(rc),
		dashboards.WithClientLogger(s.log),
	)

	var store dashboards.Store
	switch {
	case s.redis != nil:
		store = dashboards.NewRedisStore(s.redis)
	case s.cfg.Cache.RedisAddr != "":
		s.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{s.cfg.Cache.RedisAddr},
			Password: s.cfg.Cache.RedisPassword,
			DB:       s.cfg.Cache.RedisDB,
		})
		s.ownsRedis = true
		store = dashboards.NewRedisStore(s.redis)
	default:
		store = dashboards.NewMemoryStore()
	}

	return dashboards.NewCache(apiClient, store, s.cfg.Cache.TTL,
		dashboards.WithRecorder(s.metrics),
		dashboards.WithCacheLogger(s.log),
	)
}

func (s *Server) newHealth() *health.Checker {
	c := health.NewChecker(s.version)
	if s.redis != nil {
		rdb := s.redis
		c.AddCriticalCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, health.DefaultTimeout)
	}
	c.AddCheck("moonstream_api", health.HTTPCheck(s.httpClient, strings.TrimRight(s.cfg.API.URL, "/")+"/ping"), health.DefaultTimeout)
	return c
}

func (s *Server) newRouter() *router.Router {
	ws := transport.DefaultWebSocketConfig()
	ws.AllowedOrigins = s.cfg.Server.AllowedOrigins
	ws.InsecureDevMode = s.cfg.Server.InsecureDevMode

	var observer router.Observer
	if s.metrics != nil {
		observer = s.metrics
	}
	opts := []router.Option{
		router.WithLogger(s.log),
		router.WithWebSocketConfig(ws),
		router.WithDefaultLayout(layout.New(layout.Options{
			Description: "Moonstream dashboards, subscriptions and streams.",
		})),
	}
	if observer != nil {
		opts = append(opts, router.WithObserver(observer))
	}
	r := router.New(opts...)

	headers := router.DefaultSecureHeadersConfig()
	if origin := originOf(s.cfg.Sidebar.LogoURL); origin != "" {
		headers.ImageSources = []string{origin}
	}
	r.Use(
		router.Recovery(s.log),
		logging.RequestLogger(s.log),
		router.SecureHeaders(headers),
	)

	if s.cfg.Server.MaxSockets > 0 {
		s.health.AddCriticalCheck("sockets",
			health.CapacityCheck("live sockets", r.Sockets().Count, s.cfg.Server.MaxSockets),
			health.DefaultTimeout)
	}

	deps := sidebar.Deps{
		Dashboards:   s.cache,
		AuthCookie:   s.cfg.Sidebar.AuthCookie,
		Breakpoint:   s.cfg.Sidebar.Breakpoint,
		LogoURL:      s.cfg.Sidebar.LogoURL,
		FetchTimeout: s.cfg.API.Timeout * time.Duration(max(s.cfg.API.Attempts, 1)),
	}
	if s.metrics != nil {
		deps.Modals = s.metrics
	}
	factory := sidebar.New(deps)

	var limited []router.Middleware
	if s.cfg.Server.RateLimit > 0 {
		limited = append(limited, limits.Middleware(s.newLimiter(), s.cfg.Server.TrustProxyHeaders))
	}
	for _, p := range Pages {
		r.Live(p.Pattern, factory, router.WithTitle(p.Title), router.WithRouteMiddleware(limited...))
	}

	r.Handle(layout.ScriptPrefix, http.StripPrefix(layout.ScriptPrefix, client.Handler()))
	if s.metrics != nil {
		r.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}
	r.Handle("/livez", s.health.LivenessHandler())
	r.Handle("/readyz", s.health.ReadinessHandler())
	r.Handle("/healthz", s.health.HealthHandler())
	return r
}

// newLimiter shares counts through Redis when the cache does.
func (s *Server) newLimiter() limits.Limiter {
	if s.redis != nil {
		return limits.NewRedisLimiter(s.redis, s.cfg.Server.RateLimit, time.Minute)
	}
	return limits.NewMemoryLimiter(s.cfg.Server.RateLimit, time.Minute)
}

// originOf returns scheme://host for an absolute URL, or "" for a
// relative one.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the live router.
func (s *Server) Router() *router.Router {
	return s.router
}

// Health returns the readiness checker.
func (s *Server) Health() *health.Checker {
	return s.health
}

// ListenAndServe listens on the configured address and serves until ctx
// is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then drains HTTP requests and
// live sockets within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return logging.ContextWithLogger(context.Background(), s.log)
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", logging.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down", logging.Duration("timeout", s.cfg.Server.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		// hijacked sockets are not tracked by http.Server
		return errors.Join(
			srv.Shutdown(shutdownCtx),
			s.router.Shutdown(shutdownCtx),
		)
	})
	return g.Wait()
}

// Close releases the Redis client if the server dialed it.
func (s *Server) Close() error {
	if s.redis != nil && s.ownsRedis {
		return s.redis.Close()
	}
	return nil
}
