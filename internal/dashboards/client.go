package dashboards

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/moonstream-to/moonlive/pkg/logging"
	"github.com/moonstream-to/moonlive/pkg/retry"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// APIError is a non-2xx answer from the Moonstream API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("moonstream api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("moonstream api: status %d: %s", e.StatusCode, e.Body)
}

// Unauthorized reports whether the token was rejected.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Temporary reports whether retrying may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client calls the dashboards endpoint of the Moonstream API.
type Client struct {
	baseURL string
	http    *http.Client
	retry   *retry.Config
	logger  logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRetry sets the retry policy for temporary failures.
func WithRetry(cfg *retry.Config) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithClientLogger sets the logger used for retry notices.
func WithClientLogger(l logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		retry:   retry.DefaultConfig(),
		logger:  logging.DefaultLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry == nil {
		c.retry = retry.DefaultConfig()
	}
	return c
}

// ListDashboards returns the dashboards owned by the token's user in API
// order. Transport errors and 5xx answers are retried; a rejected token is
// not.
func (c *Client) ListDashboards(ctx context.Context, token string) ([]Dashboard, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	cfg := *c.retry
	cfg.OnRetry = func(n int, err error, delay time.Duration) {
		c.logger.Warn("retrying dashboards fetch",
			logging.Int("attempt", n),
			logging.Duration("delay", delay),
			logging.Err(err),
		)
	}

	return retry.DoValue(ctx, &cfg, func(ctx context.Context) ([]Dashboard, error) {
		return c.list(ctx, token)
	})
}

func (c *Client) list(ctx context.Context, token string) ([]Dashboard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/dashboards/", nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get dashboards: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if apiErr.Temporary() {
			return nil, apiErr
		}
		return nil, retry.Permanent(apiErr)
	}

	var out ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: %v", ErrDecode, err))
	}
	if out.Resources == nil {
		out.Resources = []Dashboard{}
	}
	return out.Resources, nil
}
