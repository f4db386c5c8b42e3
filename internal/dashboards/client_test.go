package dashboards

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonstream-to/moonlive/pkg/logging"
	"github.com/moonstream-to/moonlive/pkg/retry"
)

const listBody = `{"resources":[
	{"id":"b7","resource_data":{"name":"Whales"}},
	{"id":"a1","application_id":"app","resource_data":{"name":"Mints"}}
]}`

func fastRetry() *retry.Config {
	return &retry.Config{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/", WithHTTPClient(srv.Client()), WithRetry(fastRetry()), WithClientLogger(logging.NopLogger{}))
	return c, &calls
}

func TestClient_ListDashboards(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dashboards/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(listBody))
	})

	list, err := c.ListDashboards(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "b7", list[0].ID)
	assert.Equal(t, "Whales", list[0].Name())
	assert.Equal(t, "a1", list[1].ID)
	assert.Equal(t, "app", list[1].ApplicationID)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_EmptyResources(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	list, err := c.ListDashboards(context.Background(), "tok")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var n atomic.Int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) < 3 {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		w.Write([]byte(listBody))
	})

	list, err := c.ListDashboards(context.Background(), "tok")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_GivesUpAfterAttempts(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.ListDashboards(context.Background(), "tok")
	assert.ErrorIs(t, err, retry.ErrExhausted)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_NoRetryOnUnauthorized(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid token"}`, http.StatusUnauthorized)
	})

	_, err := c.ListDashboards(context.Background(), "expired")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Unauthorized())
	assert.False(t, apiErr.Temporary())
	assert.Contains(t, apiErr.Error(), "invalid token")
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_MalformedBody(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resources": [`))
	})

	_, err := c.ListDashboards(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrDecode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_NoToken(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.ListDashboards(context.Background(), "")
	assert.True(t, errors.Is(err, ErrNoToken))
	assert.EqualValues(t, 0, calls.Load())
}

func TestAPIError_Message(t *testing.T) {
	assert.Equal(t, "moonstream api: status 500", (&APIError{StatusCode: 500}).Error())
	assert.True(t, (&APIError{StatusCode: http.StatusTooManyRequests}).Temporary())
	assert.True(t, (&APIError{StatusCode: http.StatusForbidden}).Unauthorized())
}
