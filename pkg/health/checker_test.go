package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func TestCheck_AllPass(t *testing.T) {
	hc := NewChecker("1.2.3")
	hc.AddCheck("cache", ok, time.Second)
	hc.AddCriticalCheck("api", ok, time.Second)

	report := hc.Check(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, "1.2.3", report.Version)
	assert.Len(t, report.Checks, 2)
	for name, res := range report.Checks {
		assert.Equal(t, StatusHealthy, res.Status, name)
		assert.Empty(t, res.Error, name)
	}
	assert.Equal(t, []string{"api", "cache"}, hc.Names())
}

func TestCheck_Aggregation(t *testing.T) {
	tests := []struct {
		name     string
		cacheErr error
		apiErr   error
		want     Status
	}{
		{"non-critical failure degrades", errors.New("redis down"), nil, StatusDegraded},
		{"critical failure is unhealthy", nil, errors.New("api down"), StatusUnhealthy},
		{"both fail", errors.New("redis down"), errors.New("api down"), StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewChecker("")
			hc.AddCheck("cache", func(context.Context) error { return tt.cacheErr }, time.Second)
			hc.AddCriticalCheck("api", func(context.Context) error { return tt.apiErr }, time.Second)

			report := hc.Check(context.Background())
			assert.Equal(t, tt.want, report.Status)
			if tt.cacheErr != nil {
				assert.Equal(t, tt.cacheErr.Error(), report.Checks["cache"].Error)
			}
		})
	}
}

func TestCheck_Timeout(t *testing.T) {
	hc := NewChecker("")
	hc.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 20*time.Millisecond)

	report := hc.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Contains(t, report.Checks["slow"].Error, "deadline")
}

func TestCheck_PanicIsUnhealthy(t *testing.T) {
	hc := NewChecker("")
	hc.AddCriticalCheck("bad", func(context.Context) error { panic("boom") }, time.Second)

	report := hc.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks["bad"].Error, "boom")
}

func TestHandlers(t *testing.T) {
	hc := NewChecker("dev")
	hc.AddCriticalCheck("api", func(context.Context) error { return errors.New("down") }, time.Second)

	tests := []struct {
		name    string
		handler http.Handler
		code    int
	}{
		{"liveness", hc.LivenessHandler(), http.StatusOK},
		{"readiness", hc.ReadinessHandler(), http.StatusServiceUnavailable},
		{"health", hc.HealthHandler(), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["status"])
		})
	}
}

func TestCapacityCheck(t *testing.T) {
	n := 3
	count := func() int { return n }

	assert.NoError(t, CapacityCheck("sockets", count, 4)(context.Background()))
	assert.NoError(t, CapacityCheck("sockets", count, 0)(context.Background()))

	n = 4
	err := CapacityCheck("sockets", count, 4)(context.Background())
	assert.EqualError(t, err, "sockets at capacity: 4/4")
}

func TestHTTPCheck(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	check := HTTPCheck(srv.Client(), srv.URL)
	assert.NoError(t, check(context.Background()))

	status = http.StatusUnauthorized
	assert.NoError(t, check(context.Background()))

	status = http.StatusBadGateway
	assert.Error(t, check(context.Background()))
}
