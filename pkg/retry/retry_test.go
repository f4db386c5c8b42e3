package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) *Config {
	return &Config{Attempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(n int, err error, d time.Duration) { retried = append(retried, n) }

	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{2, 3}, retried)
}

func TestDo_Exhausted(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	err := Do(context.Background(), fastConfig(2), func(context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	denied := errors.New("denied")
	calls := 0

	err := Do(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		return Permanent(denied)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, denied)
	assert.True(t, IsPermanent(err))
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDo_RetryIfRejects(t *testing.T) {
	calls := 0
	cfg := fastConfig(5)
	cfg.RetryIf = func(error) bool { return false }

	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("nope")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{Attempts: 5, InitialDelay: time.Hour, Multiplier: 1}

	calls := 0
	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		cancel()
		return errors.New("slow upstream")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	v, err := DoValue(context.Background(), fastConfig(1), func(context.Context) (string, error) {
		return "dashboards", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "dashboards", v)
}

func TestBackoff(t *testing.T) {
	cfg := &Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, Backoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, Backoff(1, cfg))
	assert.Equal(t, 300*time.Millisecond, Backoff(2, cfg))

	cfg.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := Backoff(0, cfg)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
