package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
)

func fastConfig(attempts int) *Config {
	return &Config{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Logger:          logger.NewNopLogger(),
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var retries []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	}

	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errs.Transient("fetch", errors.New("connection reset"))
		}
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return errs.Transient("fetch", errors.New("connection refused"))
	}, fastConfig(3))

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
	assert.True(t, errs.Is(err, errs.KindTransient), "classification survives wrapping")
}

func TestDoDoesNotRetryOtherKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"throttled", errs.Throttled("fetch", "please wait a few minutes", nil)},
		{"access", errs.Access("fetch", "user not found", nil)},
		{"unknown", errors.New("something odd")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), func() error {
				calls++
				return tt.err
			}, fastConfig(5))

			assert.Equal(t, 1, calls)
			assert.Equal(t, tt.err, err)
		})
	}
}

func TestDoSingleAttempt(t *testing.T) {
	for _, attempts := range []int{1, 0, -1} {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		calls := 0
		transient := errs.Transient("fetch", errors.New("timeout"))
		err := Do(ctx, func() error {
			calls++
			return transient
		}, fastConfig(attempts))
		cancel()

		assert.Equal(t, 1, calls, "max attempts %d", attempts)
		assert.Equal(t, transient, err, "max attempts %d", attempts)
	}
}

func TestDoTwoAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return errs.Transient("fetch", errors.New("timeout"))
	}, fastConfig(2))

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func() error {
		calls++
		return nil
	}, fastConfig(3))

	assert.Zero(t, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := fastConfig(10)
	cfg.InitialInterval = time.Hour
	cfg.MaxInterval = time.Hour

	calls := 0
	err := Do(ctx, func() error {
		calls++
		cancel()
		return errs.Transient("fetch", errors.New("timeout"))
	}, cfg)

	assert.Equal(t, 1, calls)
	assert.True(t, errs.Is(err, errs.KindCancelled))
}

func TestIsRetryableStatus(t *testing.T) {
	assert.True(t, IsRetryableStatus(0))
	assert.True(t, IsRetryableStatus(503))
	assert.True(t, IsRetryableStatus(599))
	assert.False(t, IsRetryableStatus(404))
	assert.False(t, IsRetryableStatus(429))
	assert.False(t, IsRetryableStatus(400))
}
