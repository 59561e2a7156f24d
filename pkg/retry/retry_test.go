package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grilobridge/grilobridge/pkg/errors"
)

func fastConfig(attempts int) Config {
	config := DefaultConfig()
	config.MaxAttempts = attempts
	config.InitialDelay = time.Millisecond
	config.Jitter = false
	return config
}

func TestRetryer_Do(t *testing.T) {
	t.Parallel()

	backend := errors.NewError(errors.ErrCodeBackendError, "head bucket failed")
	missing := errors.NewError(errors.ErrCodeNotFound, "bucket not found")

	tests := []struct {
		name         string
		failures     int
		err          error
		wantAttempts int
		wantErr      bool
		wantCode     errors.ErrorCode
	}{
		{name: "first attempt", failures: 0, err: backend, wantAttempts: 1},
		{name: "recovers", failures: 2, err: backend, wantAttempts: 3},
		{name: "exhausted", failures: 5, err: backend, wantAttempts: 3, wantErr: true, wantCode: errors.ErrCodeBackendError},
		{name: "not retryable", failures: 5, err: missing, wantAttempts: 1, wantErr: true, wantCode: errors.ErrCodeNotFound},
		{name: "plain error", failures: 5, err: fmt.Errorf("boom"), wantAttempts: 1, wantErr: true},
		{
			name:         "code deeper in chain",
			failures:     1,
			err:          errors.Wrap(errors.ErrCodeConfigLoad, "open failed", backend),
			wantAttempts: 2,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			attempts := 0
			err := New(fastConfig(3)).Do(context.Background(), func(context.Context) error {
				attempts++
				if attempts <= tt.failures {
					return tt.err
				}
				return nil
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantCode != "" {
				assert.True(t, errors.IsCode(err, tt.wantCode))
			}
		})
	}
}

func TestRetryer_ContextCancellation(t *testing.T) {
	t.Parallel()

	config := fastConfig(10)
	config.InitialDelay = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := New(config).Do(ctx, func(context.Context) error {
		attempts++
		cancel()
		return errors.NewError(errors.ErrCodeBackendError, "unreachable")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBackendError))

	attempts = 0
	err = New(config).Do(ctx, func(context.Context) error {
		attempts++
		return nil
	})
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Zero(t, attempts)
}

func TestRetryer_Delay(t *testing.T) {
	t.Parallel()

	config := fastConfig(10)
	config.InitialDelay = 100 * time.Millisecond
	config.MaxDelay = time.Second
	r := New(config)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{9, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryer_Jitter(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.InitialDelay = 100 * time.Millisecond
	r := New(config)

	for i := 0; i < 50; i++ {
		d := r.delay(1)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestRetryer_OnRetry(t *testing.T) {
	t.Parallel()

	var seen []int
	r := New(fastConfig(3)).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		seen = append(seen, attempt)
		assert.True(t, errors.IsCode(err, errors.ErrCodeInternalError))
		assert.Positive(t, delay)
	})

	err := r.Do(context.Background(), func(context.Context) error {
		return errors.NewError(errors.ErrCodeInternalError, "flaky")
	})
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	r := New(Config{})
	assert.Equal(t, 5, r.config.MaxAttempts)
	assert.Equal(t, 2.0, r.config.Multiplier)
	assert.True(t, r.Retryable(errors.NewError(errors.ErrCodeBackendError, "x")))
	assert.False(t, r.Retryable(errors.NewError(errors.ErrCodeInvalidConfig, "x")))
	assert.Equal(t, 2, r.WithMaxAttempts(2).config.MaxAttempts)
}
