package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo(t *testing.T) {
	t.Run("succeeds first attempt", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(), func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		boom := errors.New("still broken")
		err := Do(context.Background(), fastConfig(), func() error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error short circuits", func(t *testing.T) {
		calls := 0
		rejected := errors.New("rejected by validation")
		err := Do(context.Background(), fastConfig(), func() error {
			calls++
			return Permanent(rejected)
		})
		require.ErrorIs(t, err, rejected)
		assert.Equal(t, 1, calls)
		// The wrapper is unwrapped before returning.
		assert.False(t, IsPermanent(err))
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Do(ctx, fastConfig(), func() error {
			calls++
			cancel()
			return errors.New("transient")
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("retryable allowlist", func(t *testing.T) {
		retryable := errors.New("throttled")
		other := errors.New("bad request")
		cfg := fastConfig()
		cfg.RetryableErrors = []error{retryable}

		calls := 0
		err := Do(context.Background(), cfg, func() error {
			calls++
			return other
		})
		require.ErrorIs(t, err, other)
		assert.Equal(t, 1, calls)
	})
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	err := Permanent(errors.New("x"))
	assert.True(t, IsPermanent(err))
	assert.False(t, IsPermanent(errors.New("x")))

	// Wrapping chains still detect the marker.
	wrapped := errors.Join(errors.New("outer"), err)
	assert.True(t, IsPermanent(wrapped))
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), fastConfig(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, calls)
}
