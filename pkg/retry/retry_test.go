package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:    attempts,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		JitterFraction: 0,
		Multiplier:     2,
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "deadline exceeded" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(4), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesRateLimitedUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(4), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("api: %w", engerrors.ErrRateLimited)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoDelaysGrowBetweenAttempts(t *testing.T) {
	cfg := Config{
		MaxAttempts:    3,
		InitialDelay:   20 * time.Millisecond,
		MaxDelay:       500 * time.Millisecond,
		JitterFraction: 0,
		Multiplier:     2,
	}
	var stamps []time.Time
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 3 {
			return engerrors.ErrRateLimited
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, stamps, 3)

	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	assert.GreaterOrEqual(t, first, cfg.InitialDelay)
	assert.Greater(t, second, first, "each wait must exceed the previous one")
}

func TestDoExhaustsAttemptBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(4), func(ctx context.Context) error {
		calls++
		return engerrors.ErrRateLimited
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.True(t, engerrors.IsRateLimited(err))
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	boom := errors.New("invalid prompt")
	err := Do(context.Background(), fastConfig(4), func(ctx context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesNetworkTimeouts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return timeoutError{}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoRespectsPermanentWrapper(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(4), func(ctx context.Context) error {
		calls++
		return Permanent(engerrors.ErrRateLimited)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastConfig(10), func(ctx context.Context) error {
		calls++
		cancel()
		return engerrors.ErrRateLimited
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 2)
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(engerrors.ErrRateLimited))
	assert.True(t, Retryable(fmt.Errorf("wrap: %w", engerrors.ErrRateLimited)))
	assert.True(t, Retryable(timeoutError{}))
	assert.True(t, Retryable(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.False(t, Retryable(errors.New("bad request")))
}
