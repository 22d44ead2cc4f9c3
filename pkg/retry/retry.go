// Package retry wraps a single outbound call with bounded
// exponential-backoff-plus-jitter retries.
package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Config controls the retry behavior for one wrapped call.
type Config struct {
	// MaxAttempts is the total attempt budget, including the first call
	MaxAttempts int
	// InitialDelay is the delay before the second attempt
	InitialDelay time.Duration
	// MaxDelay caps the grown delay
	MaxDelay time.Duration
	// JitterFraction widens each delay randomly by up to this fraction in
	// either direction, preventing synchronized retry storms across callers
	JitterFraction float64
	// Multiplier is the exponential growth factor between attempts
	Multiplier float64
}

// DefaultConfig returns the retry configuration used for hosted API calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    4,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       15 * time.Second,
		JitterFraction: 0.25,
		Multiplier:     2,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 15 * time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	if c.JitterFraction < 0 {
		c.JitterFraction = 0
	}
}

// Permanent marks an error as non-retryable regardless of classification.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retryable classifies an error as worth retrying: rate-limit rejections and
// transient transport failures. Everything else surfaces immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if engerrors.IsRateLimited(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Do invokes op, retrying per cfg while the returned error is retryable.
// The delay grows exponentially from InitialDelay up to MaxDelay, widened by
// the configured jitter. Any successful attempt returns immediately;
// exhausting the attempt budget surfaces the last error.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	cfg.applyDefaults()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialDelay
	exp.MaxInterval = cfg.MaxDelay
	exp.Multiplier = cfg.Multiplier
	exp.RandomizationFactor = cfg.JitterFraction
	exp.MaxElapsedTime = 0

	wrapped := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(exp, uint64(cfg.MaxAttempts-1)), ctx)

	return backoff.Retry(wrapped, policy)
}
