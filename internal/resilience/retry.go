package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds an exponential backoff retry loop.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Default: 3
	MaxRetries uint64

	// InitialInterval is the first backoff delay.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay.
	// Default: 5 seconds
	MaxInterval time.Duration
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = d.MaxInterval
	}
	return c
}

// Retry runs op until it succeeds, returns a Permanent error, the retry
// budget is spent or ctx is done. The last error is returned.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	cfg = cfg.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = 0 // bounded by MaxRetries

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, cfg.MaxRetries), ctx))
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
