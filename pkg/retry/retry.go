package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
)

// Operation is a function that might need retrying
type Operation func() error

// Config holds retry configuration
type Config struct {
	// MaxAttempts counts the first call; values below 1 mean a single attempt
	MaxAttempts int
	// InitialInterval is the delay before the first retry
	InitialInterval time.Duration
	// MaxInterval caps the delay between attempts
	MaxInterval time.Duration
	// Multiplier grows the delay after each retry
	Multiplier float64
	// RandomizationFactor spreads each delay by +/- this fraction
	RandomizationFactor float64
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns three attempts with exponential backoff starting at one second
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:         3,
		InitialInterval:     time.Second,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.1,
		RetryIf:             DefaultRetryIf,
		Logger:              logger.GetLogger(),
	}
}

// DefaultRetryIf retries transient failures only. Throttling is left to the
// caller, which escalates it instead of hammering the upstream.
func DefaultRetryIf(err error) bool {
	return err != nil && errs.IsRetryable(errs.Classify(err))
}

// IsRetryableStatus reports whether an HTTP status code is worth another attempt
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 408, 500, 502, 503, 504:
		return true
	case 401, 403, 404, 429:
		return false
	default:
		return statusCode >= 500
	}
}

func (c *Config) backOff(ctx context.Context) backoff.BackOff {
	if c.MaxAttempts <= 1 {
		// WithMaxRetries treats zero as unlimited
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	exp := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		exp.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		exp.MaxInterval = c.MaxInterval
	}
	if c.Multiplier > 0 {
		exp.Multiplier = c.Multiplier
	}
	exp.RandomizationFactor = c.RandomizationFactor
	// the attempt ceiling is the only stop condition
	exp.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.MaxAttempts-1)), ctx)
}

// Do executes op until it succeeds, returns an error RetryIf rejects, the
// attempts run out, or ctx is done. The last error is returned wrapped so its
// classification survives.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	attempt := 0
	permanent := false
	err := backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			permanent = true
			return backoff.Permanent(err)
		}
		attempt++
		err := op()
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		if !retryIf(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}, cfg.backOff(ctx), func(err error, delay time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": cfg.MaxAttempts,
		})
	})
	if err == nil {
		return nil
	}

	switch {
	case ctx.Err() != nil:
		if attempt == 0 {
			return ctx.Err()
		}
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case !permanent && attempt > 1:
		log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
			"attempts":   attempt,
			"last_error": err.Error(),
		})
		return fmt.Errorf("max retry attempts (%d) exceeded: %w", attempt, err)
	default:
		return err
	}
}
