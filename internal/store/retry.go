package store

import (
	"context"
	"math/rand/v2"
	"time"
)

// retryConfig controls exponential backoff when a backend is not reachable yet.
type retryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		MaxRetries: 3,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// withRetry runs fn until it succeeds, retries run out or ctx is done.
// It returns the number of attempts made and the last error.
func withRetry(ctx context.Context, cfg retryConfig, fn func(context.Context) error) (attempts int, err error) {
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt + 1, nil
		}
		if attempt == cfg.MaxRetries {
			break
		}
		t := time.NewTimer(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return attempt + 1, err
		case <-t.C:
		}
	}
	return cfg.MaxRetries + 1, err
}

// backoffWithJitter computes min(base * 2^attempt, max) with +/-25% jitter.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}
	quarter := delay / 4
	if quarter > 0 {
		delay += time.Duration(rand.Int64N(int64(quarter*2))) - quarter
	}
	return delay
}
