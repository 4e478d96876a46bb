package object

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DefaultBackoff is used when a RetryPolicy leaves Backoff unset.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     500 * time.Millisecond,
		Jitter:       true,
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		} else {
			f = 0.5 + rand.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// RetryPolicy bounds how often a failed state write is reattempted.
// The zero value makes exactly one attempt.
type RetryPolicy struct {
	Attempts int
	Backoff  BackoffConfig
	Rand     *rand.Rand
	// Sleep replaces the context-aware wait, mostly for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs fn once plus up to Attempts retries, stopping on the first success
// or when ctx is done. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	backoff := p.Backoff
	if backoff == (BackoffConfig{}) {
		backoff = DefaultBackoff()
	}

	err := fn(ctx)
	for attempt := 1; err != nil && attempt <= p.Attempts; attempt++ {
		if serr := sleep(ctx, NextBackoffDelay(backoff, attempt, p.Rand)); serr != nil {
			return err
		}
		err = fn(ctx)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
