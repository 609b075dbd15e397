package session

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Delay returns the retry delay for attempt N (1-based).
func (cfg BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	mult := cfg.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// Retry calls fn until it succeeds, ctx ends, or maxAttempts is reached.
// maxAttempts <= 0 retries until ctx ends.
func Retry(ctx context.Context, cfg BackoffConfig, maxAttempts int, rng *rand.Rand, fn func(attempt int) error) error {
	var err error
	for attempt := 1; maxAttempts <= 0 || attempt <= maxAttempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if maxAttempts > 0 && attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(cfg.Delay(attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
