package transport

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackoffConfig configures transport-level retry with exponential backoff.
// Only network-shaped failures are retried; a response that arrives but
// fails to parse is never retried here (the user re-sends).
type BackoffConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultBackoff returns retry settings tuned for LLM calls.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
	}
}

// RetryWithBackoff runs op, retrying retryable failures with exponential
// backoff until the retry budget or the context runs out. Returns the last
// error.
func RetryWithBackoff(ctx context.Context, cfg BackoffConfig, op func() error, log zerolog.Logger) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries || !IsRetryable(lastErr) {
			return lastErr
		}
		delay := backoffDelay(cfg, attempt)
		log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("delay", delay).
			Msg("model call failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func backoffDelay(cfg BackoffConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		delay += (rand.Float64() - 0.5) * 0.2 * delay
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}
	return time.Duration(delay)
}

var retryableFragments = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
	"429",
	"502",
	"503",
	"504",
	"no such host",
	"network unreachable",
	"broken pipe",
}

// IsRetryable reports whether an error looks like a transient network or
// provider failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, f := range retryableFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}
