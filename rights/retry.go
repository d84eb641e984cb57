package rights

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/warp/renewal-engine/beneficiary"
	"github.com/warp/renewal-engine/generic"
)

// =============================================================================
// RETRYING FETCHER - Per-renewal retry and timeout
// =============================================================================

// RetryConfig configures RetryingFetcher.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// AttemptTimeout bounds a single fetch. Zero disables it.
	AttemptTimeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

func normalizeRetryConfig(cfg RetryConfig) RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.AttemptTimeout < 0 {
		cfg.AttemptTimeout = 0
	}
	return cfg
}

// Retryable reports whether a failed fetch is worth another attempt.
// Missing records, bad input and caller cancellation are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if generic.IsClientError(err) || generic.IsNotFound(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// NewRetryPolicy builds the policy applied to every renewal fetch.
func NewRetryPolicy(cfg RetryConfig) retrypolicy.RetryPolicy[generic.QuantityStats] {
	cfg = normalizeRetryConfig(cfg)
	return retrypolicy.NewBuilder[generic.QuantityStats]().
		HandleIf(func(_ generic.QuantityStats, err error) bool {
			return Retryable(err)
		}).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		Build()
}

// RetryingFetcher wraps a StatsFetcher with retries. The caller context
// bounds all attempts; AttemptTimeout bounds each one.
type RetryingFetcher struct {
	next     beneficiary.StatsFetcher
	executor failsafe.Executor[generic.QuantityStats]
	timeout  time.Duration
}

func NewRetryingFetcher(next beneficiary.StatsFetcher, cfg RetryConfig) *RetryingFetcher {
	cfg = normalizeRetryConfig(cfg)
	return &RetryingFetcher{
		next:     next,
		executor: failsafe.With(NewRetryPolicy(cfg)),
		timeout:  cfg.AttemptTimeout,
	}
}

func (r *RetryingFetcher) FetchUserStats(ctx context.Context, user generic.UserID) (generic.QuantityStats, error) {
	return r.executor.WithContext(ctx).Get(func() (generic.QuantityStats, error) {
		if r.timeout <= 0 {
			return r.next.FetchUserStats(ctx, user)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.next.FetchUserStats(attemptCtx, user)
	})
}

// WithRetry wraps the fetcher of every period.
func WithRetry(periods []beneficiary.RenewalPeriod, cfg RetryConfig) []beneficiary.RenewalPeriod {
	out := make([]beneficiary.RenewalPeriod, len(periods))
	for i, p := range periods {
		out[i] = p
		if p.Stats != nil {
			out[i].Stats = NewRetryingFetcher(p.Stats, cfg)
		}
	}
	return out
}
