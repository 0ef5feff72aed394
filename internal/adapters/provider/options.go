package provider

import (
	"time"

	"github.com/okian/harpastum/pkg/logger"
)

// Option applies a configuration option to the Fetcher.
type Option func(*Fetcher)

// WithRequestBudget sets the per-provider token bucket: requests per rolling
// 60-second window and the allowed burst.
func WithRequestBudget(perMinute, burst int) Option {
	return func(f *Fetcher) {
		if perMinute > 0 {
			f.perMinute = perMinute
		}
		if burst > 0 {
			f.burst = burst
		}
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.requestTimeout = d
		}
	}
}

// WithRateLimitBackoff sets the policy used after provider rate-limit signals.
func WithRateLimitBackoff(b Backoff) Option {
	return func(f *Fetcher) {
		if b.MaxAttempts > 0 {
			b.Exponential = true
			f.rateLimitBackoff = b
		}
	}
}

// WithTransientBackoff sets the policy used after transient network failures.
func WithTransientBackoff(b Backoff) Option {
	return func(f *Fetcher) {
		if b.MaxAttempts > 0 {
			b.Exponential = false
			f.transientBackoff = b
		}
	}
}

// WithCounter shares an externally owned request counter.
func WithCounter(c *Counter) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.counter = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}
