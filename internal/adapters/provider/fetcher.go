package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/harpastum/pkg/logger"
	"github.com/okian/harpastum/pkg/metrics"
)

// Default fetcher configuration constants.
const (
	defaultRequestsPerMinute = 30
	defaultBurst             = 5
	defaultRequestTimeout    = 10 * time.Second
)

func defaultRateLimitBackoff() Backoff {
	return Backoff{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, Jitter: 0.3, Exponential: true}
}

func defaultTransientBackoff() Backoff {
	return Backoff{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Doer issues a single request attempt for a descriptor. Implementations
// map provider rate-limit signals (HTTP 429 and friends) to ErrRateLimited
// and transient transport failures to any other error.
type Doer interface {
	Do(ctx context.Context, d Descriptor) ([]byte, error)
}

// DoerFunc adapts a function to the Doer interface.
type DoerFunc func(ctx context.Context, d Descriptor) ([]byte, error)

// Do calls f.
func (f DoerFunc) Do(ctx context.Context, d Descriptor) ([]byte, error) {
	return f(ctx, d)
}

// Fetcher wraps a Doer with a per-provider token bucket, bounded retries
// with backoff, per-request timeouts and a shared request counter.
type Fetcher struct {
	doer Doer

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	perMinute        int
	burst            int
	requestTimeout   time.Duration
	rateLimitBackoff Backoff
	transientBackoff Backoff

	counter *Counter
	sleep   func(ctx context.Context, d time.Duration) error
	logger  logger.Logger
}

// NewFetcher creates a fetcher around the given Doer.
func NewFetcher(doer Doer, opts ...Option) *Fetcher {
	f := &Fetcher{
		doer:             doer,
		limiters:         make(map[string]*rate.Limiter),
		perMinute:        defaultRequestsPerMinute,
		burst:            defaultBurst,
		requestTimeout:   defaultRequestTimeout,
		rateLimitBackoff: defaultRateLimitBackoff(),
		transientBackoff: defaultTransientBackoff(),
		counter:          NewCounter(),
		sleep:            sleepCtx,
		logger:           logger.Named("fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Counter exposes the shared request counter for budget reporting.
func (f *Fetcher) Counter() *Counter {
	return f.counter
}

func (f *Fetcher) limiter(provider string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[provider]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(f.perMinute)/60.0), f.burst)
		f.limiters[provider] = l
	}
	return l
}

// Fetch issues the request, honoring the provider's request budget and the
// retry policies. Rate-limit signals back off exponentially up to the
// policy's attempt bound before surfacing ErrRateLimited; transient
// failures (including per-request timeouts) retry linearly before
// surfacing ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, d Descriptor) ([]byte, error) {
	lim := f.limiter(d.Provider)
	var rlAttempts, netAttempts int

	for {
		if !lim.Allow() {
			metrics.RecordRateLimitWait()
			if err := lim.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for request budget: %w", err)
			}
		}

		payload, err := f.attempt(ctx, d)
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", d, ctx.Err())
		}

		var delay time.Duration
		if errors.Is(err, ErrRateLimited) {
			rlAttempts++
			if rlAttempts >= f.rateLimitBackoff.MaxAttempts {
				metrics.RecordFetchError(d.Provider, "rate_limited")
				return nil, fmt.Errorf("fetch %s after %d attempts: %w", d, rlAttempts, ErrRateLimited)
			}
			delay = f.rateLimitBackoff.Delay(rlAttempts)
			f.logger.Warn(ctx, "provider rate limit, backing off",
				logger.String("descriptor", d.String()),
				logger.Int("attempt", rlAttempts),
				logger.Duration("delay", delay),
			)
		} else {
			netAttempts++
			if netAttempts >= f.transientBackoff.MaxAttempts {
				metrics.RecordFetchError(d.Provider, "transient")
				return nil, fmt.Errorf("fetch %s after %d attempts: %v: %w", d, netAttempts, err, ErrFetchFailed)
			}
			delay = f.transientBackoff.Delay(netAttempts)
			f.logger.Warn(ctx, "transient fetch failure, retrying",
				logger.String("descriptor", d.String()),
				logger.Int("attempt", netAttempts),
				logger.Error(err),
			)
		}

		metrics.RecordFetchRetry(d.Provider)
		if err := f.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", d, err)
		}
	}
}

// attempt issues one request with the per-request timeout applied. A
// deadline hit is folded into the transient class.
func (f *Fetcher) attempt(ctx context.Context, d Descriptor) ([]byte, error) {
	f.counter.Inc(d.Provider)
	metrics.RecordFetchRequest(d.Provider)

	tctx, cancel := context.WithTimeout(ctx, f.requestTimeout)
	defer cancel()

	start := time.Now()
	payload, err := f.doer.Do(tctx, d)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("request timed out: %w", err)
		}
		return nil, err
	}
	metrics.ObserveFetchLatency(time.Since(start).Seconds())
	return payload, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
