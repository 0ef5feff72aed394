package provider

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/okian/harpastum/internal/domain/model"
	"github.com/okian/harpastum/pkg/logger"
)

// FetchFunc fetches one descriptor's payload. In production this is the
// cache's GetOrFetch wrapped over the Fetcher; tests may inject anything.
type FetchFunc func(ctx context.Context, d Descriptor) ([]byte, error)

// Feed walks a set of providers over a range of matchdays and streams the
// decoded provider records. A failed or malformed payload is logged and
// skipped; one bad endpoint never stops the rest of the collection run.
type Feed struct {
	fetch     FetchFunc
	providers []string
	days      int
	logger    logger.Logger
}

// FeedOption applies a configuration option to the Feed.
type FeedOption func(*Feed)

// WithFeedLogger sets a custom logger.
func WithFeedLogger(l logger.Logger) FeedOption {
	return func(f *Feed) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFeed creates a feed over the given providers and number of matchdays.
func NewFeed(fetch FetchFunc, providers []string, days int, opts ...FeedOption) *Feed {
	f := &Feed{
		fetch:     fetch,
		providers: providers,
		days:      days,
		logger:    logger.Named("feed"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Records streams decoded records. The channel is closed when all
// provider/day combinations have been visited or ctx is cancelled.
func (f *Feed) Records(ctx context.Context) <-chan model.ProviderRecord {
	out := make(chan model.ProviderRecord)
	go func() {
		defer close(out)
		for day := 1; day <= f.days; day++ {
			for _, p := range f.providers {
				if ctx.Err() != nil {
					return
				}
				f.emitMatches(ctx, p, day, out)
				f.emitStats(ctx, p, day, out)
			}
		}
	}()
	return out
}

func (f *Feed) emitMatches(ctx context.Context, providerName string, day int, out chan<- model.ProviderRecord) {
	payload, err := f.fetch(ctx, Descriptor{
		Provider: providerName,
		Endpoint: "matches",
		Params:   map[string]string{"day": strconv.Itoa(day)},
	})
	if err != nil {
		f.logger.Warn(ctx, "skipping matches endpoint",
			logger.String("provider", providerName),
			logger.Int("day", day),
			logger.Error(err),
		)
		return
	}
	var matches []matchPayload
	if err := json.Unmarshal(payload, &matches); err != nil {
		f.logger.Warn(ctx, "malformed matches payload",
			logger.String("provider", providerName),
			logger.Int("day", day),
			logger.Error(err),
		)
		return
	}
	for _, m := range matches {
		select {
		case out <- m.record(providerName):
		case <-ctx.Done():
			return
		}
	}
}

func (f *Feed) emitStats(ctx context.Context, providerName string, day int, out chan<- model.ProviderRecord) {
	payload, err := f.fetch(ctx, Descriptor{
		Provider: providerName,
		Endpoint: "stats",
		Params:   map[string]string{"day": strconv.Itoa(day)},
	})
	if err != nil {
		f.logger.Warn(ctx, "skipping stats endpoint",
			logger.String("provider", providerName),
			logger.Int("day", day),
			logger.Error(err),
		)
		return
	}
	var lines []statPayload
	if err := json.Unmarshal(payload, &lines); err != nil {
		f.logger.Warn(ctx, "malformed stats payload",
			logger.String("provider", providerName),
			logger.Int("day", day),
			logger.Error(err),
		)
		return
	}
	for _, l := range lines {
		select {
		case out <- l.record(providerName):
		case <-ctx.Done():
			return
		}
	}
}

// Endpoints enumerates the descriptors a full feed pass will touch, mainly
// for budget estimation: providers * days * 2 endpoints.
func (f *Feed) Endpoints() int {
	return len(f.providers) * f.days * 2
}
