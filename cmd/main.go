package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/harpastum/internal/adapters/cache"
	"github.com/okian/harpastum/internal/adapters/provider"
	app "github.com/okian/harpastum/internal/app"
	"github.com/okian/harpastum/internal/config"
	"github.com/okian/harpastum/internal/domain/integrate"
	"github.com/okian/harpastum/internal/domain/resolve"
	"github.com/okian/harpastum/internal/domain/shapley"
	"github.com/okian/harpastum/internal/domain/validate"
	"github.com/okian/harpastum/pkg/logger"
	"github.com/okian/harpastum/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Retry delays for transient fetch failures. The attempt bound comes
// from configuration.
const (
	transientBaseDelay = 200 * time.Millisecond
	transientMaxDelay  = 2 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input).
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Serve /metrics and /healthz for the duration of the batch.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		log.Info(ctx, "starting metrics server", logger.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "metrics server failed", logger.Error(err))
		}
	}()

	// Fetch path: synthetic providers behind the rate-limited fetcher
	// and the response cache.
	doer := provider.NewSynthetic(cfg.FeedSeed, 0)
	fetcher := provider.NewFetcher(doer,
		provider.WithRequestBudget(cfg.RequestsPerMinute, cfg.RequestBurst),
		provider.WithRequestTimeout(cfg.RequestTimeout),
		provider.WithTransientBackoff(provider.Backoff{
			MaxAttempts: cfg.FetchMaxAttempts,
			BaseDelay:   transientBaseDelay,
			MaxDelay:    transientMaxDelay,
		}),
	)
	responses := cache.New(cache.WithTTL(cfg.CacheTTL))
	fetch := func(ctx context.Context, d provider.Descriptor) ([]byte, error) {
		return responses.GetOrFetch(ctx, d, fetcher.Fetch)
	}
	feed := provider.NewFeed(fetch,
		[]string{provider.ProviderAPIFooty, provider.ProviderSoccerData},
		cfg.FeedDays,
	)

	estimatorOpts := []shapley.Option{
		shapley.WithExactThreshold(cfg.ExactThreshold),
		shapley.WithSampleBudget(cfg.SampleBudget),
		shapley.WithWorkers(cfg.SampleWorkers),
		shapley.WithConvergence(cfg.Convergence),
		shapley.WithMaxRetries(cfg.SampleMaxRetries),
	}
	if cfg.SampleSeed != 0 {
		estimatorOpts = append(estimatorOpts, shapley.WithSeed(cfg.SampleSeed))
	}

	svc := app.New(
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithExactThreshold(cfg.ExactThreshold),
		app.WithResolver(resolve.NewRegistry(
			resolve.WithThreshold(cfg.SimilarityThreshold),
			resolve.WithEpsilon(cfg.SimilarityEpsilon),
		)),
		app.WithIntegrator(integrate.New(
			integrate.WithAuthority(cfg.Authority),
			integrate.WithTolerance(cfg.MergeTolerance),
		)),
		app.WithEstimator(shapley.New(estimatorOpts...)),
		app.WithValidator(validate.New(validate.WithSigma(cfg.OutlierSigma))),
		app.WithRequestCounter(fetcher.Counter()),
	)

	report, err := svc.Run(ctx, feed)
	if err != nil {
		log.Error(ctx, "batch run failed", logger.Error(err))
	}
	if report != nil {
		log.Info(ctx, "batch summary",
			logger.Int("processed", report.Processed),
			logger.Int("merged", report.Merged),
			logger.Int("rejected", report.Rejected),
			logger.Int("warnings", report.Warnings),
			logger.Int("scores", report.ScoresEmitted),
			logger.Int64("requests", report.Requests),
			logger.Duration("duration", report.Duration),
		)
	}

	// Graceful shutdown of the metrics endpoint.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "metrics server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "stopped")
}
