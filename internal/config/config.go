// Package config defines pipeline configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) for defaults and Load(ctx) for layered loading.
// - All functions accept context.Context as the first parameter.
// - External errors must be wrapped via this package's sentinel errors.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// MetricsAddr configures the HTTP listen address for /metrics and
	// /healthz, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`

	// QueueSize bounds the in-memory ingest queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of integration workers.
	WorkerCount int `koanf:"worker_count"`

	// Fetcher limits.
	RequestsPerMinute int           `koanf:"requests_per_minute"`
	RequestBurst      int           `koanf:"request_burst"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	FetchMaxAttempts  int           `koanf:"fetch_max_attempts"`

	// CacheTTL bounds how long a fetched response is reused.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// Resolver matching knobs.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	SimilarityEpsilon   float64 `koanf:"similarity_epsilon"`

	// Authority maps a field or metric name to its authoritative
	// provider; unlisted fields fall back to first-seen.
	Authority map[string]string `koanf:"authority"`

	// MergeTolerance is the allowed cross-provider numeric drift
	// before a consistency warning.
	MergeTolerance float64 `koanf:"merge_tolerance"`

	// Shapley estimation knobs.
	ExactThreshold    int     `koanf:"exact_threshold"`
	SampleBudget      int     `koanf:"sample_budget"`
	SampleWorkers     int     `koanf:"sample_workers"`
	Convergence       float64 `koanf:"convergence"`
	SampleMaxRetries  int     `koanf:"sample_max_retries"`
	SampleSeed        int64   `koanf:"sample_seed"`

	// OutlierSigma sets the validator's batch screening threshold.
	OutlierSigma float64 `koanf:"outlier_sigma"`

	// Synthetic feed knobs for local and test runs.
	FeedDays int   `koanf:"feed_days"`
	FeedSeed int64 `koanf:"feed_seed"`
}

// New creates a Config holding the defaults. Context is accepted first
// to satisfy the project-wide convention; it is reserved for future
// use and currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		MetricsAddr:         ":9090",
		QueueSize:           100_000,
		WorkerCount:         runtime.NumCPU(),
		RequestsPerMinute:   60,
		RequestBurst:        10,
		RequestTimeout:      10 * time.Second,
		FetchMaxAttempts:    3,
		CacheTTL:            15 * time.Minute,
		SimilarityThreshold: 0.82,
		SimilarityEpsilon:   0.03,
		Authority:           map[string]string{},
		MergeTolerance:      0.5,
		ExactThreshold:      12,
		SampleBudget:        20_000,
		SampleWorkers:       4,
		Convergence:         0.01,
		SampleMaxRetries:    100,
		SampleSeed:          0,
		OutlierSigma:        3,
		FeedDays:            2,
		FeedSeed:            1,
	}
}
