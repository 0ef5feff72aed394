package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if HARPASTUM_CONFIG is set
//  3. env (prefix HARPASTUM_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv("HARPASTUM_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: HARPASTUM_QUEUE_SIZE -> queue_size.
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("HARPASTUM_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "harpastum_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.MetricsAddr == "":
		return fmt.Errorf("%w: metrics_addr must not be empty", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.RequestsPerMinute < 1:
		return fmt.Errorf("%w: requests_per_minute must be positive", ErrInvalidConfig)
	case c.FetchMaxAttempts < 1:
		return fmt.Errorf("%w: fetch_max_attempts must be positive", ErrInvalidConfig)
	case c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1:
		return fmt.Errorf("%w: similarity_threshold must be in (0, 1]", ErrInvalidConfig)
	case c.ExactThreshold < 1 || c.ExactThreshold > 12:
		return fmt.Errorf("%w: exact_threshold must be in 1..12", ErrInvalidConfig)
	case c.SampleBudget < 1:
		return fmt.Errorf("%w: sample_budget must be positive", ErrInvalidConfig)
	case c.OutlierSigma <= 0:
		return fmt.Errorf("%w: outlier_sigma must be positive", ErrInvalidConfig)
	}
	return nil
}
