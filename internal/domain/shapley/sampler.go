package shapley

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/harpastum/internal/domain/model"
	"github.com/okian/harpastum/pkg/logger"
	"github.com/okian/harpastum/pkg/metrics"
)

const (
	defaultSampleBudget  = 20000
	defaultSampleWorkers = 4
	defaultConvergence   = 0.01
	defaultMaxRetries    = 100

	// convergenceBatch is how many permutations land between
	// convergence checks.
	convergenceBatch = 64
)

// Estimator computes Shapley attributions, exactly for small rosters
// and by permutation sampling above the exact threshold.
type Estimator struct {
	exactThreshold int
	sampleBudget   int
	workers        int
	convergence    float64
	maxRetries     int
	seed           int64
	logger         logger.Logger
}

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithExactThreshold sets the roster size up to which exact
// enumeration is used.
func WithExactThreshold(n int) Option {
	return func(e *Estimator) {
		if n > 0 && n <= defaultExactThreshold {
			e.exactThreshold = n
		}
	}
}

// WithSampleBudget caps the number of sampled permutations.
func WithSampleBudget(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.sampleBudget = n
		}
	}
}

// WithWorkers sets the sampling worker count.
func WithWorkers(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithConvergence sets the per-player standard error below which
// sampling stops early. Zero disables the early stop.
func WithConvergence(eps float64) Option {
	return func(e *Estimator) {
		if eps >= 0 {
			e.convergence = eps
		}
	}
}

// WithMaxRetries bounds consecutive discarded permutations before the
// value function is declared unstable.
func WithMaxRetries(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithSeed fixes the sampling seed for reproducible runs.
func WithSeed(seed int64) Option {
	return func(e *Estimator) { e.seed = seed }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Estimator.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		exactThreshold: defaultExactThreshold,
		sampleBudget:   defaultSampleBudget,
		workers:        defaultSampleWorkers,
		convergence:    defaultConvergence,
		maxRetries:     defaultMaxRetries,
		seed:           time.Now().UnixNano(),
		logger:         logger.Named("shapley"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// accumulator keeps running per-player mean and variance of sampled
// marginal contributions, Welford style, under one mutex shared by all
// sampling workers.
type accumulator struct {
	mu    sync.Mutex
	count int
	mean  []float64
	m2    []float64
}

func newAccumulator(n int) *accumulator {
	return &accumulator{mean: make([]float64, n), m2: make([]float64, n)}
}

func (a *accumulator) add(marginals []float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count++
	for i, x := range marginals {
		delta := x - a.mean[i]
		a.mean[i] += delta / float64(a.count)
		a.m2[i] += delta * (x - a.mean[i])
	}
	return a.count
}

// converged reports whether every player's standard error of the mean
// dropped below eps. Needs at least two samples to say anything.
func (a *accumulator) converged(eps float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if eps <= 0 || a.count < 2 {
		return false
	}
	denom := float64(a.count) * float64(a.count-1)
	for _, m2 := range a.m2 {
		if math.Sqrt(m2/denom) >= eps {
			return false
		}
	}
	return true
}

func (a *accumulator) snapshot() (int, []float64, []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	mean := make([]float64, len(a.mean))
	copy(mean, a.mean)
	variance := make([]float64, len(a.m2))
	if a.count > 1 {
		denom := float64(a.count) * float64(a.count-1)
		for i, m2 := range a.m2 {
			variance[i] = m2 / denom
		}
	}
	return a.count, mean, variance
}

// Estimate attributes the game's value across its players. Rosters at
// or under the exact threshold are enumerated exactly; larger ones are
// sampled until the budget runs out or every estimate converges.
// Cancellation returns the partial estimate accumulated so far with a
// nil error.
func (e *Estimator) Estimate(ctx context.Context, game Game) ([]model.ContributionScore, error) {
	n := len(game.Players)
	if n == 0 {
		return nil, fmt.Errorf("context %s: %w", game.ContextID, ErrNoPlayers)
	}
	if n <= e.exactThreshold {
		return Exact(ctx, game)
	}
	return e.sample(ctx, game)
}

func (e *Estimator) sample(ctx context.Context, game Game) ([]model.ContributionScore, error) {
	n := len(game.Players)
	start := time.Now()

	base, err := game.Value(nil)
	if err != nil {
		return nil, fmt.Errorf("empty coalition value: %w: %v", ErrUnstableValue, err)
	}

	acc := newAccumulator(n)
	var used atomic.Int64
	var done atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < e.workers; w++ {
		rng := rand.New(rand.NewSource(e.seed + int64(w)*7919))
		g.Go(func() error {
			subset := make([]string, 0, n)
			marginals := make([]float64, n)
			failures := 0
			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				if done.Load() || used.Add(1) > int64(e.sampleBudget) {
					return nil
				}

				perm := rng.Perm(n)
				subset = subset[:0]
				prev := base
				ok := true
				for _, pi := range perm {
					subset = append(subset, game.Players[pi])
					v, err := game.Value(subset)
					if err != nil {
						ok = false
						break
					}
					marginals[pi] = v - prev
					prev = v
				}
				if !ok {
					metrics.RecordShapleyDiscard()
					failures++
					if failures > e.maxRetries {
						return fmt.Errorf("context %s after %d discarded permutations: %w",
							game.ContextID, failures, ErrUnstableValue)
					}
					continue
				}
				failures = 0

				if count := acc.add(marginals); count%convergenceBatch == 0 && acc.converged(e.convergence) {
					done.Store(true)
					return nil
				}
			}
		})
	}
	err = g.Wait()

	count, mean, variance := acc.snapshot()
	metrics.RecordShapleySamples(count)
	metrics.ObserveEstimateDuration(time.Since(start).Seconds())
	e.logger.Debug(ctx, "sampling finished",
		logger.String("context", game.ContextID),
		logger.Int("samples", count),
		logger.Bool("converged", done.Load()),
	)

	runID := uuid.NewString()
	now := time.Now().UTC()
	scores := make([]model.ContributionScore, n)
	for i, player := range game.Players {
		scores[i] = model.ContributionScore{
			ContextID:  game.ContextID,
			Player:     player,
			Value:      mean[i],
			Variance:   variance[i],
			Samples:    count,
			RunID:      runID,
			ComputedAt: now,
		}
	}
	if err != nil {
		return scores, err
	}
	return scores, nil
}
