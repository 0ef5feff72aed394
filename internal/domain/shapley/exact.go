package shapley

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"github.com/google/uuid"

	"github.com/okian/harpastum/internal/domain/model"
	"github.com/okian/harpastum/pkg/metrics"
)

// defaultExactThreshold caps exact enumeration; 2^12 coalition
// evaluations complete in well under a second for any realistic v.
const defaultExactThreshold = 12

// Exact computes exact Shapley values by full subset enumeration with
// memoized coalition values. Every value function failure is fatal in
// exact mode since no subset can be skipped.
func Exact(ctx context.Context, game Game) ([]model.ContributionScore, error) {
	n := len(game.Players)
	if n == 0 {
		return nil, fmt.Errorf("context %s: %w", game.ContextID, ErrNoPlayers)
	}
	if n > defaultExactThreshold {
		return nil, fmt.Errorf("context %s has %d players: %w", game.ContextID, n, ErrTooManyPlayers)
	}

	start := time.Now()

	// Memoize v over all 2^n coalitions up front.
	values := make([]float64, 1<<n)
	subset := make([]string, 0, n)
	for mask := 0; mask < 1<<n; mask++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("exact enumeration: %w", err)
		}
		subset = subset[:0]
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, game.Players[i])
			}
		}
		v, err := game.Value(subset)
		if err != nil {
			return nil, fmt.Errorf("coalition value in exact mode: %w: %v", ErrUnstableValue, err)
		}
		values[mask] = v
	}

	fact := factorials(n)
	phi := make([]float64, n)
	for i := 0; i < n; i++ {
		bit := 1 << i
		for mask := 0; mask < 1<<n; mask++ {
			if mask&bit != 0 {
				continue
			}
			s := bits.OnesCount(uint(mask))
			weight := fact[s] * fact[n-s-1] / fact[n]
			phi[i] += weight * (values[mask|bit] - values[mask])
		}
	}

	runID := uuid.NewString()
	now := time.Now().UTC()
	scores := make([]model.ContributionScore, n)
	for i, player := range game.Players {
		scores[i] = model.ContributionScore{
			ContextID:  game.ContextID,
			Player:     player,
			Value:      phi[i],
			Variance:   0,
			Samples:    1 << n,
			RunID:      runID,
			ComputedAt: now,
		}
	}
	metrics.RecordShapleySamples(1 << n)
	metrics.ObserveEstimateDuration(time.Since(start).Seconds())
	return scores, nil
}

func factorials(n int) []float64 {
	fact := make([]float64, n+1)
	fact[0] = 1
	for i := 1; i <= n; i++ {
		fact[i] = fact[i-1] * float64(i)
	}
	return fact
}
