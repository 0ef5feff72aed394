// Package shapley attributes a coalition's value to its individual
// members. Small squads are solved exactly by subset enumeration;
// larger ones by Monte Carlo permutation sampling with a convergence
// stop.
package shapley

// ValueFunc evaluates the worth of a coalition of players. The function
// must be deterministic for a given subset; it may fail, in which case
// the sampler discards and redraws. The empty coalition is a valid
// input.
type ValueFunc func(subset []string) (float64, error)

// Game binds a roster to its characteristic function under a named
// context (a match key or a team-season key).
type Game struct {
	ContextID string
	Players   []string
	Value     ValueFunc
}
