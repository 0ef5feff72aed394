// Package repository defines the pipeline's store interfaces and
// errors. The canonical stores hold merged match records, merged stat
// lines, and computed contribution scores; scores are append-only and
// superseded by later runs, never mutated.
package repository

import (
	"context"

	"github.com/okian/harpastum/internal/domain/model"
)

// MatchStore provides access to merged match records keyed by match
// key. Callers must serialize writes per key.
type MatchStore interface {
	// Upsert stores or replaces the record under its key.
	Upsert(ctx context.Context, rec *model.MatchRecord) error

	// Get returns the record for a match key.
	// Returns ErrNotFound for an unknown key.
	Get(ctx context.Context, key string) (*model.MatchRecord, error)

	// All returns every stored record, ordered by match key.
	All(ctx context.Context) []*model.MatchRecord

	// Count returns the number of stored records.
	Count(ctx context.Context) int
}

// StatStore provides access to merged per-player stat lines keyed by
// match key and canonical player ID.
type StatStore interface {
	// Upsert stores or replaces the stat line under its composite key.
	Upsert(ctx context.Context, stat *model.PlayerMatchStat) error

	// Get returns one player's stat line for one match.
	// Returns ErrNotFound when absent.
	Get(ctx context.Context, matchKey, player string) (*model.PlayerMatchStat, error)

	// ByMatch returns every stat line of one match, ordered by player.
	ByMatch(ctx context.Context, matchKey string) []*model.PlayerMatchStat

	// ByTeam returns every stat line of one team across all matches,
	// ordered by match key then player.
	ByTeam(ctx context.Context, team string) []*model.PlayerMatchStat

	// Count returns the number of stored stat lines.
	Count(ctx context.Context) int
}

// ScoreStore holds contribution scores per coalition context. Each
// Append records a complete run; Latest serves the most recent run so
// a re-run supersedes rather than edits.
type ScoreStore interface {
	// Append records one run's scores for their context.
	Append(ctx context.Context, scores []model.ContributionScore) error

	// Latest returns the most recent run for a context.
	// Returns ErrNotFound for an unknown context.
	Latest(ctx context.Context, contextID string) ([]model.ContributionScore, error)

	// Runs returns how many runs a context accumulated.
	Runs(ctx context.Context, contextID string) int

	// Top returns the n highest-valued contributions of the latest
	// run, ordered by value desc then player asc.
	// Returns ErrInvalidLimit for n < 1.
	Top(ctx context.Context, contextID string, n int) ([]model.ContributionScore, error)
}
