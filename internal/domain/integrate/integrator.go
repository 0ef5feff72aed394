package integrate

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/harpastum/internal/domain/model"
	"github.com/okian/harpastum/pkg/logger"
	"github.com/okian/harpastum/pkg/metrics"
)

// defaultTolerance is the allowed absolute disagreement between two
// non-authoritative providers before a consistency warning is raised.
const defaultTolerance = 0.5

// Integrator merges provider records field by field. For every field the
// provider designated as authoritative in the configuration wins; absent
// that, the first reporting provider's value stands, and disagreement
// beyond tolerance between non-designated providers is flagged rather than
// silently resolved.
//
// Merging is idempotent: re-integrating an identical input leaves the
// record byte-identical. Callers must serialize merges per match key.
type Integrator struct {
	authority map[string]string // field/metric name -> authoritative provider
	tolerance float64
	logger    logger.Logger
}

// Option applies a configuration option to the Integrator.
type Option func(*Integrator)

// WithAuthority sets the authoritative-provider-per-field map.
func WithAuthority(m map[string]string) Option {
	return func(g *Integrator) {
		if m != nil {
			g.authority = m
		}
	}
}

// WithTolerance sets the cross-provider disagreement tolerance.
func WithTolerance(t float64) Option {
	return func(g *Integrator) {
		if t >= 0 {
			g.tolerance = t
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Integrator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates an Integrator.
func New(opts ...Option) *Integrator {
	g := &Integrator{
		authority: make(map[string]string),
		tolerance: defaultTolerance,
		logger:    logger.Named("integrator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Match merges an incoming match record into the existing merged record.
// A nil existing record starts a fresh one.
func (g *Integrator) Match(ctx context.Context, existing *model.MatchRecord, in model.ProviderRecord) (*model.MatchRecord, error) {
	if in.Kind != model.KindMatch || in.Match == nil {
		return nil, fmt.Errorf("merging %q record as match: %w", in.Kind, ErrKindMismatch)
	}
	md := in.Match
	if md.Home == "" || md.Away == "" {
		return nil, fmt.Errorf("match %s vs %s from %s: %w", md.HomeName, md.AwayName, in.Provider, ErrUnresolvedRecord)
	}
	key := model.MatchKey(md.Date, md.Home, md.Away)

	if existing == nil {
		existing = &model.MatchRecord{
			Key:         key,
			Competition: md.Competition,
			Season:      md.Season,
			Date:        md.Date,
			Home:        md.Home,
			Away:        md.Away,
			Fields:      make(map[string]model.Field),
		}
	}
	if existing.Key != key {
		return nil, fmt.Errorf("incoming %s into %s: %w", key, existing.Key, ErrKeyMismatch)
	}
	if existing.Final {
		return nil, fmt.Errorf("match %s: %w", key, ErrRecordFinal)
	}

	for name, value := range md.Numbers {
		g.mergeField(ctx, existing.Fields, &existing.Warnings, key, name, in.Provider, value)
	}
	existing.Provenance = existing.Provenance.Add(in.Provider)
	metrics.RecordRecordMerged("match")
	return existing, nil
}

// Stat merges an incoming per-player stat line into the existing merged
// stat record, per-metric under the same authority policy.
func (g *Integrator) Stat(ctx context.Context, existing *model.PlayerMatchStat, in model.ProviderRecord) (*model.PlayerMatchStat, error) {
	if in.Kind != model.KindStat || in.Stat == nil {
		return nil, fmt.Errorf("merging %q record as stat: %w", in.Kind, ErrKindMismatch)
	}
	sl := in.Stat
	if sl.Player == "" || sl.Team == "" || sl.Home == "" || sl.Away == "" {
		return nil, fmt.Errorf("stat for %s from %s: %w", sl.PlayerName, in.Provider, ErrUnresolvedRecord)
	}
	key := model.MatchKey(sl.Date, sl.Home, sl.Away)

	if existing == nil {
		existing = &model.PlayerMatchStat{
			MatchKey: key,
			Player:   sl.Player,
			Team:     sl.Team,
			Position: sl.Position,
			Metrics:  make(map[string]model.Field),
		}
	}
	if existing.MatchKey != key || existing.Player != sl.Player {
		return nil, fmt.Errorf("incoming %s/%s into %s/%s: %w", key, sl.Player, existing.MatchKey, existing.Player, ErrKeyMismatch)
	}
	if existing.Position == model.PositionUnknown {
		existing.Position = sl.Position
	}

	for name, value := range sl.Metrics {
		g.mergeField(ctx, existing.Metrics, &existing.Warnings, key, name, in.Provider, value)
	}
	existing.Provenance = existing.Provenance.Add(in.Provider)
	metrics.RecordRecordMerged("stat")
	return existing, nil
}

// mergeField applies the per-field merge rule in place.
func (g *Integrator) mergeField(ctx context.Context, fields map[string]model.Field, warnings *[]model.Warning, key, name, providerName string, value float64) {
	f, seen := fields[name]
	if !seen {
		fields[name] = model.Field{
			Value:    value,
			Provider: providerName,
			Claims:   []model.Claim{{Provider: providerName, Value: value}},
		}
		return
	}
	if f.HasClaim(providerName) {
		// Same provider reporting again: idempotent, first claim stands.
		return
	}
	f.Claims = append(f.Claims, model.Claim{Provider: providerName, Value: value})

	authoritative := g.authority[name]
	switch {
	case providerName == authoritative:
		f.Value = value
		f.Provider = providerName
	case f.Provider == authoritative:
		// Keep the designated provider's value.
	case math.Abs(f.Value-value) > g.tolerance:
		warn := model.Warning{
			Kind:   "consistency",
			Field:  name,
			Detail: fmt.Sprintf("%s=%g disagrees with %s=%g", providerName, value, f.Provider, f.Value),
		}
		if !hasWarning(*warnings, warn) {
			*warnings = append(*warnings, warn)
			metrics.RecordMergeConflict()
			g.logger.Warn(ctx, "cross-provider disagreement, keeping first-seen value",
				logger.String("key", key),
				logger.String("field", name),
				logger.String("kept_provider", f.Provider),
				logger.Float64("kept", f.Value),
				logger.String("new_provider", providerName),
				logger.Float64("new", value),
			)
		}
	}
	fields[name] = f
}

func hasWarning(warnings []model.Warning, w model.Warning) bool {
	for _, have := range warnings {
		if have == w {
			return true
		}
	}
	return false
}

// Finalize marks a record immutable once every expected provider reported
// or the staleness window elapsed. Further merges fail with ErrRecordFinal.
func (g *Integrator) Finalize(m *model.MatchRecord, expectedProviders int) {
	if len(m.Provenance) >= expectedProviders {
		m.Final = true
	}
}
