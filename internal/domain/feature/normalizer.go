// Package feature projects merged stat records into normalized,
// comparable feature vectors. Vectors are derived data: regenerated
// whenever the underlying record changes, never edited in place.
package feature

import (
	"sort"

	"github.com/okian/harpastum/internal/domain/model"
	"github.com/okian/harpastum/pkg/logger"
	"github.com/okian/harpastum/pkg/metrics"
)

// fullMatchMinutes is the reference duration for rate normalization.
const fullMatchMinutes = 90.0

// goalkeeperMetrics are populated as pointer features only for
// goalkeepers. Outfield players carry nil so aggregates over the
// squad are not diluted by structural zeros.
var goalkeeperMetrics = map[string]bool{
	"saves":          true,
	"goals_conceded": true,
}

// Normalizer builds feature vectors from merged stat records.
type Normalizer struct {
	logger logger.Logger
}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{logger: logger.Named("feature")}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Build projects one merged stat record into a feature vector for the
// given position. Counting metrics become per-90 rates; a player with
// zero minutes yields zero rates flagged LowSample rather than a
// division by zero or an inflated rate.
func (n *Normalizer) Build(stat model.PlayerMatchStat, position model.Position) model.FeatureVector {
	fv := model.FeatureVector{
		ContextID: stat.MatchKey,
		Player:    stat.Player,
		Team:      stat.Team,
		Minutes:   stat.Minutes(),
		Rates:     make(map[string]float64),
		LowSample: stat.Minutes() <= 0,
	}

	for name, field := range stat.Metrics {
		if name == "minutes" || name == "rating" {
			continue
		}
		rate := 0.0
		if fv.Minutes > 0 {
			rate = field.Value * fullMatchMinutes / fv.Minutes
		}
		if goalkeeperMetrics[name] {
			if position != model.PositionGoalkeeper {
				continue
			}
			v := rate
			switch name {
			case "saves":
				fv.SavesPer90 = &v
			case "goals_conceded":
				fv.GoalsConcededPer90 = &v
			}
			continue
		}
		fv.Rates[name+"_per90"] = rate
	}

	if rating, ok := stat.Metrics["rating"]; ok {
		// Ratings are already per-match scalars, not counts.
		fv.Rates["rating"] = rating.Value
	}

	metrics.RecordFeatureVector()
	return fv
}

// Season aggregates a player's stat lines into season totals and
// normalizes the totals, so the per-90 rates reflect the whole sample
// rather than an average of per-match rates.
func (n *Normalizer) Season(contextID string, stats []model.PlayerMatchStat) []model.FeatureVector {
	type bucket struct {
		player   string
		team     string
		position model.Position
		minutes  float64
		totals   map[string]float64
		ratings  []float64
	}

	buckets := make(map[string]*bucket)
	for _, s := range stats {
		b, ok := buckets[s.Player]
		if !ok {
			b = &bucket{
				player:   s.Player,
				team:     s.Team,
				position: s.Position,
				totals:   make(map[string]float64),
			}
			buckets[s.Player] = b
		}
		b.minutes += s.Minutes()
		for name, field := range s.Metrics {
			switch name {
			case "minutes":
			case "rating":
				b.ratings = append(b.ratings, field.Value)
			default:
				b.totals[name] += field.Value
			}
		}
	}

	players := make([]string, 0, len(buckets))
	for p := range buckets {
		players = append(players, p)
	}
	sort.Strings(players)

	out := make([]model.FeatureVector, 0, len(players))
	for _, p := range players {
		b := buckets[p]
		fv := model.FeatureVector{
			ContextID: contextID,
			Player:    b.player,
			Team:      b.team,
			Minutes:   b.minutes,
			Rates:     make(map[string]float64),
			LowSample: b.minutes <= 0,
		}
		for name, total := range b.totals {
			rate := 0.0
			if b.minutes > 0 {
				rate = total * fullMatchMinutes / b.minutes
			}
			if goalkeeperMetrics[name] {
				if b.position != model.PositionGoalkeeper {
					continue
				}
				v := rate
				switch name {
				case "saves":
					fv.SavesPer90 = &v
				case "goals_conceded":
					fv.GoalsConcededPer90 = &v
				}
				continue
			}
			fv.Rates[name+"_per90"] = rate
		}
		if len(b.ratings) > 0 {
			sum := 0.0
			for _, r := range b.ratings {
				sum += r
			}
			fv.Rates["rating"] = sum / float64(len(b.ratings))
		}
		metrics.RecordFeatureVector()
		out = append(out, fv)
	}
	return out
}
