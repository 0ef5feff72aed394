// Package model contains domain records passed between pipeline stages.
package model

import (
	"time"
)

// EntityType discriminates canonical entities.
type EntityType string

// Known entity types.
const (
	EntityTeam   EntityType = "team"
	EntityPlayer EntityType = "player"
)

// Position is a player's resolved playing position.
type Position string

// Known positions. PositionUnknown is the zero value.
const (
	PositionUnknown    Position = ""
	PositionGoalkeeper Position = "GK"
	PositionDefender   Position = "DF"
	PositionMidfielder Position = "MF"
	PositionForward    Position = "FW"
)

// CanonicalEntity is the single provider-independent identity for a
// real-world team or player. Created once, never mutated; alias bindings
// live in the resolver registry.
type CanonicalEntity struct {
	ID   string
	Name string // display name, taken from the first raw name seen
	Type EntityType
}

// ProviderAlias binds one provider-specific identifier to a canonical entity.
// A given (Provider, ProviderID) pair maps to at most one canonical entity.
type ProviderAlias struct {
	CanonicalID string
	Provider    string
	ProviderID  string
	RawName     string
}

// RecordKind tags the variant carried by a ProviderRecord.
type RecordKind string

// Record kinds.
const (
	KindMatch RecordKind = "match"
	KindStat  RecordKind = "stat"
)

// ProviderRecord is the normalized shape every provider payload is mapped
// into before it reaches the integrator. Exactly one of Match or Stat is
// set, selected by Kind; consumers branch on the tag only.
type ProviderRecord struct {
	Provider string
	Kind     RecordKind
	Match    *MatchData
	Stat     *StatLine
}

// MatchData is one provider's view of a single match.
type MatchData struct {
	Competition string
	Season      string
	Date        time.Time

	// Provider-specific team identity. IDs may be empty; names are the
	// resolver's fallback.
	HomeID, HomeName string
	AwayID, AwayName string

	// Canonical team IDs, filled by the resolution stage.
	Home, Away string

	// Numeric fields keyed by name: home_score, away_score, attendance, ...
	Numbers map[string]float64
}

// StatLine is one provider's per-player stat line for a single match.
type StatLine struct {
	Date             time.Time
	HomeID, HomeName string
	AwayID, AwayName string

	PlayerID, PlayerName string
	TeamID, TeamName     string
	Position             Position

	// Canonical IDs, filled by the resolution stage.
	Player string
	Team   string
	Home   string
	Away   string

	// Metrics keyed by name: minutes, goals, assists, saves, rating, ...
	Metrics map[string]float64
}

// MatchKey derives the cross-provider match identity from kickoff date and
// the canonical home/away team IDs. Provider match IDs never participate.
func MatchKey(date time.Time, home, away string) string {
	return date.UTC().Format("2006-01-02") + "|" + home + "|" + away
}

// Claim records one provider's reported value for a field.
type Claim struct {
	Provider string
	Value    float64
}

// Field is a merged numeric field: the winning value, who supplied it, and
// every claim seen so far in arrival order.
type Field struct {
	Value    float64
	Provider string
	Claims   []Claim
}

// HasClaim reports whether the provider already contributed a claim.
func (f Field) HasClaim(provider string) bool {
	for _, c := range f.Claims {
		if c.Provider == provider {
			return true
		}
	}
	return false
}

// Warning is a non-fatal data quality note attached to a merged record.
type Warning struct {
	Kind   string // e.g. "consistency"
	Field  string
	Detail string
}

// MatchRecord is the merged, cross-provider record for one match.
type MatchRecord struct {
	Key         string
	Competition string
	Season      string
	Date        time.Time
	Home        string // canonical team ID
	Away        string // canonical team ID

	// Fields holds merged numeric fields (home_score, away_score, ...).
	Fields map[string]Field

	Provenance Provenance
	Warnings   []Warning

	// Final marks the record immutable: all expected providers reported
	// or the staleness timeout elapsed.
	Final bool
}

// Score returns a merged numeric field and whether any provider reported it.
func (m *MatchRecord) Score(field string) (float64, bool) {
	f, ok := m.Fields[field]
	return f.Value, ok
}

// HomeScore returns the merged home goals, zero if unreported.
func (m *MatchRecord) HomeScore() int {
	v, _ := m.Score("home_score")
	return int(v)
}

// AwayScore returns the merged away goals, zero if unreported.
func (m *MatchRecord) AwayScore() int {
	v, _ := m.Score("away_score")
	return int(v)
}

// PlayerMatchStat is the merged per-player per-match stat record.
type PlayerMatchStat struct {
	MatchKey string
	Player   string // canonical player ID
	Team     string // canonical team ID
	Position Position

	// Metrics holds merged per-metric fields keyed by metric name.
	Metrics map[string]Field

	Provenance Provenance
	Warnings   []Warning
}

// Metric returns a merged metric value, zero if absent.
func (s *PlayerMatchStat) Metric(name string) float64 {
	return s.Metrics[name].Value
}

// Minutes returns the merged minutes played.
func (s *PlayerMatchStat) Minutes() float64 {
	return s.Metric("minutes")
}

// FeatureVector is a read-only projection of a merged stat record into
// normalized, comparable features. Regenerated on change, never edited.
type FeatureVector struct {
	ContextID string // match key or team+season context
	Player    string
	Team      string
	Minutes   float64

	// Rates holds per-90 rate features keyed by "<metric>_per90".
	Rates map[string]float64

	// Goalkeeper-only features. Nil (not zero) for outfield players so
	// downstream aggregates are not biased.
	SavesPer90         *float64
	GoalsConcededPer90 *float64

	// LowSample marks vectors derived from zero minutes played.
	LowSample bool
}

// ContributionScore is one player's Shapley attribution for a coalition
// context. Immutable; a later run supersedes rather than mutates.
type ContributionScore struct {
	ContextID  string
	Player     string
	Value      float64
	Variance   float64 // variance of the mean estimate; zero in exact mode
	Samples    int
	RunID      string
	ComputedAt time.Time
}
