package resolve

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/harpastum/internal/domain/model"
	"github.com/okian/harpastum/pkg/logger"
	"github.com/okian/harpastum/pkg/metrics"
)

// Default matching thresholds.
const (
	defaultThreshold = 0.82
	defaultEpsilon   = 0.03
)

type aliasKey struct {
	provider   string
	providerID string
}

type nameKey struct {
	kind model.EntityType
	name string // normalized
}

// entity is a registered canonical entity plus its cached normalized name.
type entity struct {
	model.CanonicalEntity
	normName string
}

// Registry is the shared alias table and canonical entity index. Reads are
// concurrent; writes (new bindings and entities) are serialized so
// concurrent resolution of the same new name cannot create duplicates.
type Registry struct {
	mu         sync.RWMutex
	entities   map[string]*entity  // canonical ID -> entity
	aliases    map[aliasKey]string // (provider, providerID) -> canonical ID
	byName     map[nameKey]string  // (type, normalized name) -> canonical ID
	aliasCount map[string]int      // canonical ID -> bound alias count
	bound      []model.ProviderAlias

	threshold float64
	epsilon   float64
	newID     func() string
	logger    logger.Logger
}

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithThreshold sets the minimum similarity for binding to an existing
// entity instead of creating a new one.
func WithThreshold(t float64) Option {
	return func(r *Registry) {
		if t > 0 && t <= 1 {
			r.threshold = t
		}
	}
}

// WithEpsilon sets the score margin under which two candidates are treated
// as tied.
func WithEpsilon(e float64) Option {
	return func(r *Registry) {
		if e >= 0 {
			r.epsilon = e
		}
	}
}

// WithIDGenerator replaces canonical ID generation, for deterministic tests.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entities:   make(map[string]*entity),
		aliases:    make(map[aliasKey]string),
		byName:     make(map[nameKey]string),
		aliasCount: make(map[string]int),
		threshold:  defaultThreshold,
		epsilon:    defaultEpsilon,
		newID:      uuid.NewString,
		logger:     logger.Named("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps a provider identity to a canonical entity ID, creating the
// entity if nothing matches. Resolution of a known (provider, providerID)
// pair never consults names, so it is deterministic regardless of call
// order relative to other resolutions.
func (r *Registry) Resolve(ctx context.Context, providerName, providerID, rawName string, kind model.EntityType) (string, error) {
	if providerID != "" {
		r.mu.RLock()
		id, ok := r.aliases[aliasKey{providerName, providerID}]
		r.mu.RUnlock()
		if ok {
			metrics.RecordResolution("alias_hit")
			return id, nil
		}
	}

	normName := NormalizeName(rawName)
	if normName == "" {
		return "", fmt.Errorf("provider %s id %q: blank name: %w", providerName, providerID, ErrUnresolvableEntity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check the alias under the write lock; a concurrent caller may have
	// bound it between the read above and here.
	if providerID != "" {
		if id, ok := r.aliases[aliasKey{providerName, providerID}]; ok {
			metrics.RecordResolution("alias_hit")
			return id, nil
		}
	}

	if id, ok := r.byName[nameKey{kind, normName}]; ok {
		r.bind(providerName, providerID, rawName, normName, kind, id)
		metrics.RecordResolution("name_hit")
		return id, nil
	}

	if id, ok := r.bestMatch(ctx, normName, kind); ok {
		r.bind(providerName, providerID, rawName, normName, kind, id)
		metrics.RecordResolution("fuzzy_bind")
		return id, nil
	}

	id := r.newID()
	r.entities[id] = &entity{
		CanonicalEntity: model.CanonicalEntity{ID: id, Name: rawName, Type: kind},
		normName:        normName,
	}
	r.byName[nameKey{kind, normName}] = id
	r.bind(providerName, providerID, rawName, normName, kind, id)
	metrics.RecordResolution("created")
	metrics.UpdateCanonicalEntities(len(r.entities))
	return id, nil
}

// bestMatch scans entities of the same kind for the highest similarity
// above the threshold. Ties within epsilon go to the candidate with more
// bound aliases, logged as an ambiguity rather than guessed silently.
// Caller holds the write lock.
func (r *Registry) bestMatch(ctx context.Context, normName string, kind model.EntityType) (string, bool) {
	type candidate struct {
		id    string
		score float64
	}
	var best, second candidate
	for id, e := range r.entities {
		if e.Type != kind {
			continue
		}
		s := Similarity(normName, e.normName)
		switch {
		case s > best.score:
			second = best
			best = candidate{id, s}
		case s > second.score:
			second = candidate{id, s}
		}
	}
	if best.score < r.threshold {
		return "", false
	}
	if second.id != "" && best.score-second.score < r.epsilon && second.score >= r.threshold {
		winner, loser := best, second
		if r.aliasCount[loser.id] > r.aliasCount[winner.id] {
			winner, loser = loser, winner
		}
		r.logger.Warn(ctx, "ambiguous entity match, preferring candidate with more aliases",
			logger.String("name", normName),
			logger.String("winner", winner.id),
			logger.Float64("winner_score", winner.score),
			logger.String("runner_up", loser.id),
			logger.Float64("runner_up_score", loser.score),
		)
		metrics.RecordAmbiguousResolution()
		return winner.id, true
	}
	return best.id, true
}

// bind records the alias and name index entries for a resolution. Caller
// holds the write lock.
func (r *Registry) bind(providerName, providerID, rawName, normName string, kind model.EntityType, id string) {
	if providerID != "" {
		r.aliases[aliasKey{providerName, providerID}] = id
		r.aliasCount[id]++
		r.bound = append(r.bound, model.ProviderAlias{
			CanonicalID: id,
			Provider:    providerName,
			ProviderID:  providerID,
			RawName:     rawName,
		})
	}
	if _, ok := r.byName[nameKey{kind, normName}]; !ok {
		r.byName[nameKey{kind, normName}] = id
	}
}

// Aliases returns every alias binding created so far.
func (r *Registry) Aliases() []model.ProviderAlias {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ProviderAlias, len(r.bound))
	copy(out, r.bound)
	return out
}

// Lookup returns the canonical ID bound to a provider identity, if any.
func (r *Registry) Lookup(providerName, providerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.aliases[aliasKey{providerName, providerID}]
	return id, ok
}

// Entity returns a registered canonical entity.
func (r *Registry) Entity(id string) (model.CanonicalEntity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	if !ok {
		return model.CanonicalEntity{}, false
	}
	return e.CanonicalEntity, true
}

// Entities returns all canonical entities sorted by display name.
func (r *Registry) Entities() []model.CanonicalEntity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.CanonicalEntity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e.CanonicalEntity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of canonical entities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}
