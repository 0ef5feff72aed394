package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/harpastum/internal/domain/model"
)

// In-memory store implementations. A batch run is the write path, so
// plain RWMutex maps with sort-on-read ordering carry the load; no
// ordered index is kept between reads.

// MemoryMatchStore is an in-memory MatchStore.
type MemoryMatchStore struct {
	mu      sync.RWMutex
	records map[string]*model.MatchRecord
}

// NewMatchStore creates an empty in-memory match store.
func NewMatchStore() *MemoryMatchStore {
	return &MemoryMatchStore{records: make(map[string]*model.MatchRecord)}
}

func (s *MemoryMatchStore) Upsert(_ context.Context, rec *model.MatchRecord) error {
	if rec == nil || rec.Key == "" {
		return fmt.Errorf("match record without key: %w", ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key] = rec
	return nil
}

func (s *MemoryMatchStore) Get(_ context.Context, key string) (*model.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", key, ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryMatchStore) All(_ context.Context) []*model.MatchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.MatchRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *MemoryMatchStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func statKey(matchKey, player string) string {
	return matchKey + "#" + player
}

// MemoryStatStore is an in-memory StatStore.
type MemoryStatStore struct {
	mu    sync.RWMutex
	stats map[string]*model.PlayerMatchStat
}

// NewStatStore creates an empty in-memory stat store.
func NewStatStore() *MemoryStatStore {
	return &MemoryStatStore{stats: make(map[string]*model.PlayerMatchStat)}
}

func (s *MemoryStatStore) Upsert(_ context.Context, stat *model.PlayerMatchStat) error {
	if stat == nil || stat.MatchKey == "" || stat.Player == "" {
		return fmt.Errorf("stat line without key: %w", ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[statKey(stat.MatchKey, stat.Player)] = stat
	return nil
}

func (s *MemoryStatStore) Get(_ context.Context, matchKey, player string) (*model.PlayerMatchStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.stats[statKey(matchKey, player)]
	if !ok {
		return nil, fmt.Errorf("stat %s/%s: %w", matchKey, player, ErrNotFound)
	}
	return stat, nil
}

func (s *MemoryStatStore) ByMatch(_ context.Context, matchKey string) []*model.PlayerMatchStat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.PlayerMatchStat
	for _, stat := range s.stats {
		if stat.MatchKey == matchKey {
			out = append(out, stat)
		}
	}
	sortStats(out)
	return out
}

func (s *MemoryStatStore) ByTeam(_ context.Context, team string) []*model.PlayerMatchStat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.PlayerMatchStat
	for _, stat := range s.stats {
		if stat.Team == team {
			out = append(out, stat)
		}
	}
	sortStats(out)
	return out
}

func (s *MemoryStatStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stats)
}

func sortStats(stats []*model.PlayerMatchStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].MatchKey != stats[j].MatchKey {
			return stats[i].MatchKey < stats[j].MatchKey
		}
		return stats[i].Player < stats[j].Player
	})
}

// MemoryScoreStore is an in-memory append-only ScoreStore.
type MemoryScoreStore struct {
	mu   sync.RWMutex
	runs map[string][][]model.ContributionScore
}

// NewScoreStore creates an empty in-memory score store.
func NewScoreStore() *MemoryScoreStore {
	return &MemoryScoreStore{runs: make(map[string][][]model.ContributionScore)}
}

func (s *MemoryScoreStore) Append(_ context.Context, scores []model.ContributionScore) error {
	if len(scores) == 0 {
		return ErrEmptyRun
	}
	contextID := scores[0].ContextID
	run := make([]model.ContributionScore, len(scores))
	copy(run, scores)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[contextID] = append(s.runs[contextID], run)
	return nil
}

func (s *MemoryScoreStore) Latest(_ context.Context, contextID string) ([]model.ContributionScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs, ok := s.runs[contextID]
	if !ok || len(runs) == 0 {
		return nil, fmt.Errorf("context %s: %w", contextID, ErrNotFound)
	}
	latest := runs[len(runs)-1]
	out := make([]model.ContributionScore, len(latest))
	copy(out, latest)
	return out, nil
}

func (s *MemoryScoreStore) Runs(_ context.Context, contextID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs[contextID])
}

func (s *MemoryScoreStore) Top(ctx context.Context, contextID string, n int) ([]model.ContributionScore, error) {
	if n < 1 {
		return nil, fmt.Errorf("top %d: %w", n, ErrInvalidLimit)
	}
	latest, err := s.Latest(ctx, contextID)
	if err != nil {
		return nil, err
	}
	sort.Slice(latest, func(i, j int) bool {
		if latest[i].Value != latest[j].Value {
			return latest[i].Value > latest[j].Value
		}
		return latest[i].Player < latest[j].Player
	})
	if n > len(latest) {
		n = len(latest)
	}
	return latest[:n], nil
}
