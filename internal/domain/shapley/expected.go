package shapley

import (
	"sort"
	"strings"
)

// LineupOutcome is one historical observation: the players fielded
// together and the points the lineup earned.
type LineupOutcome struct {
	Players []string
	Points  float64
}

// ExpectedPoints builds a characteristic function from historical
// lineup outcomes. A coalition that matches an observed lineup exactly
// is valued at that lineup's mean points. Unseen coalitions fall back
// to an additive estimate from each member's mean per-appearance point
// share, so marginal contributions stay defined everywhere the sampler
// walks. The function never fails.
func ExpectedPoints(history []LineupOutcome) ValueFunc {
	type agg struct {
		sum   float64
		count int
	}
	lineups := make(map[string]*agg)
	shares := make(map[string]*agg)
	for _, h := range history {
		if len(h.Players) == 0 {
			continue
		}
		key := lineupKey(h.Players)
		a, ok := lineups[key]
		if !ok {
			a = &agg{}
			lineups[key] = a
		}
		a.sum += h.Points
		a.count++

		perPlayer := h.Points / float64(len(h.Players))
		for _, p := range h.Players {
			s, ok := shares[p]
			if !ok {
				s = &agg{}
				shares[p] = s
			}
			s.sum += perPlayer
			s.count++
		}
	}

	return func(subset []string) (float64, error) {
		if len(subset) == 0 {
			return 0, nil
		}
		if a, ok := lineups[lineupKey(subset)]; ok {
			return a.sum / float64(a.count), nil
		}
		total := 0.0
		for _, p := range subset {
			if s, ok := shares[p]; ok {
				total += s.sum / float64(s.count)
			}
		}
		return total, nil
	}
}

func lineupKey(players []string) string {
	sorted := make([]string, len(players))
	copy(sorted, players)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}
