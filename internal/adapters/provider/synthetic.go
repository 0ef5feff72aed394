package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/harpastum/internal/domain/model"
)

// Synthetic simulates two independent soccer data providers over one shared
// underlying season, with provider-specific identifiers and naming
// conventions. It backs demo runs and load tests without touching a real
// provider: apifooty carries numeric IDs, accented names and attendance;
// soccerdata has no IDs, ASCII names and a match rating.
type Synthetic struct {
	seed      int64
	failEvery int64 // every Nth request fails transiently; 0 disables
	calls     atomic.Int64
}

// Provider names served by Synthetic.
const (
	ProviderAPIFooty   = "apifooty"
	ProviderSoccerData = "soccerdata"
)

const seasonLabel = "2024-25"

var seasonStart = time.Date(2024, 8, 10, 15, 0, 0, 0, time.UTC)

type playerSeed struct {
	id       string
	accented string // apifooty spelling
	ascii    string // soccerdata spelling
	position model.Position
}

type teamSeed struct {
	id      string
	legal   string // apifooty: legal-entity style
	short   string // soccerdata: short ASCII style
	players []playerSeed
}

// Four teams, five named players each: small enough that per-team coalition
// games stay in exact Shapley range.
var syntheticTeams = []teamSeed{
	{
		id: "t1", legal: "Real Oviedo CF", short: "Real Oviedo",
		players: []playerSeed{
			{id: "p101", accented: "José Martínez", ascii: "Jose Martinez", position: model.PositionForward},
			{id: "p102", accented: "Andrés Caicedo", ascii: "Andres Caicedo", position: model.PositionMidfielder},
			{id: "p103", accented: "Rubén Díaz", ascii: "Ruben Diaz", position: model.PositionDefender},
			{id: "p104", accented: "Iker Zubiaga", ascii: "Iker Zubiaga", position: model.PositionDefender},
			{id: "p105", accented: "Unai Goikoetxea", ascii: "Unai Goikoetxea", position: model.PositionGoalkeeper},
		},
	},
	{
		id: "t2", legal: "Sporting Almería FC", short: "Almeria",
		players: []playerSeed{
			{id: "p201", accented: "João Ferreira", ascii: "Joao Ferreira", position: model.PositionForward},
			{id: "p202", accented: "Théo Lemaire", ascii: "Theo Lemaire", position: model.PositionMidfielder},
			{id: "p203", accented: "Nicolás Peña", ascii: "Nicolas Pena", position: model.PositionMidfielder},
			{id: "p204", accented: "Marek Kovář", ascii: "Marek Kovar", position: model.PositionDefender},
			{id: "p205", accented: "Björn Sørensen", ascii: "Bjorn Sorensen", position: model.PositionGoalkeeper},
		},
	},
	{
		id: "t3", legal: "AC Fiorvento", short: "Fiorvento",
		players: []playerSeed{
			{id: "p301", accented: "Matteo Castellini", ascii: "Matteo Castellini", position: model.PositionForward},
			{id: "p302", accented: "Çağlar Demir", ascii: "Caglar Demir", position: model.PositionMidfielder},
			{id: "p303", accented: "Luís Gonçalves", ascii: "Luis Goncalves", position: model.PositionDefender},
			{id: "p304", accented: "Péter Szabó", ascii: "Peter Szabo", position: model.PositionDefender},
			{id: "p305", accented: "Emil Håland", ascii: "Emil Haland", position: model.PositionGoalkeeper},
		},
	},
	{
		id: "t4", legal: "FC Güntersdorf", short: "Guntersdorf",
		players: []playerSeed{
			{id: "p401", accented: "Jürgen Möller", ascii: "Jurgen Moller", position: model.PositionForward},
			{id: "p402", accented: "Miloš Jovanović", ascii: "Milos Jovanovic", position: model.PositionMidfielder},
			{id: "p403", accented: "François Dubois", ascii: "Francois Dubois", position: model.PositionMidfielder},
			{id: "p404", accented: "Jan Růžička", ascii: "Jan Ruzicka", position: model.PositionDefender},
			{id: "p405", accented: "Ólafur Björnsson", ascii: "Olafur Bjornsson", position: model.PositionGoalkeeper},
		},
	},
}

// Round-robin pairings for four teams; rounds rotate by matchday.
var syntheticRounds = [][2][2]int{
	{{0, 1}, {2, 3}},
	{{0, 2}, {1, 3}},
	{{0, 3}, {1, 2}},
}

// NewSynthetic creates a synthetic provider backend. failEvery > 0 makes
// every Nth request fail with a transient error to exercise retry paths.
func NewSynthetic(seed int64, failEvery int) *Synthetic {
	return &Synthetic{seed: seed, failEvery: int64(failEvery)}
}

// Do serves one descriptor. Supported endpoints: "matches" and "stats",
// both with a required "day" parameter.
func (s *Synthetic) Do(ctx context.Context, d Descriptor) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.failEvery > 0 && s.calls.Add(1)%s.failEvery == 0 {
		return nil, fmt.Errorf("synthetic outage for %s", d)
	}

	day, err := strconv.Atoi(d.Params["day"])
	if err != nil || day < 1 {
		return nil, fmt.Errorf("bad day parameter %q: %w", d.Params["day"], ErrFetchFailed)
	}

	switch d.Endpoint {
	case "matches":
		return json.Marshal(s.matches(d.Provider, day))
	case "stats":
		return json.Marshal(s.stats(d.Provider, day))
	default:
		return nil, fmt.Errorf("unknown endpoint %q: %w", d.Endpoint, ErrFetchFailed)
	}
}

// dayFixtures returns the two fixtures of a matchday as team indices.
func dayFixtures(day int) [2][2]int {
	round := syntheticRounds[(day-1)%len(syntheticRounds)]
	if day%2 == 0 {
		// Alternate home advantage on even days.
		return [2][2]int{{round[0][1], round[0][0]}, {round[1][1], round[1][0]}}
	}
	return round
}

func (s *Synthetic) rng(day, fixture int) *rand.Rand {
	return rand.New(rand.NewSource(s.seed + int64(day)*1000 + int64(fixture))) //nolint:gosec // deterministic simulation
}

func dayDate(day int) time.Time {
	return seasonStart.AddDate(0, 0, (day-1)*7)
}

func (s *Synthetic) matches(providerName string, day int) []matchPayload {
	fixtures := dayFixtures(day)
	out := make([]matchPayload, 0, len(fixtures))
	for fi, fx := range fixtures {
		rng := s.rng(day, fi)
		home, away := syntheticTeams[fx[0]], syntheticTeams[fx[1]]
		homeGoals, awayGoals := rng.Intn(4), rng.Intn(3)

		numbers := map[string]float64{
			"home_score": float64(homeGoals),
			"away_score": float64(awayGoals),
		}
		p := matchPayload{
			Competition: "Liga Sintética",
			Season:      seasonLabel,
			Date:        dayDate(day),
			Numbers:     numbers,
		}
		switch providerName {
		case ProviderAPIFooty:
			p.HomeID, p.HomeName = home.id, home.legal
			p.AwayID, p.AwayName = away.id, away.legal
			numbers["attendance"] = float64(18000 + rng.Intn(22000))
		default:
			p.HomeName = home.short
			p.AwayName = away.short
		}
		out = append(out, p)
	}
	return out
}

func (s *Synthetic) stats(providerName string, day int) []statPayload {
	fixtures := dayFixtures(day)
	out := make([]statPayload, 0, 20)
	for fi, fx := range fixtures {
		rng := s.rng(day, fi)
		home, away := syntheticTeams[fx[0]], syntheticTeams[fx[1]]
		homeGoals, awayGoals := rng.Intn(4), rng.Intn(3)

		out = append(out, s.teamStats(providerName, rng, day, home, away, home, homeGoals, awayGoals)...)
		out = append(out, s.teamStats(providerName, rng, day, home, away, away, awayGoals, homeGoals)...)
	}
	return out
}

// teamStats renders one team's stat lines for a fixture. scored/conceded are
// from the team's perspective.
func (s *Synthetic) teamStats(providerName string, rng *rand.Rand, day int, home, away, team teamSeed, scored, conceded int) []statPayload {
	// Distribute the team's goals over its outfield players.
	goals := make(map[string]int, len(team.players))
	outfield := team.players[:len(team.players)-1]
	for g := 0; g < scored; g++ {
		p := outfield[rng.Intn(len(outfield))]
		goals[p.id]++
	}

	lines := make([]statPayload, 0, len(team.players))
	for i, p := range team.players {
		minutes := 90.0
		if i == 1 && rng.Intn(4) == 0 {
			// Occasional early substitution.
			minutes = float64(25 + rng.Intn(40))
		}
		metrics := map[string]float64{
			"minutes": minutes,
			"goals":   float64(goals[p.id]),
			"assists": float64(rng.Intn(2)),
			"shots":   float64(rng.Intn(5)),
			"passes":  float64(20 + rng.Intn(60)),
			"tackles": float64(rng.Intn(6)),
		}
		if p.position == model.PositionGoalkeeper {
			metrics["saves"] = float64(rng.Intn(7))
			metrics["goals_conceded"] = float64(conceded)
		}

		line := statPayload{
			Date:     dayDate(day),
			Position: string(p.position),
			Metrics:  metrics,
		}
		switch providerName {
		case ProviderAPIFooty:
			line.HomeID, line.HomeName = home.id, home.legal
			line.AwayID, line.AwayName = away.id, away.legal
			line.PlayerID, line.PlayerName = p.id, p.accented
			line.TeamID, line.TeamName = team.id, team.legal
		default:
			line.HomeName = home.short
			line.AwayName = away.short
			line.PlayerName = p.ascii
			line.TeamName = team.short
			// Derived arithmetically so the shared rng stream stays aligned
			// across providers.
			metrics["rating"] = 5.0 + float64((day*31+i*13+scored*7)%40)/10.0
		}
		lines = append(lines, line)
	}
	return lines
}
