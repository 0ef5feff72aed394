package provider

import (
	"time"

	"github.com/okian/harpastum/internal/domain/model"
)

// Wire shapes shared by the synthetic provider and the feed decoder. Real
// provider adapters map their own payloads into these before decoding.

type matchPayload struct {
	Competition string             `json:"competition"`
	Season      string             `json:"season"`
	Date        time.Time          `json:"date"`
	HomeID      string             `json:"home_id,omitempty"`
	HomeName    string             `json:"home_name"`
	AwayID      string             `json:"away_id,omitempty"`
	AwayName    string             `json:"away_name"`
	Numbers     map[string]float64 `json:"numbers"`
}

type statPayload struct {
	Date       time.Time          `json:"date"`
	HomeID     string             `json:"home_id,omitempty"`
	HomeName   string             `json:"home_name"`
	AwayID     string             `json:"away_id,omitempty"`
	AwayName   string             `json:"away_name"`
	PlayerID   string             `json:"player_id,omitempty"`
	PlayerName string             `json:"player_name"`
	TeamID     string             `json:"team_id,omitempty"`
	TeamName   string             `json:"team_name"`
	Position   string             `json:"position"`
	Metrics    map[string]float64 `json:"metrics"`
}

func (p matchPayload) record(providerName string) model.ProviderRecord {
	return model.ProviderRecord{
		Provider: providerName,
		Kind:     model.KindMatch,
		Match: &model.MatchData{
			Competition: p.Competition,
			Season:      p.Season,
			Date:        p.Date,
			HomeID:      p.HomeID,
			HomeName:    p.HomeName,
			AwayID:      p.AwayID,
			AwayName:    p.AwayName,
			Numbers:     p.Numbers,
		},
	}
}

func (p statPayload) record(providerName string) model.ProviderRecord {
	return model.ProviderRecord{
		Provider: providerName,
		Kind:     model.KindStat,
		Stat: &model.StatLine{
			Date:       p.Date,
			HomeID:     p.HomeID,
			HomeName:   p.HomeName,
			AwayID:     p.AwayID,
			AwayName:   p.AwayName,
			PlayerID:   p.PlayerID,
			PlayerName: p.PlayerName,
			TeamID:     p.TeamID,
			TeamName:   p.TeamName,
			Position:   model.Position(p.Position),
			Metrics:    p.Metrics,
		},
	}
}
