package integrate_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/okian/harpastum/internal/domain/integrate"
	"github.com/okian/harpastum/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var kickoff = time.Date(2024, 8, 10, 15, 0, 0, 0, time.UTC)

func matchRecord(providerName string, numbers map[string]float64) model.ProviderRecord {
	return model.ProviderRecord{
		Provider: providerName,
		Kind:     model.KindMatch,
		Match: &model.MatchData{
			Competition: "Liga Sintética",
			Season:      "2024-25",
			Date:        kickoff,
			Home:        "team-a",
			Away:        "team-b",
			Numbers:     numbers,
		},
	}
}

func statRecord(providerName string, metrics map[string]float64) model.ProviderRecord {
	return model.ProviderRecord{
		Provider: providerName,
		Kind:     model.KindStat,
		Stat: &model.StatLine{
			Date:     kickoff,
			Home:     "team-a",
			Away:     "team-b",
			Player:   "player-1",
			Team:     "team-a",
			Position: model.PositionForward,
			Metrics:  metrics,
		},
	}
}

func TestMatchIntegration(t *testing.T) {
	ctx := context.Background()

	Convey("Given two providers reporting the same match", t, func() {
		g := integrate.New()

		Convey("When one is missing attendance", func() {
			m, err := g.Match(ctx, nil, matchRecord("apifooty", map[string]float64{
				"home_score": 2, "away_score": 1, "attendance": 30123,
			}))
			So(err, ShouldBeNil)
			m, err = g.Match(ctx, m, matchRecord("soccerdata", map[string]float64{
				"home_score": 2, "away_score": 1,
			}))
			So(err, ShouldBeNil)

			Convey("Then one record carries the populated attendance", func() {
				att, ok := m.Score("attendance")
				So(ok, ShouldBeTrue)
				So(att, ShouldEqual, 30123)
				So(m.HomeScore(), ShouldEqual, 2)
				So(m.AwayScore(), ShouldEqual, 1)
			})

			Convey("And provenance lists both providers", func() {
				So(m.Provenance.Has("apifooty"), ShouldBeTrue)
				So(m.Provenance.Has("soccerdata"), ShouldBeTrue)
			})

			Convey("And no consistency warning was raised", func() {
				So(len(m.Warnings), ShouldEqual, 0)
			})
		})

		Convey("When non-designated providers disagree beyond tolerance", func() {
			m, err := g.Match(ctx, nil, matchRecord("apifooty", map[string]float64{"home_score": 2}))
			So(err, ShouldBeNil)
			m, err = g.Match(ctx, m, matchRecord("soccerdata", map[string]float64{"home_score": 3}))
			So(err, ShouldBeNil)

			Convey("Then the first-seen value is kept and a warning is flagged", func() {
				So(m.HomeScore(), ShouldEqual, 2)
				So(len(m.Warnings), ShouldEqual, 1)
				So(m.Warnings[0].Kind, ShouldEqual, "consistency")
				So(m.Warnings[0].Field, ShouldEqual, "home_score")
			})

			Convey("And both claims are recorded", func() {
				So(len(m.Fields["home_score"].Claims), ShouldEqual, 2)
			})
		})
	})
}

func TestAuthorityPolicy(t *testing.T) {
	ctx := context.Background()

	Convey("Given soccerdata is authoritative for home_score", t, func() {
		g := integrate.New(integrate.WithAuthority(map[string]string{"home_score": "soccerdata"}))

		Convey("When the authoritative provider reports second", func() {
			m, _ := g.Match(ctx, nil, matchRecord("apifooty", map[string]float64{"home_score": 2}))
			m, err := g.Match(ctx, m, matchRecord("soccerdata", map[string]float64{"home_score": 3}))
			So(err, ShouldBeNil)

			Convey("Then its value replaces the fallback", func() {
				So(m.HomeScore(), ShouldEqual, 3)
				So(m.Fields["home_score"].Provider, ShouldEqual, "soccerdata")
			})
		})

		Convey("When the authoritative provider reported first", func() {
			m, _ := g.Match(ctx, nil, matchRecord("soccerdata", map[string]float64{"home_score": 3}))
			m, err := g.Match(ctx, m, matchRecord("apifooty", map[string]float64{"home_score": 2}))
			So(err, ShouldBeNil)

			Convey("Then its value stands without a warning", func() {
				So(m.HomeScore(), ShouldEqual, 3)
				So(len(m.Warnings), ShouldEqual, 0)
			})
		})

		Convey("When the authoritative provider never reports", func() {
			m, err := g.Match(ctx, nil, matchRecord("apifooty", map[string]float64{"home_score": 2}))
			So(err, ShouldBeNil)

			Convey("Then any reporting provider serves as fallback", func() {
				So(m.HomeScore(), ShouldEqual, 2)
			})
		})
	})
}

func TestIntegrationIdempotence(t *testing.T) {
	ctx := context.Background()

	Convey("Given a merged match record", t, func() {
		g := integrate.New()
		rec := matchRecord("apifooty", map[string]float64{"home_score": 2, "away_score": 0})
		other := matchRecord("soccerdata", map[string]float64{"home_score": 2, "away_score": 1})

		m, err := g.Match(ctx, nil, rec)
		So(err, ShouldBeNil)
		m, err = g.Match(ctx, m, other)
		So(err, ShouldBeNil)

		snapshot := *m
		snapshotFields := make(map[string]model.Field, len(m.Fields))
		for k, v := range m.Fields {
			snapshotFields[k] = v
		}

		Convey("When the same incoming record integrates again", func() {
			m2, err := g.Match(ctx, m, other)
			So(err, ShouldBeNil)

			Convey("Then the result is identical to the first merge", func() {
				So(m2.Provenance, ShouldResemble, snapshot.Provenance)
				So(len(m2.Warnings), ShouldEqual, len(snapshot.Warnings))
				So(reflect.DeepEqual(m2.Fields, snapshotFields), ShouldBeTrue)
			})
		})
	})

	Convey("Given a merged stat record", t, func() {
		g := integrate.New()
		rec := statRecord("apifooty", map[string]float64{"minutes": 90, "goals": 1})

		s, err := g.Stat(ctx, nil, rec)
		So(err, ShouldBeNil)
		s, err = g.Stat(ctx, s, rec)
		So(err, ShouldBeNil)

		Convey("Then re-integration added no duplicate provenance or claims", func() {
			So(len(s.Provenance), ShouldEqual, 1)
			So(len(s.Metrics["goals"].Claims), ShouldEqual, 1)
		})
	})
}

func TestStatIntegration(t *testing.T) {
	ctx := context.Background()

	Convey("Given per-metric authority for rating", t, func() {
		g := integrate.New(integrate.WithAuthority(map[string]string{"rating": "soccerdata"}))

		Convey("When both providers report a stat line", func() {
			s, err := g.Stat(ctx, nil, statRecord("apifooty", map[string]float64{"minutes": 90, "goals": 1}))
			So(err, ShouldBeNil)
			s, err = g.Stat(ctx, s, statRecord("soccerdata", map[string]float64{"minutes": 90, "goals": 1, "rating": 7.8}))
			So(err, ShouldBeNil)

			Convey("Then metrics merge under the authority policy", func() {
				So(s.Minutes(), ShouldEqual, 90)
				So(s.Metric("goals"), ShouldEqual, 1)
				So(s.Metric("rating"), ShouldEqual, 7.8)
			})

			Convey("And the match key derives from date and canonical teams", func() {
				So(s.MatchKey, ShouldEqual, model.MatchKey(kickoff, "team-a", "team-b"))
			})
		})
	})
}

func TestIntegrationGuards(t *testing.T) {
	ctx := context.Background()
	g := integrate.New()

	Convey("Given invalid inputs", t, func() {
		Convey("Then a stat record cannot merge as a match", func() {
			_, err := g.Match(ctx, nil, statRecord("apifooty", map[string]float64{"minutes": 90}))
			So(errors.Is(err, integrate.ErrKindMismatch), ShouldBeTrue)
		})

		Convey("Then unresolved records are rejected", func() {
			rec := matchRecord("apifooty", map[string]float64{"home_score": 1})
			rec.Match.Home = ""
			_, err := g.Match(ctx, nil, rec)
			So(errors.Is(err, integrate.ErrUnresolvedRecord), ShouldBeTrue)
		})

		Convey("Then records for a different match cannot merge in", func() {
			m, err := g.Match(ctx, nil, matchRecord("apifooty", map[string]float64{"home_score": 1}))
			So(err, ShouldBeNil)
			other := matchRecord("soccerdata", map[string]float64{"home_score": 1})
			other.Match.Away = "team-c"
			_, err = g.Match(ctx, m, other)
			So(errors.Is(err, integrate.ErrKeyMismatch), ShouldBeTrue)
		})

		Convey("Then finalized records refuse new data", func() {
			m, err := g.Match(ctx, nil, matchRecord("apifooty", map[string]float64{"home_score": 1}))
			So(err, ShouldBeNil)
			g.Finalize(m, 1)
			So(m.Final, ShouldBeTrue)
			_, err = g.Match(ctx, m, matchRecord("soccerdata", map[string]float64{"home_score": 1}))
			So(errors.Is(err, integrate.ErrRecordFinal), ShouldBeTrue)
		})
	})
}
