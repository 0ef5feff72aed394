package validate_test

import (
	"errors"
	"testing"

	"github.com/okian/harpastum/internal/domain/model"
	"github.com/okian/harpastum/internal/domain/validate"
	. "github.com/smartystreets/goconvey/convey"
)

func stat(player string, metrics map[string]float64) model.PlayerMatchStat {
	fields := make(map[string]model.Field, len(metrics))
	for name, v := range metrics {
		fields[name] = model.Field{Value: v, Provider: "apifooty"}
	}
	return model.PlayerMatchStat{
		MatchKey: "2024-08-10|team-a|team-b",
		Player:   player,
		Team:     "team-a",
		Metrics:  fields,
	}
}

func TestStatRules(t *testing.T) {
	Convey("Given the default rule set", t, func() {
		v := validate.New()

		Convey("Then a plausible stat line passes", func() {
			res := v.Stat(stat("player-1", map[string]float64{"minutes": 90, "goals": 2, "rating": 7.5}))
			So(res.Status, ShouldEqual, validate.StatusPass)
			So(res.Err(), ShouldBeNil)
			So(len(res.Issues), ShouldEqual, 0)
		})

		Convey("Then minutes outside 0..120 fail hard", func() {
			res := v.Stat(stat("player-1", map[string]float64{"minutes": 187}))
			So(res.Status, ShouldEqual, validate.StatusFail)
			So(errors.Is(res.Err(), validate.ErrValidationFailed), ShouldBeTrue)
			So(res.Issues[0].Rule, ShouldEqual, "minutes_range")
		})

		Convey("Then an implausible rating only warns", func() {
			res := v.Stat(stat("player-1", map[string]float64{"minutes": 90, "rating": 11.2}))
			So(res.Status, ShouldEqual, validate.StatusWarn)
			So(res.Err(), ShouldBeNil)
			So(res.Issues[0].Rule, ShouldEqual, "rating_range")
		})

		Convey("Then metrics the record does not carry are not findings", func() {
			res := v.Stat(stat("player-1", map[string]float64{"passes": 40}))
			So(res.Status, ShouldEqual, validate.StatusPass)
		})
	})

	Convey("Given a custom rule set", t, func() {
		v := validate.New(validate.WithRules([]validate.Rule{
			{Name: "passes_range", Field: "passes", Min: 0, Max: 200, Hard: true},
		}))

		Convey("Then only the custom rules apply", func() {
			res := v.Stat(stat("player-1", map[string]float64{"minutes": 500, "passes": 250}))
			So(res.Status, ShouldEqual, validate.StatusFail)
			So(len(res.Issues), ShouldEqual, 1)
			So(res.Issues[0].Rule, ShouldEqual, "passes_range")
		})
	})
}

func TestVector(t *testing.T) {
	Convey("Given a validator", t, func() {
		v := validate.New()

		Convey("Then clean rates pass", func() {
			res := v.Vector(model.FeatureVector{
				Player: "player-1",
				Rates:  map[string]float64{"goals_per90": 1.5},
			})
			So(res.Status, ShouldEqual, validate.StatusPass)
		})

		Convey("Then a negative rate is a hard failure", func() {
			res := v.Vector(model.FeatureVector{
				Player: "player-1",
				Rates:  map[string]float64{"goals_per90": -0.5},
			})
			So(res.Status, ShouldEqual, validate.StatusFail)
			So(res.Issues[0].Field, ShouldEqual, "goals_per90")
		})
	})
}

func TestScores(t *testing.T) {
	Convey("Given an exact contribution run", t, func() {
		v := validate.New()
		scores := []model.ContributionScore{
			{Player: "a", Value: 3},
			{Player: "b", Value: 3},
			{Player: "c", Value: 3},
		}

		Convey("Then shares summing to the grand value pass", func() {
			res := v.Scores(scores, 9, true)
			So(res.Status, ShouldEqual, validate.StatusPass)
		})

		Convey("Then drift in exact mode fails hard", func() {
			res := v.Scores(scores, 10, true)
			So(res.Status, ShouldEqual, validate.StatusFail)
			So(res.Issues[0].Rule, ShouldEqual, "efficiency")
		})
	})

	Convey("Given a sampled contribution run", t, func() {
		v := validate.New()
		scores := []model.ContributionScore{
			{Player: "a", Value: 3.2, Variance: 0.04, Samples: 500},
			{Player: "b", Value: 2.9, Variance: 0.04, Samples: 500},
			{Player: "c", Value: 3.0, Variance: 0.04, Samples: 500},
		}

		Convey("Then drift inside the standard error band passes", func() {
			res := v.Scores(scores, 9, false)
			So(res.Status, ShouldEqual, validate.StatusPass)
		})

		Convey("Then drift beyond the band only warns", func() {
			res := v.Scores(scores, 15, false)
			So(res.Status, ShouldEqual, validate.StatusWarn)
			So(res.Err(), ShouldBeNil)
		})
	})
}

func TestScreenMetrics(t *testing.T) {
	Convey("Given a batch with one wild value", t, func() {
		v := validate.New(validate.WithSigma(2))
		batch := []model.PlayerMatchStat{
			stat("player-1", map[string]float64{"passes": 30}),
			stat("player-2", map[string]float64{"passes": 32}),
			stat("player-3", map[string]float64{"passes": 29}),
			stat("player-4", map[string]float64{"passes": 31}),
			stat("player-5", map[string]float64{"passes": 30}),
			stat("player-6", map[string]float64{"passes": 300}),
		}

		Convey("When the batch is screened", func() {
			issues := v.ScreenMetrics(batch)

			Convey("Then only the outlier is flagged, softly", func() {
				So(len(issues), ShouldEqual, 1)
				So(issues[0].Field, ShouldEqual, "passes")
				So(issues[0].Value, ShouldEqual, 300)
				So(issues[0].Hard, ShouldBeFalse)
			})
		})
	})

	Convey("Given batches the screen cannot judge", t, func() {
		v := validate.New()

		Convey("Then a tiny batch yields nothing", func() {
			issues := v.ScreenMetrics([]model.PlayerMatchStat{
				stat("player-1", map[string]float64{"passes": 30}),
				stat("player-2", map[string]float64{"passes": 500}),
			})
			So(len(issues), ShouldEqual, 0)
		})

		Convey("Then a zero-variance metric yields nothing", func() {
			issues := v.ScreenMetrics([]model.PlayerMatchStat{
				stat("player-1", map[string]float64{"passes": 30}),
				stat("player-2", map[string]float64{"passes": 30}),
				stat("player-3", map[string]float64{"passes": 30}),
				stat("player-4", map[string]float64{"passes": 30}),
			})
			So(len(issues), ShouldEqual, 0)
		})
	})
}
