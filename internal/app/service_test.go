package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/harpastum/internal/adapters/cache"
	"github.com/okian/harpastum/internal/adapters/provider"
	service "github.com/okian/harpastum/internal/app"
	"github.com/okian/harpastum/internal/domain/model"
	"github.com/okian/harpastum/internal/domain/shapley"
	. "github.com/smartystreets/goconvey/convey"
)

// pipeline wires the synthetic providers through fetcher and cache the
// same way the binary does.
func pipeline(days int) (*provider.Feed, *provider.Fetcher) {
	syn := provider.NewSynthetic(1, 0)
	fetcher := provider.NewFetcher(syn)
	store := cache.New()
	fetch := func(ctx context.Context, d provider.Descriptor) ([]byte, error) {
		return store.GetOrFetch(ctx, d, fetcher.Fetch)
	}
	providers := []string{provider.ProviderAPIFooty, provider.ProviderSoccerData}
	return provider.NewFeed(fetch, providers, days), fetcher
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	Convey("Given two synthetic providers over two match days", t, func() {
		feed, fetcher := pipeline(2)
		svc := service.New(
			service.WithWorkerCount(4),
			service.WithQueueSize(1024),
			service.WithEstimator(shapley.New(shapley.WithSeed(1))),
			service.WithRequestCounter(fetcher.Counter()),
		)

		Convey("When a full batch runs", func() {
			report, err := svc.Run(ctx, feed)
			So(err, ShouldBeNil)

			Convey("Then every fetched record was processed", func() {
				// 2 providers x 2 days x (2 matches + 20 stat lines).
				So(report.Processed, ShouldEqual, 88)
				So(report.Rejected, ShouldEqual, 0)
			})

			Convey("Then cross-provider records merged into one per entity", func() {
				// 4 distinct matches and 40 distinct player lines.
				So(report.Merged, ShouldEqual, 44)
				So(svc.Matches().Count(ctx), ShouldEqual, 4)
				So(svc.Stats().Count(ctx), ShouldEqual, 40)
			})

			Convey("Then each match is final with both providers in provenance", func() {
				for _, m := range svc.Matches().All(ctx) {
					So(m.Final, ShouldBeTrue)
					So(m.Provenance.Has(provider.ProviderAPIFooty), ShouldBeTrue)
					So(m.Provenance.Has(provider.ProviderSoccerData), ShouldBeTrue)
					So(len(m.Warnings), ShouldEqual, 0)
				}
			})

			Convey("Then every squad received a contribution run", func() {
				// 4 teams x 5 players.
				So(report.ScoresEmitted, ShouldEqual, 20)

				m := svc.Matches().All(ctx)[0]
				scores, err := svc.Scores().Latest(ctx, m.Home+"|2024-25")
				So(err, ShouldBeNil)
				So(len(scores), ShouldEqual, 5)

				Convey("And the shares carry run metadata", func() {
					So(scores[0].RunID, ShouldNotBeEmpty)
					So(scores[0].Samples, ShouldBeGreaterThan, 0)
					So(scores[0].ComputedAt.IsZero(), ShouldBeFalse)
				})
			})

			Convey("Then the cache held the request spend to one fetch per endpoint", func() {
				// 2 providers x 2 days x 2 endpoints.
				So(report.Requests, ShouldEqual, 8)
			})

			Convey("And the run duration was measured", func() {
				So(report.Duration, ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestRunSupersedesScores(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service that already completed a run", t, func() {
		feed, _ := pipeline(1)
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithEstimator(shapley.New(shapley.WithSeed(2))),
		)
		first, err := svc.Run(ctx, feed)
		So(err, ShouldBeNil)
		So(first.ScoresEmitted, ShouldBeGreaterThan, 0)

		Convey("When the same batch runs again", func() {
			feed2, _ := pipeline(1)
			second, err := svc.Run(ctx, feed2)
			So(err, ShouldBeNil)

			Convey("Then merged state is unchanged by re-integration", func() {
				So(second.Merged, ShouldEqual, first.Merged)
				So(svc.Matches().Count(ctx), ShouldEqual, 2)
			})

			Convey("Then the new scores supersede rather than mutate", func() {
				m := svc.Matches().All(ctx)[0]
				contextID := m.Home + "|2024-25"
				So(svc.Scores().Runs(ctx, contextID), ShouldEqual, 2)
				latest, err := svc.Scores().Latest(ctx, contextID)
				So(err, ShouldBeNil)
				So(len(latest), ShouldEqual, 5)
			})
		})
	})
}

func TestRunIsolatesBadRecords(t *testing.T) {
	ctx := context.Background()

	Convey("Given a source with a blank-name record among good ones", t, func() {
		good := model.ProviderRecord{
			Provider: "apifooty",
			Kind:     model.KindMatch,
			Match: &model.MatchData{
				Season:   "2024-25",
				Date:     time.Date(2024, 8, 10, 15, 0, 0, 0, time.UTC),
				HomeName: "Norte United",
				AwayName: "Sur City",
				Numbers:  map[string]float64{"home_score": 1, "away_score": 0},
			},
		}
		bad := model.ProviderRecord{
			Provider: "apifooty",
			Kind:     model.KindMatch,
			Match: &model.MatchData{
				Date:     time.Date(2024, 8, 10, 15, 0, 0, 0, time.UTC),
				HomeName: "",
				AwayName: "Sur City",
				Numbers:  map[string]float64{"home_score": 2},
			},
		}
		src := sliceSource{good, bad}
		svc := service.New(service.WithWorkerCount(1))

		Convey("When the batch runs", func() {
			report, err := svc.Run(ctx, src)
			So(err, ShouldBeNil)

			Convey("Then the bad record is rejected and the rest survive", func() {
				So(report.Processed, ShouldEqual, 2)
				So(report.Rejected, ShouldEqual, 1)
				So(svc.Matches().Count(ctx), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a source with an implausible stat line", t, func() {
		match := model.ProviderRecord{
			Provider: "apifooty",
			Kind:     model.KindMatch,
			Match: &model.MatchData{
				Season:   "2024-25",
				Date:     time.Date(2024, 8, 10, 15, 0, 0, 0, time.UTC),
				HomeName: "Norte United",
				AwayName: "Sur City",
				Numbers:  map[string]float64{"home_score": 1, "away_score": 0},
			},
		}
		stat := model.ProviderRecord{
			Provider: "apifooty",
			Kind:     model.KindStat,
			Stat: &model.StatLine{
				Date:       time.Date(2024, 8, 10, 15, 0, 0, 0, time.UTC),
				HomeName:   "Norte United",
				AwayName:   "Sur City",
				TeamName:   "Norte United",
				PlayerName: "Juan Pérez",
				Position:   model.PositionForward,
				Metrics:    map[string]float64{"minutes": 400, "goals": 1},
			},
		}
		src := sliceSource{match, stat}
		svc := service.New(service.WithWorkerCount(1))

		Convey("When the batch runs", func() {
			report, err := svc.Run(ctx, src)
			So(err, ShouldBeNil)

			Convey("Then the hard validation failure blocks persistence", func() {
				So(report.Rejected, ShouldEqual, 1)
				So(svc.Stats().Count(ctx), ShouldEqual, 0)
				So(svc.Matches().Count(ctx), ShouldEqual, 1)
			})
		})
	})
}

func TestRunKeepsSoftFindingsOnStoredStats(t *testing.T) {
	ctx := context.Background()

	Convey("Given a stat line that trips a soft rule but no hard rule", t, func() {
		match := model.ProviderRecord{
			Provider: "apifooty",
			Kind:     model.KindMatch,
			Match: &model.MatchData{
				Season:   "2024-25",
				Date:     time.Date(2024, 8, 10, 15, 0, 0, 0, time.UTC),
				HomeName: "Norte United",
				AwayName: "Sur City",
				Numbers:  map[string]float64{"home_score": 1, "away_score": 0},
			},
		}
		stat := model.ProviderRecord{
			Provider: "apifooty",
			Kind:     model.KindStat,
			Stat: &model.StatLine{
				Date:       time.Date(2024, 8, 10, 15, 0, 0, 0, time.UTC),
				HomeName:   "Norte United",
				AwayName:   "Sur City",
				TeamName:   "Norte United",
				PlayerName: "Juan Pérez",
				Position:   model.PositionForward,
				Metrics:    map[string]float64{"minutes": 90, "goals": 1, "rating": 12},
			},
		}
		src := sliceSource{match, stat}
		svc := service.New(service.WithWorkerCount(1))

		Convey("When the batch runs", func() {
			report, err := svc.Run(ctx, src)
			So(err, ShouldBeNil)

			Convey("Then the line is stored with the finding attached", func() {
				So(report.Rejected, ShouldEqual, 0)
				So(svc.Stats().Count(ctx), ShouldEqual, 1)

				matches := svc.Matches().All(ctx)
				So(matches, ShouldHaveLength, 1)
				lines := svc.Stats().ByMatch(ctx, matches[0].Key)
				So(lines, ShouldHaveLength, 1)
				So(lines[0].Warnings, ShouldHaveLength, 1)
				So(lines[0].Warnings[0].Kind, ShouldEqual, "rating_range")
				So(lines[0].Warnings[0].Field, ShouldEqual, "rating")
				So(report.Warnings, ShouldBeGreaterThanOrEqualTo, 1)
			})

			Convey("And replaying the same source does not duplicate it", func() {
				_, err := svc.Run(ctx, src)
				So(err, ShouldBeNil)

				matches := svc.Matches().All(ctx)
				lines := svc.Stats().ByMatch(ctx, matches[0].Key)
				So(lines, ShouldHaveLength, 1)
				So(lines[0].Warnings, ShouldHaveLength, 1)
			})
		})
	})
}

// sliceSource replays a fixed set of records.
type sliceSource []model.ProviderRecord

func (s sliceSource) Records(ctx context.Context) <-chan model.ProviderRecord {
	out := make(chan model.ProviderRecord)
	go func() {
		defer close(out)
		for _, r := range s {
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
