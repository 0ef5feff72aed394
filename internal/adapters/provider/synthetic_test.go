package provider_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/okian/harpastum/internal/adapters/provider"
	"github.com/okian/harpastum/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSyntheticDeterminism(t *testing.T) {
	ctx := context.Background()

	Convey("Given a synthetic backend", t, func() {
		s := provider.NewSynthetic(42, 0)
		desc := provider.Descriptor{Provider: provider.ProviderAPIFooty, Endpoint: "matches", Params: map[string]string{"day": "1"}}

		Convey("When the same descriptor is served twice", func() {
			a, err1 := s.Do(ctx, desc)
			b, err2 := s.Do(ctx, desc)

			Convey("Then payloads are identical", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(string(a), ShouldEqual, string(b))
			})
		})

		Convey("When both providers serve the same day", func() {
			af, err1 := s.Do(ctx, provider.Descriptor{Provider: provider.ProviderAPIFooty, Endpoint: "matches", Params: map[string]string{"day": "2"}})
			sd, err2 := s.Do(ctx, provider.Descriptor{Provider: provider.ProviderSoccerData, Endpoint: "matches", Params: map[string]string{"day": "2"}})
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)

			var a, b []struct {
				Numbers map[string]float64 `json:"numbers"`
			}
			So(json.Unmarshal(af, &a), ShouldBeNil)
			So(json.Unmarshal(sd, &b), ShouldBeNil)

			Convey("Then they agree on the scores", func() {
				So(len(a), ShouldEqual, len(b))
				for i := range a {
					So(a[i].Numbers["home_score"], ShouldEqual, b[i].Numbers["home_score"])
					So(a[i].Numbers["away_score"], ShouldEqual, b[i].Numbers["away_score"])
				}
			})

			Convey("And only apifooty reports attendance", func() {
				_, ok := a[0].Numbers["attendance"]
				So(ok, ShouldBeTrue)
				_, ok = b[0].Numbers["attendance"]
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When asked for an unknown endpoint", func() {
			_, err := s.Do(ctx, provider.Descriptor{Provider: provider.ProviderAPIFooty, Endpoint: "standings", Params: map[string]string{"day": "1"}})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestFeedDecodesRecords(t *testing.T) {
	ctx := context.Background()

	Convey("Given a feed over the synthetic backend", t, func() {
		s := provider.NewSynthetic(7, 0)
		feed := provider.NewFeed(s.Do, []string{provider.ProviderAPIFooty, provider.ProviderSoccerData}, 2)

		Convey("When streaming", func() {
			var matches, stats int
			var sawAccent bool
			for rec := range feed.Records(ctx) {
				switch rec.Kind {
				case model.KindMatch:
					matches++
					So(rec.Match, ShouldNotBeNil)
				case model.KindStat:
					stats++
					So(rec.Stat, ShouldNotBeNil)
					if rec.Stat.PlayerName == "José Martínez" {
						sawAccent = true
					}
				}
			}

			Convey("Then both record kinds flow for both providers", func() {
				// 2 providers * 2 days * 2 fixtures.
				So(matches, ShouldEqual, 8)
				// 2 providers * 2 days * 2 fixtures * 10 players.
				So(stats, ShouldEqual, 80)
			})

			Convey("And accented provider spellings survive decoding", func() {
				So(sawAccent, ShouldBeTrue)
			})
		})
	})

	Convey("Given a feed whose fetch always fails", t, func() {
		feed := provider.NewFeed(
			func(context.Context, provider.Descriptor) ([]byte, error) {
				return nil, provider.ErrFetchFailed
			},
			[]string{provider.ProviderAPIFooty}, 3,
		)

		Convey("Then the stream completes empty instead of aborting", func() {
			var n int
			for range feed.Records(ctx) {
				n++
			}
			So(n, ShouldEqual, 0)
		})
	})
}
