package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/harpastum/internal/adapters/mq/queue"
	"github.com/okian/harpastum/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func record(provider, home string) queue.Record {
	return queue.Record{
		Provider: provider,
		Kind:     model.KindMatch,
		Match: &model.MatchData{
			Date: time.Date(2024, 8, 10, 15, 0, 0, 0, time.UTC),
			Home: home,
			Away: "team-x",
		},
	}
}

func TestQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a bounded queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))

		Convey("When records are enqueued within capacity", func() {
			So(q.Enqueue(ctx, record("apifooty", "team-a")), ShouldBeTrue)
			So(q.Enqueue(ctx, record("apifooty", "team-b")), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 2)

			Convey("Then the next record is shed, not blocked on", func() {
				So(q.Enqueue(ctx, record("apifooty", "team-c")), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 2)
			})
		})

		Convey("When the queue is closed with records still inside", func() {
			So(q.Enqueue(ctx, record("apifooty", "team-a")), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)

			Convey("Then enqueuing is refused", func() {
				So(q.Enqueue(ctx, record("apifooty", "team-b")), ShouldBeFalse)
			})

			Convey("Then consumers drain the remainder before the channel closes", func() {
				ch := q.Dequeue(ctx)
				got, ok := <-ch
				So(ok, ShouldBeTrue)
				So(got.Match.Home, ShouldEqual, "team-a")
				_, ok = <-ch
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When closed twice", func() {
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
		})
	})

	Convey("Given a consumer with a cancelled context", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		Convey("Then its dequeue channel closes without delivering", func() {
			ch := q.Dequeue(cctx)
			select {
			case _, ok := <-ch:
				So(ok, ShouldBeFalse)
			case <-time.After(time.Second):
				So("timeout", ShouldBeEmpty)
			}
		})
	})
}
