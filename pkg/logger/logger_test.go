package logger_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/okian/harpastum/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given an initialized logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		err := logger.Init(logger.WithOutput(&buf))
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When logging at info level", func() {
			logger.Get().Info(ctx, "run started", logger.String("run_id", "r-1"), logger.Int("records", 42))

			Convey("Then the message and fields appear in the output", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "run started")
				So(out, ShouldContainSubstring, "run_id=r-1")
				So(out, ShouldContainSubstring, "records=42")
			})
		})

		Convey("When debug is below the configured level", func() {
			logger.Get().Debug(ctx, "hidden detail")

			Convey("Then it is suppressed", func() {
				So(buf.String(), ShouldNotContainSubstring, "hidden detail")
			})
		})

		Convey("When the level is lowered to debug", func() {
			So(logger.SetLevelString("debug"), ShouldBeNil)
			logger.Get().Debug(ctx, "now visible")

			Convey("Then debug messages pass through", func() {
				So(buf.String(), ShouldContainSubstring, "now visible")
			})
		})

		Convey("When an invalid level is requested", func() {
			So(logger.SetLevelString("verbose"), ShouldNotBeNil)
		})

		Convey("When using a named logger", func() {
			logger.Named("resolver").Warn(ctx, "ambiguous name", logger.String("name", "united"))

			Convey("Then the group prefixes its fields", func() {
				So(buf.String(), ShouldContainSubstring, "resolver.name=united")
			})
		})
	})
}
