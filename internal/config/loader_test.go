package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/harpastum/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaults(t *testing.T) {
	Convey("Given no environment overrides", t, func() {
		cfg, err := config.Load(context.Background())
		So(err, ShouldBeNil)

		Convey("Then the defaults apply", func() {
			So(cfg.MetricsAddr, ShouldEqual, ":9090")
			So(cfg.QueueSize, ShouldEqual, 100_000)
			So(cfg.SimilarityThreshold, ShouldAlmostEqual, 0.82)
			So(cfg.ExactThreshold, ShouldEqual, 12)
			So(cfg.CacheTTL, ShouldEqual, 15*time.Minute)
		})
	})
}

func TestEnvOverride(t *testing.T) {
	Convey("Given environment overrides", t, func() {
		t.Setenv("HARPASTUM_QUEUE_SIZE", "512")
		t.Setenv("HARPASTUM_LOG_LEVEL", "debug")
		t.Setenv("HARPASTUM_SAMPLE_BUDGET", "5000")

		cfg, err := config.Load(context.Background())
		So(err, ShouldBeNil)

		Convey("Then env values win over defaults", func() {
			So(cfg.QueueSize, ShouldEqual, 512)
			So(cfg.LogLevel, ShouldEqual, "debug")
			So(cfg.SampleBudget, ShouldEqual, 5000)

			Convey("And untouched fields keep their defaults", func() {
				So(cfg.WorkerCount, ShouldBeGreaterThan, 0)
				So(cfg.MetricsAddr, ShouldEqual, ":9090")
			})
		})
	})
}

func TestFileLayer(t *testing.T) {
	Convey("Given a YAML config file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "harpastum.yaml")
		body := []byte("metrics_addr: \":8088\"\nworker_count: 3\nmerge_tolerance: 1.5\n")
		So(os.WriteFile(path, body, 0o600), ShouldBeNil)
		t.Setenv("HARPASTUM_CONFIG", path)

		Convey("When loaded without env overrides", func() {
			cfg, err := config.Load(context.Background())
			So(err, ShouldBeNil)
			So(cfg.MetricsAddr, ShouldEqual, ":8088")
			So(cfg.WorkerCount, ShouldEqual, 3)
			So(cfg.MergeTolerance, ShouldAlmostEqual, 1.5)
		})

		Convey("When env overrides the file", func() {
			t.Setenv("HARPASTUM_METRICS_ADDR", ":7070")
			cfg, err := config.Load(context.Background())
			So(err, ShouldBeNil)
			So(cfg.MetricsAddr, ShouldEqual, ":7070")
			So(cfg.WorkerCount, ShouldEqual, 3)
		})
	})
}

func TestValidation(t *testing.T) {
	Convey("Given invalid overrides", t, func() {
		Convey("Then a zero fetch attempt bound is rejected", func() {
			t.Setenv("HARPASTUM_FETCH_MAX_ATTEMPTS", "0")
			_, err := config.Load(context.Background())
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Then a drained queue size is rejected", func() {
			t.Setenv("HARPASTUM_QUEUE_SIZE", "0")
			_, err := config.Load(context.Background())
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Then an out-of-range similarity threshold is rejected", func() {
			t.Setenv("HARPASTUM_SIMILARITY_THRESHOLD", "1.4")
			_, err := config.Load(context.Background())
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Then an oversized exact threshold is rejected", func() {
			t.Setenv("HARPASTUM_EXACT_THRESHOLD", "20")
			_, err := config.Load(context.Background())
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})

	Convey("Given an unreadable config file", t, func() {
		t.Setenv("HARPASTUM_CONFIG", "/nonexistent/harpastum.yaml")
		_, err := config.Load(context.Background())
		So(errors.Is(err, config.ErrLoadConfig), ShouldBeTrue)
	})
}
