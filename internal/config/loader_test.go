package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/globalboard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New(ctx))
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("GSB_ADDR", ":8080")
			_ = os.Setenv("GSB_WORKER_COUNT", "4")
			_ = os.Setenv("GSB_DATABASE_PATH", ":memory:")
			_ = os.Setenv("GSB_BYPASS_UPDATE_RESTRICTIONS", "true")
			_ = os.Setenv("GSB_DIMINISHING_DECAY", "0.9")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.DatabasePath, convey.ShouldEqual, ":memory:")
				convey.So(cfg.BypassUpdateRestrictions, convey.ShouldBeTrue)
				convey.So(cfg.DiminishingDecay, convey.ShouldEqual, 0.9)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
worker_count: 8
page_size: 100
upstream_base_url: "http://localhost:1234/api/v1"
metrics_namespace: "gsb"
store_latency_buckets_ms: [1, 10, 100]
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("GSB_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 8)
				convey.So(cfg.PageSize, convey.ShouldEqual, 100)
				convey.So(cfg.UpstreamBaseURL, convey.ShouldEqual, "http://localhost:1234/api/v1")
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "gsb")
				convey.So(cfg.StoreLatencyBucketsMS, convey.ShouldResemble, []float64{1, 10, 100})
			})
		})

		convey.Convey("When env and YAML both set a key", func() {
			tmpFile := createTempConfigFile("worker_count: 8\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GSB_CONFIG", tmpFile)
			_ = os.Setenv("GSB_WORKER_COUNT", "2")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("GSB_CONFIG", "/nonexistent/globalboard.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a value fails validation", func() {
			_ = os.Setenv("GSB_QUEUE_SIZE", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then an invalid config error is returned", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"GSB_CONFIG", "GSB_ADDR", "GSB_WORKER_COUNT", "GSB_QUEUE_SIZE",
		"GSB_DATABASE_PATH", "GSB_BYPASS_UPDATE_RESTRICTIONS", "GSB_DIMINISHING_DECAY",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "globalboard-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	return f.Name()
}
