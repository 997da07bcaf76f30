package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/larkgate/internal/app"
	"github.com/okian/larkgate/internal/config"
	"github.com/okian/larkgate/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		_ = os.Setenv("LARKGATE_SERVER__ADDR", ":9099")
		_ = os.Setenv("LARKGATE_QUEUE__CAPACITY", "16")
		_ = os.Setenv("LARKGATE_WORKER__COUNT", "2")
		defer func() {
			_ = os.Unsetenv("LARKGATE_SERVER__ADDR")
			_ = os.Unsetenv("LARKGATE_QUEUE__CAPACITY")
			_ = os.Unsetenv("LARKGATE_WORKER__COUNT")
		}()

		cfg, err := config.Load(context.Background())
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.Server.Addr, convey.ShouldEqual, ":9099")
		convey.So(cfg.Queue.Capacity, convey.ShouldEqual, 16)
		convey.So(cfg.Worker.Count, convey.ShouldEqual, 2)
	})
}

func TestRoutes(t *testing.T) {
	convey.Convey("Given a started service behind the mux", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := config.New(ctx)
		cfg.Worker.Count = 1
		cfg.Scheduler.Enabled = false
		svc, err := app.New(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(context.Background()) }()

		mux := newMux(ctx, svc)
		serve := func(method, path, body string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
			return rec
		}

		convey.Convey("Then the webhook answers the handshake", func() {
			rec := serve(http.MethodPost, "/feishu/webhook", `{"challenge":"c-1"}`)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"challenge":"c-1"`)
		})

		convey.Convey("Then docs, stats and scheduler routes are mounted", func() {
			convey.So(serve(http.MethodGet, "/openapi.yaml", "").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(serve(http.MethodGet, "/api-docs", "").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(serve(http.MethodGet, "/stats", "").Body.String(), convey.ShouldContainSubstring, "queueCapacity")
			convey.So(serve(http.MethodGet, "/scheduler/status", "").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(serve(http.MethodGet, "/health", "").Code, convey.ShouldEqual, http.StatusOK)
		})
	})
}

func TestRunShutsDown(t *testing.T) {
	convey.Convey("Given a cancelled root context", t, func() {
		_ = os.Setenv("LARKGATE_SERVER__ADDR", "127.0.0.1:0")
		defer func() { _ = os.Unsetenv("LARKGATE_SERVER__ADDR") }()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		convey.So(run(ctx), convey.ShouldBeNil)
	})

	convey.Convey("Given an invalid configuration", t, func() {
		_ = os.Setenv("LARKGATE_DEDUPE__BACKEND", "etcd")
		defer func() { _ = os.Unsetenv("LARKGATE_DEDUPE__BACKEND") }()

		convey.So(run(context.Background()), convey.ShouldNotBeNil)
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the metrics updater", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
	})
}
