package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	app "github.com/okian/catador/internal/app"
	"github.com/okian/catador/internal/config"
	"github.com/okian/catador/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("CATADOR_ADDR", ":8080")
			_ = os.Setenv("CATADOR_QUEUE_SIZE", "1000")
			_ = os.Setenv("CATADOR_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("CATADOR_ADDR")
				_ = os.Unsetenv("CATADOR_QUEUE_SIZE")
				_ = os.Unsetenv("CATADOR_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When testing invalid configuration", func() {
			_ = os.Setenv("CATADOR_ADDR", "")
			defer func() { _ = os.Unsetenv("CATADOR_ADDR") }()

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestOpenStore(t *testing.T) {
	convey.Convey("Given a store configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When the memory driver is selected", func() {
			store, err := openStore(ctx, cfg)

			convey.Convey("Then an in-memory store is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store, convey.ShouldNotBeNil)
				convey.So(store.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the sqlite driver is selected", func() {
			cfg.StoreDriver = config.DriverSQLite
			cfg.StoreDSN = filepath.Join(t.TempDir(), "catador.db")
			store, err := openStore(ctx, cfg)

			convey.Convey("Then the database is created and migrated", func() {
				convey.So(err, convey.ShouldBeNil)
				events, err := store.ListEvents(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(events, convey.ShouldBeEmpty)
				convey.So(store.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.StoreDriver = "mongo"
			_, err := openStore(ctx, cfg)

			convey.Convey("Then it fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestOpenBus(t *testing.T) {
	convey.Convey("Given no nats url", t, func() {
		bus, closeBus, err := openBus(context.Background(), config.New())

		convey.Convey("Then the local hub is used", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(bus, convey.ShouldNotBeNil)
			convey.So(closeBus, convey.ShouldNotPanic)
		})
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("Given a running service", t, func() {
		ctx := context.Background()
		cfg := config.New()
		svc := app.New(app.WithWorkerCount(2), app.WithQueueSize(16))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := newHTTPServer(cfg, svc)
		ts := httptest.NewServer(srv.Handler)
		defer ts.Close()

		convey.Convey("Then the server carries the configured timeouts", func() {
			convey.So(srv.Addr, convey.ShouldEqual, cfg.Addr)
			convey.So(srv.ReadTimeout, convey.ShouldEqual, cfg.ReadTimeout)
			convey.So(srv.WriteTimeout, convey.ShouldEqual, cfg.WriteTimeout)
		})

		convey.Convey("Then health reports ok", func() {
			resp, err := http.Get(ts.URL + "/healthz")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then the timer stream of a missing event is not found", func() {
			resp, err := http.Get(ts.URL + "/events/missing/timer/stream")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusNotFound)
		})

		convey.Convey("Then stats count open timer streams", func() {
			resp, err := http.Get(ts.URL + "/stats")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			var stats map[string]any
			convey.So(json.NewDecoder(resp.Body).Decode(&stats), convey.ShouldBeNil)
			convey.So(stats["timerStreams"], convey.ShouldEqual, 0.0)
		})

		convey.Convey("Then the API docs are served", func() {
			resp, err := http.Get(ts.URL + "/openapi.yaml")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			convey.So(resp.Header.Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
		})

		convey.Convey("Then the metrics updater stops with its context", func() {
			uctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startServiceMetricsUpdater(uctx, svc) }, convey.ShouldNotPanic)
		})
	})
}
