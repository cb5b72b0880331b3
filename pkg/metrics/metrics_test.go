package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors register under the configured names", func() {
				So(manager, ShouldNotBeNil)
				manager.nameReservations.WithLabelValues("reserved").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_unit_name_reservations_total"], ShouldBeTrue)
			})
		})

		Convey("When empty options are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "catador")
				So(manager.subsystem, ShouldEqual, "game")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})

		Convey("When buckets are unordered or invalid", func() {
			registry := prometheus.NewRegistry()
			bad := NewManager(WithHistogramBuckets([]float64{-1, 0}), WithPrometheusRegistry(registry))
			manager := NewManager(
				WithNamespace("  cata "),
				WithHistogramBuckets([]float64{2.5, 0, 0.1, 2.5, -3, 1}),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then they are cleaned before registration", func() {
				So(manager.namespace, ShouldEqual, "cata")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 1, 2.5})
				So(bad.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording game metrics", func() {
			before := testutil.ToFloat64(globalManager.nameReservations.WithLabelValues("taken"))
			RecordNameReservation("taken")
			RecordSessionTransition("selecting_name", "assigning_and_rating")
			RecordForcedFinalization("finalized")
			RecordTimerCommand("start", "ok")
			RecordTimerExpiry()
			RecordScoringRun("ready")
			RecordScoringLatency(1.5)
			RecordBroadcast("local")

			Convey("Then counters move", func() {
				So(testutil.ToFloat64(globalManager.nameReservations.WithLabelValues("taken")), ShouldEqual, before+1)
			})
		})

		Convey("When moving gauges", func() {
			AddTimerSubscribers(2)
			AddTimerSubscribers(-1)
			UpdateQueueCapacity(64)
			UpdateQueueSize(3)
			UpdateWorkerActiveCount(4)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 64)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.workerActive), ShouldEqual, 4)
			})
		})

		Convey("When recording pipeline and transport metrics", func() {
			So(func() {
				RecordAutosave("saved")
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError("full")
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
				RecordRepositoryUpdateLatency(1)
				RecordRepositoryQueryLatency(1)
				RecordHTTPRequest("/events", "GET", "200")
				RecordHTTPRequestDuration("/events", "GET", "200", 3)
				RecordErrorByComponent("api", "internal")
			}, ShouldNotPanic)
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}

func TestInit(t *testing.T) {
	Convey("Given the global manager", t, func() {
		previous := GetRegistry()
		defer Init()

		Convey("When it is rebuilt with a namespace and subsystem", func() {
			Init(WithNamespace("cata"), WithSubsystem("night"))
			RecordTimerExpiry()

			Convey("Then recorders write to the new registry under the new names", func() {
				So(GetRegistry(), ShouldNotEqual, previous)
				So(testutil.ToFloat64(globalManager.timerExpiries), ShouldEqual, 1)
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["cata_night_timer_expiries_total"], ShouldBeTrue)
				So(names["catador_game_timer_expiries_total"], ShouldBeFalse)
			})
		})
	})
}
