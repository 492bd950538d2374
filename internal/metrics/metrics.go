// Package metrics exposes Prometheus collectors for the scheduling engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	engineTicksTotal        prometheus.Counter
	engineBufferDepth       *prometheus.GaugeVec
	engineInflightOps       *prometheus.GaugeVec
	engineDispatchedTotal   *prometheus.CounterVec
	engineHarvestedTotal    prometheus.Counter
	engineFlushedTotal      *prometheus.CounterVec
	engineMintedTotal       prometheus.Counter
	engineProfileGateJoins  prometheus.Counter
	engineDrainDurationSecs prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
// The observation helpers no-op until Init has run.
func Init() {
	once.Do(func() {
		engineTicksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlkit_engine_ticks_total",
				Help: "Total number of scheduling loop ticks executed.",
			},
		)

		engineBufferDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crawlkit_engine_buffer_depth",
				Help: "Current depth of each work buffer and sink.",
			},
			[]string{"buffer"},
		)

		engineInflightOps = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crawlkit_engine_inflight_operations",
				Help: "Registered in-flight background operations by kind.",
			},
			[]string{"kind"},
		)

		engineDispatchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlkit_engine_dispatched_total",
				Help: "Total items dispatched to background operations, by kind.",
			},
			[]string{"kind"},
		)

		engineHarvestedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlkit_engine_responses_harvested_total",
				Help: "Total responses handed to extraction.",
			},
		)

		engineFlushedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlkit_engine_flushed_total",
				Help: "Total items flushed through the output pipeline, by sink.",
			},
			[]string{"sink"},
		)

		engineMintedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlkit_engine_requests_minted_total",
				Help: "Total requests minted from tasks.",
			},
		)

		engineProfileGateJoins = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlkit_engine_profile_gate_joins_total",
				Help: "Times the loop blocked on an in-flight profile acquisition.",
			},
		)

		engineDrainDurationSecs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawlkit_engine_drain_duration_seconds",
				Help:    "Wall-clock duration of the shutdown drain.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTick increments the tick counter.
func ObserveTick() {
	if engineTicksTotal == nil {
		return
	}
	engineTicksTotal.Inc()
}

// SetBufferDepth records the current depth of a buffer or sink.
func SetBufferDepth(buffer string, depth int) {
	if engineBufferDepth == nil {
		return
	}
	engineBufferDepth.WithLabelValues(buffer).Set(float64(depth))
}

// SetInflight records the number of registered operations of a kind.
func SetInflight(kind string, n int) {
	if engineInflightOps == nil {
		return
	}
	engineInflightOps.WithLabelValues(kind).Set(float64(n))
}

// ObserveDispatch counts items handed to a background operation.
func ObserveDispatch(kind string, n int) {
	if engineDispatchedTotal == nil {
		return
	}
	engineDispatchedTotal.WithLabelValues(kind).Add(float64(n))
}

// ObserveHarvest counts responses handed to extraction.
func ObserveHarvest(n int) {
	if engineHarvestedTotal == nil {
		return
	}
	engineHarvestedTotal.Add(float64(n))
}

// ObserveFlush counts items flushed through the pipeline.
func ObserveFlush(sink string, n int) {
	if engineFlushedTotal == nil {
		return
	}
	engineFlushedTotal.WithLabelValues(sink).Add(float64(n))
}

// ObserveMint counts requests minted from tasks.
func ObserveMint(n int) {
	if engineMintedTotal == nil {
		return
	}
	engineMintedTotal.Add(float64(n))
}

// ObserveProfileGateJoin counts blocking joins at the profile gate.
func ObserveProfileGateJoin() {
	if engineProfileGateJoins == nil {
		return
	}
	engineProfileGateJoins.Inc()
}

// ObserveDrainDuration records how long the drain took.
func ObserveDrainDuration(seconds float64) {
	if engineDrainDurationSecs == nil {
		return
	}
	engineDrainDurationSecs.Observe(seconds)
}
