// Package metrics exposes this module's operational counters and
// gauges via github.com/prometheus/client_golang, generalizing the
// teacher's atomic-counter Metrics type (ehrlich-b-go-ublk's
// metrics.go) from per-device I/O stats to jiukun/chain/dispatcher
// operational stats (SPEC_FULL.md's ambient stack).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector this daemon registers. It is safe
// for concurrent use, same as the prometheus collectors it wraps.
type Metrics struct {
	Registry *prometheus.Registry

	JiukunPagesAllocated prometheus.Gauge
	JiukunZoneCount       prometheus.Gauge
	JiukunAllocFailures   prometheus.Counter
	JiukunCacheObjectsLive *prometheus.GaugeVec

	ChainObjectCount      prometheus.Gauge
	ChainSelectIterations prometheus.Counter
	ChainSelectErrors     prometheus.Counter

	DispatcherFramesRouted   prometheus.Counter
	DispatcherFramesDropped  prometheus.Counter
	DispatcherQueueDepth     *prometheus.GaugeVec
	DispatcherQueueOverflows *prometheus.CounterVec
}

// New creates and registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		JiukunPagesAllocated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jiutai", Subsystem: "jiukun", Name: "pages_allocated",
			Help: "Pages currently allocated out of the buddy allocator.",
		}),
		JiukunZoneCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jiutai", Subsystem: "jiukun", Name: "zone_count",
			Help: "Number of memory zones currently owned by the allocator.",
		}),
		JiukunAllocFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jiutai", Subsystem: "jiukun", Name: "alloc_failures_total",
			Help: "Allocation requests that failed with out-of-memory.",
		}),
		JiukunCacheObjectsLive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jiutai", Subsystem: "jiukun", Name: "cache_objects_live",
			Help: "Live objects per named or bucket cache.",
		}, []string{"cache"}),

		ChainObjectCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jiutai", Subsystem: "chain", Name: "object_count",
			Help: "Chain objects currently registered with the reactor.",
		}),
		ChainSelectIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jiutai", Subsystem: "chain", Name: "select_iterations_total",
			Help: "Reactor loop iterations completed.",
		}),
		ChainSelectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jiutai", Subsystem: "chain", Name: "select_errors_total",
			Help: "select(2) calls that returned an error other than EINTR.",
		}),

		DispatcherFramesRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jiutai", Subsystem: "dispatcher", Name: "frames_routed_total",
			Help: "Frames successfully routed to at least one subscriber.",
		}),
		DispatcherFramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jiutai", Subsystem: "dispatcher", Name: "frames_dropped_total",
			Help: "Frames dropped because their source was not the message id's registered publisher.",
		}),
		DispatcherQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jiutai", Subsystem: "dispatcher", Name: "queue_depth",
			Help: "Current outbound queue depth per subscriber service.",
		}, []string{"service"}),
		DispatcherQueueOverflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jiutai", Subsystem: "dispatcher", Name: "queue_overflows_total",
			Help: "Frames evicted or dropped by a subscriber's bounded outbound queue.",
		}, []string{"service"}),
	}

	reg.MustRegister(
		m.JiukunPagesAllocated, m.JiukunZoneCount, m.JiukunAllocFailures, m.JiukunCacheObjectsLive,
		m.ChainObjectCount, m.ChainSelectIterations, m.ChainSelectErrors,
		m.DispatcherFramesRouted, m.DispatcherFramesDropped, m.DispatcherQueueDepth, m.DispatcherQueueOverflows,
	)

	return m
}
