package debugger

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Build outcomes
const (
	outcomeSymbols = "symbols"
	outcomeAbsent  = "absent"
	outcomeFailed  = "failed"
)

type metrics struct {
	builds        *prometheus.CounterVec
	buildDuration prometheus.Histogram
	unresolved    prometheus.Counter
	pageHits      prometheus.Counter
	pageMisses    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cv50",
			Subsystem: "debugger",
			Name:      "database_builds_total",
			Help:      "Number of debug info database builds by outcome.",
		}, []string{"outcome"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cv50",
			Subsystem: "debugger",
			Name:      "database_build_duration_seconds",
			Help:      "Time spent building a module's debug info database.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		unresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cv50",
			Subsystem: "debugger",
			Name:      "unresolved_references_total",
			Help:      "Number of debug info references that could not be resolved.",
		}),
		pageHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cv50",
			Subsystem: "debugger",
			Name:      "page_cache_hits_total",
			Help:      "Number of target memory page reads served from the cache.",
		}),
		pageMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cv50",
			Subsystem: "debugger",
			Name:      "page_cache_misses_total",
			Help:      "Number of target memory page reads forwarded to the native bridge.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.builds,
			m.buildDuration,
			m.unresolved,
			m.pageHits,
			m.pageMisses,
		)
	}
	return m
}
