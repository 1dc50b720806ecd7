package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var RowsResolvedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "companyid",
		Subsystem: "resolver",
		Name:      "rows_resolved_total",
		Help:      "Total rows resolved, by resolution layer.",
	},
	[]string{"layer"},
)

var TempIDsGeneratedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "companyid",
		Subsystem: "resolver",
		Name:      "temp_ids_generated_total",
		Help:      "Total temporary ids generated for unknown companies.",
	},
)

var EqcCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "companyid",
		Subsystem: "eqc",
		Name:      "calls_total",
		Help:      "Total EQC lookup calls, by outcome.",
	},
	[]string{"outcome"},
)

var QueueRequestsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "companyid",
		Subsystem: "queue",
		Name:      "requests_processed_total",
		Help:      "Total lookup queue requests processed, by outcome.",
	},
	[]string{"outcome"},
)

var QueuePendingDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "companyid",
		Subsystem: "queue",
		Name:      "pending_depth",
		Help:      "Pending lookup requests whose backoff window has elapsed.",
	},
)

var LearnedMappingsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "companyid",
		Subsystem: "learning",
		Name:      "mappings_total",
		Help:      "Total cache mappings written by domain learning, by lookup type.",
	},
	[]string{"lookup_type"},
)

// All returns the service-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		RowsResolvedTotal,
		TempIDsGeneratedTotal,
		EqcCallsTotal,
		QueueRequestsProcessedTotal,
		QueuePendingDepth,
		LearnedMappingsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with the Go and process
// collectors plus any additional service-specific collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
