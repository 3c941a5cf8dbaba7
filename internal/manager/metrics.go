package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	vramTotalMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vramd",
			Subsystem: "device",
			Name:      "vram_total_mb",
			Help:      "Total VRAM per device in MB",
		},
		[]string{"device"},
	)

	vramUsedMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vramd",
			Subsystem: "device",
			Name:      "vram_used_mb",
			Help:      "Used VRAM per device in MB",
		},
		[]string{"device"},
	)

	vramFreeMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vramd",
			Subsystem: "device",
			Name:      "vram_free_mb",
			Help:      "Free VRAM per device in MB",
		},
		[]string{"device"},
	)

	pressureGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vramd",
			Subsystem: "device",
			Name:      "pressure_state",
			Help:      "Pressure state per device (0=normal, 1=warning, 2=critical)",
		},
		[]string{"device"},
	)

	fragmentationGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vramd",
			Subsystem: "allocator",
			Name:      "fragmentation_ratio",
			Help:      "Local allocator fragmentation ratio",
		},
	)

	evictionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vramd",
			Subsystem: "manager",
			Name:      "evictions_total",
			Help:      "Total model unloads requested, by reason",
		},
		[]string{"reason"},
	)

	preloadsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vramd",
			Subsystem: "manager",
			Name:      "preloads_total",
			Help:      "Total predictive model loads issued, by signal",
		},
		[]string{"signal"},
	)

	admissionDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vramd",
			Subsystem: "manager",
			Name:      "admission_denied_total",
			Help:      "Total load requests denied by admission control, by reason",
		},
		[]string{"reason"},
	)

	defragCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vramd",
			Subsystem: "manager",
			Name:      "defrag_cycles_total",
			Help:      "Total full unload/reload defragmentation cycles",
		},
	)

	rpcFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vramd",
			Subsystem: "peers",
			Name:      "rpc_failures_total",
			Help:      "Total failed peer RPC calls, by peer",
		},
		[]string{"peer"},
	)
)

func init() {
	prometheus.MustRegister(
		vramTotalMB, vramUsedMB, vramFreeMB, pressureGauge, fragmentationGauge,
		evictionsCounter, preloadsCounter, admissionDeniedTotal,
		defragCyclesTotal, rpcFailuresTotal,
	)
}
