package tranche

import "github.com/prometheus/client_golang/prometheus"

var (
	metricPasses    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tranche_reconcile_passes_total", Help: "Reconciliation passes by tranche and result"}, []string{"tranche", "result"})
	metricCancels   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tranche_cancels_total", Help: "Reduce-only orders cancelled as stale"}, []string{"tranche", "result"})
	metricSubmits   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tranche_submits_total", Help: "Missing legs submitted"}, []string{"tranche", "type", "result"})
	metricSkips     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tranche_evaluations_skipped_total", Help: "Evaluations skipped before any order action"}, []string{"reason"})
	metricTrails    = prometheus.NewCounter(prometheus.CounterOpts{Name: "tranche_core_stop_trails_total", Help: "Core stop tightenings"})
	metricCoreStop  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "tranche_core_stop_price", Help: "Tracked core trailing stop price"})
	metricPosition  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "tranche_position_contracts", Help: "Net signed position seen at evaluation"})
	metricLastPrice = prometheus.NewGauge(prometheus.GaugeOpts{Name: "tranche_last_price", Help: "Last trade price"})
)

func init() {
	prometheus.MustRegister(
		metricPasses, metricCancels, metricSubmits, metricSkips,
		metricTrails, metricCoreStop, metricPosition, metricLastPrice,
	)
}
