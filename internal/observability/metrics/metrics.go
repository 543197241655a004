package metrics

import "github.com/prometheus/client_golang/prometheus"

// PassLatencyMetric is the fully-qualified name of the pass latency
// histogram, used by the dashboard to snapshot recent latencies.
const PassLatencyMetric = "loancrm_reconcile_pass_latency_seconds"

// EngineMetrics exposes counters/histograms for reconciliation flows.
type EngineMetrics struct {
	rowsTotal         *prometheus.CounterVec
	passLatency       *prometheus.HistogramVec
	reservationsTotal *prometheus.CounterVec
	rejectionsTotal   *prometheus.CounterVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loancrm",
			Subsystem: "reconcile",
			Name:      "rows_total",
			Help:      "Total feed rows processed by the reconciliation engine",
		}, []string{"mode", "action"}),
		passLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loancrm",
			Subsystem: "reconcile",
			Name:      "pass_latency_seconds",
			Help:      "Latency of reconciliation passes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loancrm",
			Subsystem: "timeslot",
			Name:      "reservations_total",
			Help:      "Total slot reservations",
		}, []string{"overbook"}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loancrm",
			Subsystem: "notify",
			Name:      "rejection_notifications_total",
			Help:      "Total rejection notification attempts",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.rowsTotal, m.passLatency, m.reservationsTotal, m.rejectionsTotal)
	return m
}

func (m *EngineMetrics) ObserveRow(mode, action string) {
	if m == nil {
		return
	}
	m.rowsTotal.WithLabelValues(mode, action).Inc()
}

func (m *EngineMetrics) ObservePassLatency(mode string, seconds float64) {
	if m == nil {
		return
	}
	m.passLatency.WithLabelValues(mode).Observe(seconds)
}

func (m *EngineMetrics) ObserveReservation(overbook bool) {
	if m == nil {
		return
	}
	label := "false"
	if overbook {
		label = "true"
	}
	m.reservationsTotal.WithLabelValues(label).Inc()
}

func (m *EngineMetrics) ObserveRejection(status string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(status).Inc()
}
