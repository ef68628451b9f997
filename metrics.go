package batchtx

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects simulation and submission statistics.
// A nil *Metrics records nothing.
type Metrics struct {
	simulations *prometheus.CounterVec
	submissions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "batchtx",
			Name:      "simulations_total",
			Help:      "Batch simulations by outcome.",
		}, []string{"outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "batchtx",
			Name:      "submissions_total",
			Help:      "Batch submissions by protocol and outcome.",
		}, []string{"mode", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "batchtx",
			Name:      "submission_latency_seconds",
			Help:      "Client-side time from submission to receipt.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"mode"}),
	}
	if reg != nil {
		reg.MustRegister(m.simulations, m.submissions, m.latency)
	}
	return m
}

func (m *Metrics) observeSimulation(success bool) {
	if m == nil {
		return
	}
	m.simulations.WithLabelValues(outcomeLabel(success)).Inc()
}

func (m *Metrics) observeSubmission(mode string, success bool, latency time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(mode, outcomeLabel(success)).Inc()
	if success {
		m.latency.WithLabelValues(mode).Observe(latency.Seconds())
	}
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
