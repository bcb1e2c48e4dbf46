package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeHandled = "handled"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics groups the collectors exported on /metrics.
type Metrics struct {
	Jobs        *prometheus.CounterVec
	JobDuration prometheus.Histogram
	Connections prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thumbnailer",
			Name:      "jobs_total",
			Help:      "Thumbnail requests dequeued, by outcome.",
		}, []string{"outcome"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "thumbnailer",
			Name:      "job_duration_seconds",
			Help:      "Time spent processing one thumbnail request.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "thumbnailer",
			Name:      "workspace_connections",
			Help:      "Open workspace transactor connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Jobs, m.JobDuration, m.Connections)
	}
	return m
}

// Observe records one processed job.
func (m *Metrics) Observe(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(outcome).Inc()
	m.JobDuration.Observe(seconds)
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}
