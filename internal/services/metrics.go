package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the dispatch engine and the order channel. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Jobs        *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
	QueueLength prometheus.Gauge
	Sessions    prometheus.Counter
	Acks        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "printagent",
			Name:      "jobs_total",
			Help:      "Print jobs by terminal outcome.",
		}, []string{"outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "printagent",
			Name:      "job_duration_seconds",
			Help:      "Time from dequeue to job completion.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "printagent",
			Name:      "queue_length",
			Help:      "Jobs waiting to be printed.",
		}),
		Sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printagent",
			Subsystem: "channel",
			Name:      "sessions_total",
			Help:      "Upstream channel sessions opened.",
		}),
		Acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "printagent",
			Subsystem: "channel",
			Name:      "acks_total",
			Help:      "print_done acknowledgements by delivery state.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.Jobs, m.JobDuration, m.QueueLength, m.Sessions, m.Acks)
	return m
}

func (m *Metrics) observeJob(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(outcome).Inc()
	m.JobDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) setQueueLength(n int) {
	if m == nil {
		return
	}
	m.QueueLength.Set(float64(n))
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.Sessions.Inc()
}

func (m *Metrics) ack(state string) {
	if m == nil {
		return
	}
	m.Acks.WithLabelValues(state).Inc()
}
