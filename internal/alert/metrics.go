package alert

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the alert engine.
type Metrics struct {
	EvaluationsTotal *prometheus.CounterVec
	CallsTotal       *prometheus.CounterVec
	CallDuration     prometheus.Histogram
}

// NewMetrics registers and returns alert engine metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callout_evaluations_total",
			Help: "Total rule evaluations by decision.",
		}, []string{"decision"}),
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callout_calls_total",
			Help: "Total voice notification attempts by terminal outcome.",
		}, []string{"outcome"}),
		CallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "callout_call_duration_seconds",
			Help:    "Duration of voice notification attempts in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.CallsTotal,
		m.CallDuration,
	)
	return m
}
