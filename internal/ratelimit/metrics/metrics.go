package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AdmissionsTotal       *prometheus.CounterVec
	BreakerTransitions    *prometheus.CounterVec
	RecordedCallsTotal    *prometheus.CounterVec
	MinuteWindowRemaining prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		AdmissionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supercrm_ratelimit_admissions_total",
			Help: "Total admission decisions by outcome",
		}, []string{"outcome"}),
		BreakerTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supercrm_ratelimit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		}, []string{"to"}),
		RecordedCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supercrm_ratelimit_recorded_calls_total",
			Help: "Total executed integration calls recorded against windows",
		}, []string{"result"}),
		MinuteWindowRemaining: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "supercrm_ratelimit_minute_remaining",
			Help:    "Minute-window headroom observed at admission time",
			Buckets: prometheus.LinearBuckets(0, 10, 7),
		}),
	}
}

func (m *Metrics) IncrementAdmissions(outcome string) {
	m.AdmissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementBreakerTransitions(to string) {
	m.BreakerTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) IncrementRecordedCalls(result string) {
	m.RecordedCallsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveMinuteRemaining(remaining int) {
	m.MinuteWindowRemaining.Observe(float64(remaining))
}
