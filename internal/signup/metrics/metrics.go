package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ReviewsTotal         *prometheus.CounterVec
	ProvisioningsTotal   *prometheus.CounterVec
	RetrySweepsTotal     *prometheus.CounterVec
	RetrySweepDuration   prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		ReviewsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supercrm_signup_reviews_total",
			Help: "Total signup reviews by outcome",
		}, []string{"outcome"}),
		ProvisioningsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supercrm_signup_provisionings_total",
			Help: "Total per-project provisioning attempts by result",
		}, []string{"result"}),
		RetrySweepsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supercrm_signup_retry_sweeps_total",
			Help: "Total retry sweeps by status",
		}, []string{"status"}),
		RetrySweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "supercrm_signup_retry_sweep_duration_seconds",
			Help: "Duration of retry sweeps in seconds",
		}),
	}
}

func (m *Metrics) IncrementReviews(outcome string) {
	m.ReviewsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementProvisionings(result string) {
	m.ProvisioningsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementRetrySweeps(status string) {
	m.RetrySweepsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveRetrySweepDuration(seconds float64) {
	m.RetrySweepDuration.Observe(seconds)
}
