package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TokensMintedTotal   prometheus.Counter
	TokensConsumedTotal *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		TokensMintedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "supercrm_sso_tokens_minted_total",
			Help: "Total SSO tokens minted",
		}),
		TokensConsumedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supercrm_sso_tokens_consumed_total",
			Help: "Total SSO token consumption attempts by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementMinted() {
	m.TokensMintedTotal.Inc()
}

func (m *Metrics) IncrementConsumed(outcome string) {
	m.TokensConsumedTotal.WithLabelValues(outcome).Inc()
}
