package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of the url router. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	conversions    *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	strategyCalls  *prometheus.CounterVec
	invalidations  prometheus.Counter
	invalidatedKey prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "niceurl",
			Name:      "conversions_total",
			Help:      "URL conversions by direction and outcome.",
		}, []string{"direction", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "niceurl",
			Name:      "cache_lookups_total",
			Help:      "Conversion cache lookups by direction and result.",
		}, []string{"direction", "result"}),
		strategyCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "niceurl",
			Name:      "strategy_calls_total",
			Help:      "Conversion strategy calls by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "niceurl",
			Name:      "rule_invalidations_total",
			Help:      "Rule cache invalidations.",
		}),
		invalidatedKey: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "niceurl",
			Name:      "cache_entries_invalidated_total",
			Help:      "Cache entries removed by rule invalidation.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.conversions, m.cacheLookups, m.strategyCalls, m.invalidations, m.invalidatedKey)
	}
	return m
}

// ObserveConversion counts one Convert or Invert call.
func (m *Metrics) ObserveConversion(direction, outcome string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(direction, outcome).Inc()
}

// ObserveCache counts a cache lookup.
func (m *Metrics) ObserveCache(direction string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(direction, result).Inc()
}

// ObserveStrategy implements converter.Observer.
func (m *Metrics) ObserveStrategy(name, outcome string) {
	if m == nil {
		return
	}
	m.strategyCalls.WithLabelValues(name, outcome).Inc()
}

// ObserveInvalidation counts a rule invalidation and the entries it removed.
func (m *Metrics) ObserveInvalidation(removed int) {
	if m == nil {
		return
	}
	m.invalidations.Inc()
	m.invalidatedKey.Add(float64(removed))
}
