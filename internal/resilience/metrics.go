package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Breaker collectors, labelled by target ("telegram", ...).
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "shop",
		Name:      "breaker_state",
		Help:      "Breaker state per target: 0 closed, 1 open, 2 half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shop",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state changes.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shop",
		Name:      "breaker_opened_total",
		Help:      "Times a breaker tripped open.",
	}, []string{"target"})
)

// RegisterMetrics registers the breaker collectors on reg, or the default
// registerer when nil. Registering twice is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{BreakerState, BreakerTransitions, BreakerOpenedTotal} {
		var are prometheus.AlreadyRegisteredError
		if err := reg.Register(c); err != nil && !errors.As(err, &are) {
			return err
		}
	}
	return nil
}
