package obs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingCalculationsTotal counts basket calculations by applied rule ("none" when no rule applied).
	PricingCalculationsTotal *prometheus.CounterVec
	// PricingDiscountAmount records granted discounts in currency units.
	PricingDiscountAmount prometheus.Histogram
	// OrdersCreatedTotal counts checkout outcomes.
	OrdersCreatedTotal *prometheus.CounterVec
	// NotificationsTotal counts order notification delivery outcomes.
	NotificationsTotal *prometheus.CounterVec
	// ThrottleRejectionsTotal counts requests rejected by the rate limiter, by scope (user, anon).
	ThrottleRejectionsTotal *prometheus.CounterVec
	// BansTotal counts bans issued, by reason (autoban, honeypot).
	BansTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers storefront Prometheus collectors.
// Calling it again is a no-op; collectors already present in reg are reused.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingCalculationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_calculations_total",
			Help:      "Count of basket pricing calculations by applied rule.",
		}, []string{"rule"}))
		PricingDiscountAmount = registerOrReuse(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_discount_amount",
			Help:      "Discount granted per calculation when a rule applied.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}))
		OrdersCreatedTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"}))
		NotificationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of order notification deliveries by outcome.",
		}, []string{"result"}))
		ThrottleRejectionsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_rejections_total",
			Help:      "Count of requests rejected by the rate limiter.",
		}, []string{"scope"}))
		BansTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bans_total",
			Help:      "Count of bans issued by reason.",
		}, []string{"reason"}))
	})
}

func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
			return collector
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
	return collector
}
