package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Marketplace holds the settlement counters. Notification is
// fire-and-forget: callers never block or fail on metrics.
type Marketplace struct {
	ordersCompleted *prometheus.CounterVec
	ordersFailed    *prometheus.CounterVec
	paymentsIgnored *prometheus.CounterVec
}

var (
	marketplaceOnce     sync.Once
	marketplaceRegistry *Marketplace
)

func Default() *Marketplace {
	marketplaceOnce.Do(func() {
		marketplaceRegistry = &Marketplace{
			ordersCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_orders_completed_total",
				Help: "Count of orders completed by payment reconciliation, by order type and offer.",
			}, []string{"type", "offer_id"}),
			ordersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_orders_failed_total",
				Help: "Count of orders failed during reconciliation, by stable error code.",
			}, []string{"code"}),
			paymentsIgnored: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_payments_ignored_total",
				Help: "Count of payment events dropped without state change, by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			marketplaceRegistry.ordersCompleted,
			marketplaceRegistry.ordersFailed,
			marketplaceRegistry.paymentsIgnored,
		)
	})
	return marketplaceRegistry
}

func (m *Marketplace) OrderCompleted(orderType, offerID string) {
	if m == nil {
		return
	}
	m.ordersCompleted.WithLabelValues(orderType, offerID).Inc()
}

func (m *Marketplace) OrderFailed(code int) {
	if m == nil {
		return
	}
	m.ordersFailed.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Marketplace) PaymentIgnored(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.paymentsIgnored.WithLabelValues(reason).Inc()
}
