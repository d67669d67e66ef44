package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics counts checkout preview and submission outcomes. A nil
// *CheckoutMetrics is valid and records nothing.
type CheckoutMetrics struct {
	Previews          *prometheus.CounterVec
	Ineligible        *prometheus.CounterVec
	OrderSubmissions  *prometheus.CounterVec
	DirectoryLookups  *prometheus.CounterVec
	EstimatedDiscount prometheus.Histogram
}

// NewCheckoutMetrics registers and returns the checkout collectors.
func NewCheckoutMetrics(namespace string, reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &CheckoutMetrics{
		Previews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_preview_total",
			Help:      "Count of checkout previews computed, by outcome.",
		}, []string{"result"}),
		Ineligible: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_ineligible_total",
			Help:      "Count of vouchers reported as not selectable, by reason.",
		}, []string{"reason"}),
		OrderSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_submission_total",
			Help:      "Count of orders forwarded to the backend, by outcome.",
		}, []string{"result"}),
		DirectoryLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_directory_lookup_total",
			Help:      "Voucher directory reads by source (cache hit, backend, error).",
		}, []string{"source"}),
		EstimatedDiscount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_estimated_discount_rupiah",
			Help:      "Distribution of estimated voucher discounts in rupiah.",
			Buckets:   []float64{0, 5_000, 10_000, 25_000, 50_000, 100_000, 250_000, 500_000},
		}),
	}
	m.Previews = register(reg, m.Previews)
	m.Ineligible = register(reg, m.Ineligible)
	m.OrderSubmissions = register(reg, m.OrderSubmissions)
	m.DirectoryLookups = register(reg, m.DirectoryLookups)
	m.EstimatedDiscount = register(reg, m.EstimatedDiscount)
	return m
}

// Preview records a preview outcome and, on success, the estimated discount.
func (m *CheckoutMetrics) Preview(result string, discount int64) {
	if m == nil {
		return
	}
	m.Previews.WithLabelValues(result).Inc()
	if result == "ok" {
		m.EstimatedDiscount.Observe(float64(discount))
	}
}

// IneligibleVoucher records a voucher shown as not selectable.
func (m *CheckoutMetrics) IneligibleVoucher(reason string) {
	if m == nil {
		return
	}
	m.Ineligible.WithLabelValues(reason).Inc()
}

// OrderSubmitted records the outcome of forwarding an order.
func (m *CheckoutMetrics) OrderSubmitted(result string) {
	if m == nil {
		return
	}
	m.OrderSubmissions.WithLabelValues(result).Inc()
}

// DirectoryLookup records where a voucher directory read was served from.
func (m *CheckoutMetrics) DirectoryLookup(source string) {
	if m == nil {
		return
	}
	m.DirectoryLookups.WithLabelValues(source).Inc()
}
