package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhooksTotal,
		membershipsAppliedTotal,
		paymentsRevenueTotal,
		amountMismatchTotal,
		reconciledTotal,
	)
}

var (
	// outcome: rejected|duplicate|ignored|no_purchase|purchase_not_found|already_paid|applied|failure_logged
	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Gateway webhook deliveries by gateway and outcome.",
		},
		[]string{"gateway", "outcome"},
	)

	membershipsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberships_applied_total",
			Help: "Purchases applied to a user membership, by provider.",
		},
		[]string{"provider"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_minor_total",
			Help: "The total value of applied purchases in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)

	amountMismatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_amount_mismatch_total",
			Help: "Settlements where the provider reported a different amount than the purchase.",
		},
		[]string{"provider"},
	)

	reconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_reconciled_total",
			Help: "Purchases applied by the reconciler instead of a webhook.",
		},
		[]string{"provider"},
	)
)

func IncWebhook(gateway, outcome string) {
	webhooksTotal.WithLabelValues(norm(gateway), norm(outcome)).Inc()
}

func IncMembershipApplied(provider string) {
	membershipsAppliedTotal.WithLabelValues(norm(provider)).Inc()
}

func AddRevenue(currency string, amountMinor int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amountMinor))
}

func IncAmountMismatch(provider string) {
	amountMismatchTotal.WithLabelValues(norm(provider)).Inc()
}

func IncReconciled(provider string) {
	reconciledTotal.WithLabelValues(norm(provider)).Inc()
}
