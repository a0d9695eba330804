package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		checkoutsTotal,
		gatewayCallSeconds,
		couponOutcomesTotal,
	)
}

var (
	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_checkouts_total",
			Help: "Checkout attempts by gateway and result (started/applied/unavailable/gateway_error).",
		},
		[]string{"gateway", "result"},
	)

	gatewayCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_seconds",
			Help:    "Latency of outbound payment gateway calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"gateway", "op", "success"},
	)

	// outcome: none|applied|not_found|not_started|expired|region_mismatch|per_user_limit|usage_limit
	couponOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupon_evaluations_total",
			Help: "Coupon evaluations by outcome.",
		},
		[]string{"outcome"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Checkout helpers --------

func IncCheckout(gateway, result string) {
	checkoutsTotal.WithLabelValues(norm(gateway), norm(result)).Inc()
}

func ObserveGatewayCall(gateway, op string, success bool, d time.Duration) {
	gatewayCallSeconds.WithLabelValues(norm(gateway), norm(op), strconv.FormatBool(success)).Observe(d.Seconds())
}

func IncCouponOutcome(outcome string) {
	couponOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}
