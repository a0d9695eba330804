package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(membershipsExpiredTotal) }

var membershipsExpiredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "memberships_expired_total",
		Help: "Total number of memberships marked inactive by the expiry worker.",
	},
)

func IncMembershipsExpired(count int) {
	membershipsExpiredTotal.Add(float64(count))
}
