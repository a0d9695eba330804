package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register queues collectors from each file's init until MustRegister runs.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister adds every queued collector to the default registry. Later
// calls are no-ops.
func MustRegister() {
	once.Do(func() { prometheus.MustRegister(collectors...) })
}

func init() { register(buildInfo, dbPoolConns, planCacheLookups) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "membership_build_info",
			Help: "Always 1; labeled with the running version and commit.",
		},
		[]string{"version", "commit"},
	)

	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Postgres pool connections by state (total/idle/in_use).",
		},
		[]string{"state"},
	)

	planCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_cache_lookups_total",
			Help: "Redis plan cache lookups by key kind (plan/list) and hit.",
		},
		[]string{"kind", "hit"},
	)
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("in_use").Set(float64(inUse))
}

func IncPlanCache(kind string, hit bool) {
	planCacheLookups.WithLabelValues(norm(kind), strconv.FormatBool(hit)).Inc()
}
