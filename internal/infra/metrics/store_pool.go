package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(userStorePoolConns, userStoreEmptyAcquires) }

var (
	userStorePoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_user_store_pool_connections",
			Help: "Postgres user store pool connections by state.",
		},
		[]string{"state"}, // max, open, idle, acquired
	)

	userStoreEmptyAcquires = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_user_store_pool_empty_acquires",
			Help: "Acquires that had to wait for a free user store connection, since start.",
		},
	)
)

// PoolSnapshot is the part of a connection pool's statistics the user store
// reports after each load and store.
type PoolSnapshot struct {
	Max, Open, Idle, Acquired int32
	EmptyAcquires             int64
}

func SetUserStorePool(s PoolSnapshot) {
	userStorePoolConns.WithLabelValues("max").Set(float64(s.Max))
	userStorePoolConns.WithLabelValues("open").Set(float64(s.Open))
	userStorePoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	userStorePoolConns.WithLabelValues("acquired").Set(float64(s.Acquired))
	userStoreEmptyAcquires.Set(float64(s.EmptyAcquires))
}
