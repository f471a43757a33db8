package database

import (
	"database/sql"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolMetrics tracks connection pool and transaction activity.
type PoolMetrics struct {
	transactions prometheus.Counter
	commits      prometheus.Counter
	rollbacks    prometheus.Counter
}

var (
	poolMetricsOnce sync.Once
	poolMetrics     *PoolMetrics
)

func metrics() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolMetrics = &PoolMetrics{
			transactions: promauto.NewCounter(prometheus.CounterOpts{
				Name: "prodmanager_db_transactions_total",
				Help: "Total number of database transactions",
			}),
			commits: promauto.NewCounter(prometheus.CounterOpts{
				Name: "prodmanager_db_commits_total",
				Help: "Total number of transaction commits",
			}),
			rollbacks: promauto.NewCounter(prometheus.CounterOpts{
				Name: "prodmanager_db_rollbacks_total",
				Help: "Total number of transaction rollbacks",
			}),
		}
	})
	return poolMetrics
}

// ExposePoolStats registers gauges reading db.Stats() on every scrape.
func ExposePoolStats(reg prometheus.Registerer, db *sql.DB) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "prodmanager_db_pool_open_connections",
			Help: "Number of open database connections",
		}, func() float64 { return float64(db.Stats().OpenConnections) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "prodmanager_db_pool_in_use_connections",
			Help: "Number of database connections in use",
		}, func() float64 { return float64(db.Stats().InUse) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "prodmanager_db_pool_idle_connections",
			Help: "Number of idle database connections",
		}, func() float64 { return float64(db.Stats().Idle) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "prodmanager_db_pool_wait_count_total",
			Help: "Total number of waits for a connection",
		}, func() float64 { return float64(db.Stats().WaitCount) }),
	}
	for _, g := range gauges {
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}
