package metrics

import "database/sql"

// UpdateAuditDBPoolStats publishes the Postgres pool behind the audit log.
// "waiting" counts connection requests that blocked since the pool opened.
func UpdateAuditDBPoolStats(stats sql.DBStats) {
	DBConnectionPoolSize.WithLabelValues("active").Set(float64(stats.InUse))
	DBConnectionPoolSize.WithLabelValues("idle").Set(float64(stats.Idle))
	DBConnectionPoolSize.WithLabelValues("open").Set(float64(stats.OpenConnections))
	DBConnectionPoolSize.WithLabelValues("max").Set(float64(stats.MaxOpenConnections))
	DBConnectionPoolSize.WithLabelValues("waiting").Set(float64(stats.WaitCount))
}
