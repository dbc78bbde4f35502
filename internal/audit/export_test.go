package audit

import "database/sql"

// ExportDB exposes the connection pool to external tests.
func ExportDB(s *PostgresStore) *sql.DB {
	return s.db
}
