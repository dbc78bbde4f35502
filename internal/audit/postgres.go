package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq" // postgres driver
)

const schema = `
CREATE TABLE IF NOT EXISTS secret_audit_logs (
	id          TEXT PRIMARY KEY,
	timestamp   TIMESTAMPTZ NOT NULL,
	actor_id    TEXT NOT NULL,
	actor_type  TEXT NOT NULL,
	actor_ip    TEXT,
	action      TEXT NOT NULL,
	path        TEXT NOT NULL,
	backend     TEXT NOT NULL,
	request_id  TEXT,
	user_agent  TEXT,
	success     BOOLEAN NOT NULL,
	error       TEXT,
	fields      JSONB
);
CREATE INDEX IF NOT EXISTS idx_secret_audit_logs_timestamp ON secret_audit_logs (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_secret_audit_logs_path ON secret_audit_logs (path);
`

const selectColumns = `id, timestamp, actor_id, actor_type, actor_ip, action, path, backend,
	request_id, user_agent, success, error, fields`

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to PostgreSQL, verifies connectivity and creates the
// audit table if missing.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the audit table and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// DBStats exposes connection pool statistics.
func (s *PostgresStore) DBStats() sql.DBStats {
	return s.db.Stats()
}

// Create records a new audit entry.
func (s *PostgresStore) Create(ctx context.Context, entry *Entry) error {
	fieldsJSON, err := json.Marshal(entry.Fields)
	if err != nil {
		return fmt.Errorf("marshal audit fields: %w", err)
	}

	query := `
		INSERT INTO secret_audit_logs (
			id, timestamp, actor_id, actor_type, actor_ip, action, path, backend,
			request_id, user_agent, success, error, fields
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.Timestamp, entry.ActorID, entry.ActorType, nullString(entry.ActorIP),
		string(entry.Action), entry.Path, entry.Backend,
		nullString(entry.RequestID), nullString(entry.UserAgent),
		entry.Success, nullString(entry.Error), string(fieldsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Get retrieves a single audit entry by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM secret_audit_logs WHERE id = $1`

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry: %w", err)
	}
	return entry, nil
}

// List returns audit entries matching the filter, newest first.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*Entry, int64, error) {
	where, args := buildWhere(filter)

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM secret_audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	query := `SELECT ` + selectColumns + ` FROM secret_audit_logs` + where +
		fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, normalizeLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, total, nil
}

// Stats returns aggregated audit statistics.
func (s *PostgresStore) Stats(ctx context.Context, filter Filter) (*Stats, error) {
	where, args := buildWhere(filter)

	stats := &Stats{ActionCounts: make(map[string]int64)}
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE success),
		       COUNT(*) FILTER (WHERE NOT success),
		       COUNT(DISTINCT actor_id)
		FROM secret_audit_logs` + where
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalEvents, &stats.SuccessCount, &stats.FailureCount, &stats.UniqueActors,
	); err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM secret_audit_logs`+where+` GROUP BY action`, args...)
	if err != nil {
		return nil, fmt.Errorf("audit action counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		stats.ActionCounts[action] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action counts: %w", err)
	}
	return stats, nil
}

// DeleteOlderThan removes entries older than the given time.
func (s *PostgresStore) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM secret_audit_logs WHERE timestamp < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete audit entries: %w", err)
	}
	return result.RowsAffected()
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var action string
	var actorIP, requestID, userAgent, errorMsg, fields sql.NullString

	if err := row.Scan(
		&entry.ID, &entry.Timestamp, &entry.ActorID, &entry.ActorType, &actorIP,
		&action, &entry.Path, &entry.Backend,
		&requestID, &userAgent, &entry.Success, &errorMsg, &fields,
	); err != nil {
		return nil, err
	}

	entry.Action = Action(action)
	entry.ActorIP = actorIP.String
	entry.RequestID = requestID.String
	entry.UserAgent = userAgent.String
	entry.Error = errorMsg.String
	if fields.Valid && fields.String != "" && fields.String != "null" {
		if err := json.Unmarshal([]byte(fields.String), &entry.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
	}
	return &entry, nil
}

func buildWhere(filter Filter) (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if !filter.StartTime.IsZero() {
		add("timestamp >= $%d", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		add("timestamp <= $%d", filter.EndTime)
	}
	if filter.ActorID != nil {
		add("actor_id = $%d", *filter.ActorID)
	}
	if filter.Action != nil {
		add("action = $%d", string(*filter.Action))
	}
	if filter.PathPrefix != "" {
		add("path LIKE $%d", escapeLike(filter.PathPrefix)+"%")
	}
	if filter.Success != nil {
		add("success = $%d", *filter.Success)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*PostgresStore)(nil)
