// Package audit records who did what to which secret path.
// Entries never carry secret values, only paths and outcomes.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hishamos/secrets/internal/metrics"
	"github.com/hishamos/secrets/internal/observability"
)

// Action represents the type of secret operation being audited.
type Action string

const (
	ActionStore  Action = "secret_store"
	ActionRead   Action = "secret_read"
	ActionDelete Action = "secret_delete"
	ActionRotate Action = "secret_rotate"
	ActionList   Action = "secret_list"
)

// Actor types.
const (
	ActorBootstrap = "bootstrap"
	ActorUser      = "user"
	ActorAnonymous = "anonymous"
)

// ErrNotFound is returned by Store.Get for an unknown entry ID.
var ErrNotFound = errors.New("audit entry not found")

// Entry is a single audit record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Who performed the action
	ActorID   string `json:"actor_id"`
	ActorType string `json:"actor_type"`
	ActorIP   string `json:"actor_ip,omitempty"`

	Action  Action `json:"action"`
	Path    string `json:"path"`
	Backend string `json:"backend"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Fields lists the payload keys touched by a write.
	Fields []string `json:"fields,omitempty"`
}

// Filter contains filter options for querying audit entries.
type Filter struct {
	ActorID    *string
	Action     *Action
	PathPrefix string
	Success    *bool
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
	Offset     int
}

// Stats contains aggregated audit statistics.
type Stats struct {
	TotalEvents  int64            `json:"total_events"`
	SuccessCount int64            `json:"success_count"`
	FailureCount int64            `json:"failure_count"`
	UniqueActors int              `json:"unique_actors"`
	ActionCounts map[string]int64 `json:"action_counts"`
}

// Store persists audit entries.
type Store interface {
	// Create records a new entry.
	Create(ctx context.Context, entry *Entry) error

	// Get retrieves a single entry by ID.
	Get(ctx context.Context, id string) (*Entry, error)

	// List returns entries matching the filter, newest first, and the total
	// number of matches before pagination.
	List(ctx context.Context, filter Filter) ([]*Entry, int64, error)

	// Stats returns aggregated statistics for entries matching the filter.
	Stats(ctx context.Context, filter Filter) (*Stats, error)

	// DeleteOlderThan removes entries older than the given time.
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}

// DefaultLimit applies when a filter has no limit.
const DefaultLimit = 100

// Logger provides a high-level API for recording audit events. Recording
// never fails the audited operation: store errors are logged and counted.
type Logger struct {
	store   Store
	enabled bool
	logger  *slog.Logger
}

// NewLogger creates a new audit logger.
func NewLogger(store Store, enabled bool, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		store:   store,
		enabled: enabled,
		logger:  logger,
	}
}

// Enabled reports whether entries are persisted.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled && l.store != nil
}

// Store returns the underlying store.
func (l *Logger) Store() Store {
	if l == nil {
		return nil
	}
	return l.store
}

// Record fills in ID, timestamp and request ID when missing, then persists
// the entry.
func (l *Logger) Record(ctx context.Context, entry *Entry) {
	if !l.Enabled() || entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = observability.RequestIDFromContext(ctx)
	}

	if err := l.store.Create(ctx, entry); err != nil {
		metrics.AuditWriteFailures.Inc()
		l.logger.Warn("failed to write audit entry",
			"action", string(entry.Action),
			"path", entry.Path,
			"request_id", entry.RequestID,
			"error", err,
		)
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
