package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jience/AwesomeSSOManager/pkg/observability"
)

// Store persists audit events in PostgreSQL for the dashboard and for
// retention-managed history.
type Store struct {
	db *sql.DB
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         BIGSERIAL PRIMARY KEY,
	timestamp  TIMESTAMPTZ NOT NULL,
	event_type TEXT NOT NULL,
	status     TEXT NOT NULL,
	username   TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL DEFAULT '',
	protocol   TEXT NOT NULL DEFAULT '',
	client_ip  TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events (timestamp);
`

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the audit schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("failed to apply audit schema: %w", err)
	}
	return nil
}

// LogEvent inserts the event.
func (s *Store) LogEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (timestamp, event_type, status, username, provider, protocol, client_ip, message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.Timestamp, string(event.Type), string(event.Status),
		event.Username, event.Provider, event.Protocol, event.ClientIP, event.Message)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the storage layer.
func (s *Store) Close() error { return nil }

// Purge deletes events older than the retention window and reports how
// many rows went away.
func (s *Store) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecentFailures counts failed login events within the window. Used by
// the dashboard.
func (s *Store) RecentFailures(ctx context.Context, window time.Duration) (int64, error) {
	since := time.Now().UTC().Add(-window)
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_events WHERE status = $1 AND timestamp >= $2`,
		string(EventStatusFailure), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit failures: %w", err)
	}
	return count, nil
}

// ScheduleRetention registers a daily purge on the given cron scheduler.
func (s *Store) ScheduleRetention(c *cron.Cron, retention time.Duration, logger *observability.Logger) (cron.EntryID, error) {
	return c.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		purged, err := s.Purge(ctx, retention)
		if err != nil {
			logger.WithError(err).Error("audit retention purge failed")
			return
		}
		logger.WithField("purged", purged).Info("audit retention purge completed")
	})
}
