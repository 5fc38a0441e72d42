package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

// Event is one recorded link state transition.
type Event struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	Port      string    `json:"port"`
	BaudRate  int       `json:"baudrate"`
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteRepository stores link events in the link_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite link event repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordTransition inserts a new link event.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - status: "connected" or "disconnected"
//   - port: Serial device path the transition occurred on
//   - baudRate: Communication speed at the time of the transition
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) RecordTransition(ctx context.Context, status, port string, baudRate int) error {
	if status == "" {
		return fmt.Errorf("status is required")
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO link_events (status, port, baudrate) VALUES (?, ?, ?)",
		status,
		port,
		baudRate,
	)
	if err != nil {
		return fmt.Errorf("inserting link event: %w", err)
	}

	return nil
}

// Recent returns recent link events, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Event: Events ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, status, port, baudrate, created_at
		 FROM link_events
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying link events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var event Event
		var createdAt string

		if err := rows.Scan(&event.ID, &event.Status, &event.Port, &event.BaudRate, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning link event: %w", err)
		}

		timestamp, err := parseEventTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		event.CreatedAt = timestamp

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating link events: %w", err)
	}

	return events, nil
}

// Prune deletes events older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (events older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM link_events WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting link events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseEventTimestamp parses a timestamp stored in SQLite.
func parseEventTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
