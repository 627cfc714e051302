// Package eventlog provides read-only access to the worker event log and
// rebuilds a worker's stage history from it.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"work/pkg/protocol"
)

// Event is a single entry of the worker event log.
type Event struct {
	ID        int64
	WorkerID  int64
	Type      string
	Message   string
	CreatedAt time.Time
}

// QueryOpts specifies filter criteria for querying events.
type QueryOpts struct {
	// WorkerID filters events to one worker (0 = all workers)
	WorkerID int64

	// EventType filters to a specific event type (e.g., "stage_change", "rollover")
	EventType string

	// After filters events created at or after this time
	After *time.Time

	// Before filters events created at or before this time
	Before *time.Time

	// Limit keeps only the newest Limit events (0 = no limit)
	Limit int
}

// Reader provides read-only access to the event log.
type Reader struct {
	db    *sql.DB
	owned bool
}

// NewReader opens the sessions database read-only so that readers never
// block workers writing to it.
func NewReader(dbPath string) (*Reader, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Reader{db: db, owned: true}, nil
}

// NewReaderDB wraps an already open database. Close leaves it open.
func NewReaderDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Close releases the database connection if the reader opened it.
// Safe to call multiple times.
func (r *Reader) Close() error {
	if r.owned && r.db != nil {
		err := r.db.Close()
		r.db = nil
		return err
	}
	return nil
}

// Query returns matching events oldest first. Returns an empty slice if
// nothing matches.
func (r *Reader) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	query, args := buildQuery(opts)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.WorkerID, &e.Type, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if createdAt != "" {
			t, err := time.Parse(protocol.TimeLayout, createdAt)
			if err != nil {
				t, err = time.Parse(time.RFC3339, createdAt)
				if err != nil {
					return nil, fmt.Errorf("parse created_at: %w", err)
				}
			}
			e.CreatedAt = t
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	// Newest rows were selected for the limit; hand them back in log order.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// buildQuery constructs the SQL query and arguments from QueryOpts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any

	query := "SELECT id, worker_id, event_type, COALESCE(message, ''), created_at FROM events WHERE 1=1"

	if opts.WorkerID != 0 {
		conditions = append(conditions, "worker_id = ?")
		args = append(args, opts.WorkerID)
	}
	if opts.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, opts.EventType)
	}
	if opts.After != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.After.UTC().Format(protocol.TimeLayout))
	}
	if opts.Before != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, opts.Before.UTC().Format(protocol.TimeLayout))
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	return query, args
}
