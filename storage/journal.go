// Operator request journal backed by SQLite.
//
// Information Hiding:
// - SQLite connection management hidden behind the Journal interface
// - Schema creation encapsulated
// - Only request metadata is written; message text never reaches disk

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Entry is one journaled request outcome.
type Entry struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Endpoint  string    `json:"endpoint"`
	UserID    string    `json:"user_id,omitempty"`
	Status    int       `json:"status"`
	Category  string    `json:"category"`        // "ok" or an error category
	Cause     string    `json:"cause,omitempty"` // operator-facing error detail
	ToolUsed  string    `json:"tool_used,omitempty"`
	Items     int       `json:"items,omitempty"` // batch size
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal records request outcomes for operators.
type Journal interface {
	// Record appends an entry. ID and CreatedAt are filled in when empty.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// CountByCategory tallies entries created at or after since.
	CountByCategory(ctx context.Context, since time.Time) (map[string]int, error)

	// Close releases resources.
	Close() error
}

// SqliteJournal implements Journal using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteJournal struct {
	db *sql.DB
}

// OpenJournal opens or creates a journal database at the given path.
// Creates parent directories if they don't exist.
func OpenJournal(path string) (*SqliteJournal, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	return newSqliteJournal(db)
}

// NewJournalInMemory creates an in-memory journal (useful for testing).
func NewJournalInMemory() (*SqliteJournal, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSqliteJournal(db)
}

func newSqliteJournal(db *sql.DB) (*SqliteJournal, error) {
	j := &SqliteJournal{db: db}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// Close closes the database connection.
func (j *SqliteJournal) Close() error {
	return j.db.Close()
}

func (j *SqliteJournal) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			user_id TEXT,
			status INTEGER NOT NULL,
			category TEXT NOT NULL,
			cause TEXT,
			tool_used TEXT,
			items INTEGER NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_requests_created
		ON requests(created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_requests_category
		ON requests(category, created_at);
	`

	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record appends an entry.
func (j *SqliteJournal) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	// Empty optional fields are stored as NULL
	var userID, cause, toolUsed interface{}
	if e.UserID != "" {
		userID = e.UserID
	}
	if e.Cause != "" {
		cause = e.Cause
	}
	if e.ToolUsed != "" {
		toolUsed = e.ToolUsed
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO requests
		(id, request_id, endpoint, user_id, status, category, cause, tool_used, items, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.RequestID,
		e.Endpoint,
		userID,
		e.Status,
		e.Category,
		cause,
		toolUsed,
		e.Items,
		e.LatencyMs,
		e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *SqliteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, request_id, endpoint, user_id, status, category, cause, tool_used, items, latency_ms, created_at
		FROM requests
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                       Entry
			userID, cause, toolUsed sql.NullString
			createdAt               int64
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Endpoint, &userID, &e.Status,
			&e.Category, &cause, &toolUsed, &e.Items, &e.LatencyMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		e.UserID = userID.String
		e.Cause = cause.String
		e.ToolUsed = toolUsed.String
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}
	return entries, nil
}

// CountByCategory tallies entries created at or after since.
func (j *SqliteJournal) CountByCategory(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT category, COUNT(*)
		FROM requests
		WHERE created_at >= ?
		GROUP BY category`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[category] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}

// NopJournal discards entries. Used when no journal path is configured.
type NopJournal struct{}

// Record discards e.
func (NopJournal) Record(context.Context, Entry) error { return nil }

// Recent returns no entries.
func (NopJournal) Recent(context.Context, int) ([]Entry, error) { return []Entry{}, nil }

// CountByCategory returns an empty tally.
func (NopJournal) CountByCategory(context.Context, time.Time) (map[string]int, error) {
	return map[string]int{}, nil
}

// Close is a no-op.
func (NopJournal) Close() error { return nil }

// Verify implementations
var (
	_ Journal = (*SqliteJournal)(nil)
	_ Journal = NopJournal{}
)
