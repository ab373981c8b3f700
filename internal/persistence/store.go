// Package persistence archives finished sessions in SQLite.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/backend"
	"github.com/aristath/conductor/internal/scheduler"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// SessionSummary is one row of ListSessions.
type SessionSummary struct {
	ID             string
	Objective      string
	Status         scheduler.SessionStatus
	StartedAt      time.Time
	CompletedAt    *time.Time
	Deadlocked     bool
	TasksTotal     int
	TasksCompleted int
}

// Store defines the run archive.
type Store interface {
	// SaveSession writes the session with its tasks, messages and
	// conversations. Saving the same session again replaces the old copy.
	SaveSession(ctx context.Context, session *scheduler.Session) error

	// GetSession loads a session by ID. Returns an error wrapping ErrNotFound
	// if it does not exist.
	GetSession(ctx context.Context, id string) (*scheduler.Session, error)

	// ListSessions returns the most recently started sessions first.
	// A limit of zero or less returns all of them.
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)

	// GetHistory returns the conversation a role had within a session.
	GetHistory(ctx context.Context, sessionID string, role agent.Role) (backend.Conversation, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite takes pragmas as _pragma parameters
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Each store gets its own named database, shared by its connections.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:mem-%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; a second connection serves reads during iteration
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64)
	return &t
}
