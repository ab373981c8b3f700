package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
// Timestamps are stored as unix nanoseconds.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		objective TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		deliverable TEXT NOT NULL DEFAULT '',
		deadlocked INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);

	CREATE TABLE IF NOT EXISTS tasks (
		session_id TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		assigned_to TEXT NOT NULL,
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		result TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		completed_at INTEGER,
		PRIMARY KEY (session_id, id),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		session_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (session_id, task_id, depends_on_id),
		FOREIGN KEY (session_id, task_id) REFERENCES tasks(session_id, id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		from_role TEXT NOT NULL,
		to_role TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		timestamp INTEGER NOT NULL,
		PRIMARY KEY (session_id, id),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS conversation_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		agent_role TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_conversation_history_session_role
		ON conversation_history(session_id, agent_role, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
