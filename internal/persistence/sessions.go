package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/scheduler"
)

// SaveSession stores a session and everything it owns in one transaction.
// Uses ON CONFLICT for the session row and replaces its children, so saves
// are idempotent.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *scheduler.Session) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, objective, context, status, deliverable, deadlocked, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			objective = excluded.objective,
			context = excluded.context,
			status = excluded.status,
			deliverable = excluded.deliverable,
			deadlocked = excluded.deadlocked,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, session.ID, session.Objective, session.Context, string(session.Status), session.Deliverable,
		session.Deadlocked, toUnix(session.StartedAt), toNullUnix(session.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	// Children are replaced wholesale; dependencies cascade from tasks
	for _, table := range []string{"tasks", "messages", "conversation_history"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, session.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := saveTasks(ctx, tx, session.ID, session.Tasks); err != nil {
		return err
	}
	if err := saveMessages(ctx, tx, session.ID, session.MessagesSnapshot()); err != nil {
		return err
	}
	if err := saveConversations(ctx, tx, session.ID, session.ConversationsSnapshot()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func saveTasks(ctx context.Context, tx *sql.Tx, sessionID string, tasks []*scheduler.Task) error {
	for pos, task := range tasks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (session_id, id, position, title, description, assigned_to, priority, status,
				result, error, attempts, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sessionID, task.ID, pos, task.Title, task.Description, string(task.AssignedTo), string(task.Priority),
			string(task.Status), task.Result, task.Err, task.Attempts, toUnix(task.CreatedAt), toNullUnix(task.CompletedAt))
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
		}

		for depPos, depID := range task.Dependencies {
			_, err = tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO task_dependencies (session_id, task_id, depends_on_id, position)
				VALUES (?, ?, ?, ?)
			`, sessionID, task.ID, depID, depPos)
			if err != nil {
				return fmt.Errorf("failed to insert dependency %s -> %s: %w", task.ID, depID, err)
			}
		}
	}
	return nil
}

func saveMessages(ctx context.Context, tx *sql.Tx, sessionID string, messages []scheduler.AgentMessage) error {
	for seq, msg := range messages {
		metadata, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of message %s: %w", msg.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, id, seq, from_role, to_role, kind, content, metadata, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sessionID, msg.ID, seq, string(msg.From), string(msg.To), string(msg.Kind), msg.Content,
			string(metadata), toUnix(msg.Timestamp))
		if err != nil {
			return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
		}
	}
	return nil
}

// GetSession loads a session with its tasks, messages and conversations.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*scheduler.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	session := &scheduler.Session{ID: id}
	var (
		status      string
		startedAt   int64
		completedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT objective, context, status, deliverable, deadlocked, started_at, completed_at
		FROM sessions
		WHERE id = ?
	`, id).Scan(&session.Objective, &session.Context, &status, &session.Deliverable,
		&session.Deadlocked, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	session.Status = scheduler.SessionStatus(status)
	session.StartedAt = fromUnix(startedAt)
	session.CompletedAt = fromNullUnix(completedAt)

	if session.Tasks, err = s.loadTasks(ctx, id); err != nil {
		return nil, err
	}
	if session.Messages, err = s.loadMessages(ctx, id); err != nil {
		return nil, err
	}
	if session.Conversations, err = s.loadConversations(ctx, id); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SQLiteStore) loadTasks(ctx context.Context, sessionID string) ([]*scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, assigned_to, priority, status, result, error, attempts, created_at, completed_at
		FROM tasks
		WHERE session_id = ?
		ORDER BY position ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	tasks := []*scheduler.Task{}
	for rows.Next() {
		task := &scheduler.Task{Dependencies: []string{}}
		var (
			assignedTo, priority, status string
			createdAt                    int64
			completedAt                  sql.NullInt64
		)
		if err := rows.Scan(&task.ID, &task.Title, &task.Description, &assignedTo, &priority, &status,
			&task.Result, &task.Err, &task.Attempts, &createdAt, &completedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.AssignedTo = agent.Role(assignedTo)
		task.Priority = scheduler.Priority(priority)
		task.Status = scheduler.TaskStatus(status)
		task.CreatedAt = fromUnix(createdAt)
		task.CompletedAt = fromNullUnix(completedAt)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	// Dependencies are loaded after the task cursor is closed
	byID := make(map[string]*scheduler.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	depRows, err := s.db.QueryContext(ctx, `
		SELECT task_id, depends_on_id
		FROM task_dependencies
		WHERE session_id = ?
		ORDER BY task_id, position ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer depRows.Close()

	for depRows.Next() {
		var taskID, depID string
		if err := depRows.Scan(&taskID, &depID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		if task, ok := byID[taskID]; ok {
			task.Dependencies = append(task.Dependencies, depID)
		}
	}
	if err := depRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}
	return tasks, nil
}

func (s *SQLiteStore) loadMessages(ctx context.Context, sessionID string) ([]scheduler.AgentMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_role, to_role, kind, content, metadata, timestamp
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []scheduler.AgentMessage
	for rows.Next() {
		var (
			msg                  scheduler.AgentMessage
			from, to, kind, meta string
			timestamp            int64
		)
		if err := rows.Scan(&msg.ID, &from, &to, &kind, &msg.Content, &meta, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of message %s: %w", msg.ID, err)
		}
		msg.From = agent.Role(from)
		msg.To = agent.Role(to)
		msg.Kind = scheduler.MessageKind(kind)
		msg.Timestamp = fromUnix(timestamp)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// ListSessions returns session summaries, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.objective, s.status, s.deadlocked, s.started_at, s.completed_at,
			COUNT(t.id),
			COALESCE(SUM(CASE WHEN t.status = ? THEN 1 ELSE 0 END), 0)
		FROM sessions s
		LEFT JOIN tasks t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.id ASC
		LIMIT ?
	`, string(scheduler.TaskCompleted), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	summaries := []SessionSummary{}
	for rows.Next() {
		var (
			sum         SessionSummary
			status      string
			startedAt   int64
			completedAt sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &sum.Objective, &status, &sum.Deadlocked, &startedAt, &completedAt,
			&sum.TasksTotal, &sum.TasksCompleted); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.Status = scheduler.SessionStatus(status)
		sum.StartedAt = fromUnix(startedAt)
		sum.CompletedAt = fromNullUnix(completedAt)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return summaries, nil
}
