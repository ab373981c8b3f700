package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/backend"
)

func saveConversations(ctx context.Context, tx *sql.Tx, sessionID string, conversations map[agent.Role]backend.Conversation) error {
	roles := make([]string, 0, len(conversations))
	for role := range conversations {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)

	for _, role := range roles {
		for seq, turn := range conversations[agent.Role(role)] {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_history (session_id, agent_role, seq, role, content, timestamp)
				VALUES (?, ?, ?, ?, ?, ?)
			`, sessionID, role, seq, turn.Role, turn.Content, toUnix(turn.Timestamp))
			if err != nil {
				return fmt.Errorf("failed to save %s conversation: %w", role, err)
			}
		}
	}
	return nil
}

// GetHistory retrieves one role's conversation in a session, oldest turn first.
// Returns an empty conversation (not nil) if the role never spoke.
func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string, role agent.Role) (backend.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, timestamp
		FROM conversation_history
		WHERE session_id = ? AND agent_role = ?
		ORDER BY seq ASC
	`, sessionID, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := backend.Conversation{}
	for rows.Next() {
		var (
			turn      backend.Turn
			timestamp int64
		)
		if err := rows.Scan(&turn.Role, &turn.Content, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Timestamp = fromUnix(timestamp)
		history = append(history, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}

func (s *SQLiteStore) loadConversations(ctx context.Context, sessionID string) (map[agent.Role]backend.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_role, role, content, timestamp
		FROM conversation_history
		WHERE session_id = ?
		ORDER BY agent_role, seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := make(map[agent.Role]backend.Conversation)
	for rows.Next() {
		var (
			role      string
			turn      backend.Turn
			timestamp int64
		)
		if err := rows.Scan(&role, &turn.Role, &turn.Content, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Timestamp = fromUnix(timestamp)
		conversations[agent.Role(role)] = append(conversations[agent.Role(role)], turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return conversations, nil
}
