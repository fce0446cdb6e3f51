package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteStore persists sessions in the application database so
// conversations survive restarts.
type SQLiteStore struct {
	db           *sql.DB
	systemPrompt string
}

// NewSQLiteStore wraps an opened database. New sessions are seeded with
// systemPrompt as their first message. The sessions and messages tables
// must already exist.
func NewSQLiteStore(db *sql.DB, systemPrompt string) *SQLiteStore {
	return &SQLiteStore{db: db, systemPrompt: systemPrompt}
}

// GetOrCreate returns the session's messages, creating and seeding the
// session on first access.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, sessionID string) ([]Message, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.load(ctx, sessionID)
}

// ensureSession creates the session row and its system message if the
// session does not exist yet.
func (s *SQLiteStore) ensureSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, created_at) VALUES (?, ?)",
		sessionID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	created, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check session insert: %w", err)
	}
	if created == 1 {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO messages (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
			sessionID, RoleSystem, s.systemPrompt, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to seed session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// load reads all messages for a session in insertion order.
func (s *SQLiteStore) load(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, tool_calls, tool_call_id, timestamp FROM messages WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var toolCalls, toolCallID sql.NullString
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCalls, &toolCallID, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
			}
		}
		msg.ToolCallID = toolCallID.String
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return messages, nil
}

// Append adds a message to an existing session.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, msg Message) error {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE id = ?", sessionID).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	var toolCalls any
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCalls = string(data)
	}
	var toolCallID any
	if msg.ToolCallID != "" {
		toolCallID = msg.ToolCallID
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content, tool_calls, tool_call_id, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		sessionID, msg.Role, msg.Content, toolCalls, toolCallID, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// Truncate discards all but the first keep messages of a session.
func (s *SQLiteStore) Truncate(ctx context.Context, sessionID string, keep int) error {
	if keep < 0 {
		return fmt.Errorf("invalid truncate length %d", keep)
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE session_id = ? ORDER BY id LIMIT ?)`,
		sessionID, sessionID, keep,
	)
	if err != nil {
		return fmt.Errorf("failed to truncate session: %w", err)
	}
	return nil
}
