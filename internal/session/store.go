package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSessionNotFound is returned when an operation references a session
// that was never created.
var ErrSessionNotFound = errors.New("session not found")

// Store keeps per-session conversation history. Individual operations
// are safe for concurrent use; callers that need a whole turn to be
// atomic serialize per session themselves.
type Store interface {
	// GetOrCreate returns the session's messages, creating the session
	// and seeding it with the system message on first access.
	GetOrCreate(ctx context.Context, sessionID string) ([]Message, error)
	// Append adds a message to an existing session.
	Append(ctx context.Context, sessionID string, msg Message) error
	// Truncate discards all but the first keep messages of a session.
	Truncate(ctx context.Context, sessionID string, keep int) error
}

// MemoryStore keeps sessions in process memory. Histories live for the
// lifetime of the store and are never evicted.
type MemoryStore struct {
	mu           sync.RWMutex
	sessions     map[string][]Message
	systemPrompt string
}

// NewMemoryStore creates an empty in-memory store. New sessions are
// seeded with systemPrompt as their first message.
func NewMemoryStore(systemPrompt string) *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string][]Message),
		systemPrompt: systemPrompt,
	}
}

// GetOrCreate returns a copy of the session's messages, creating the
// session on first access.
func (s *MemoryStore) GetOrCreate(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, ok := s.sessions[sessionID]
	if !ok {
		messages = []Message{{
			Role:      RoleSystem,
			Content:   s.systemPrompt,
			Timestamp: time.Now(),
		}}
		s.sessions[sessionID] = messages
	}

	out := make([]Message, len(messages))
	copy(out, messages)
	return out, nil
}

// Append adds a message to an existing session.
func (s *MemoryStore) Append(ctx context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.sessions[sessionID] = append(s.sessions[sessionID], msg)
	return nil
}

// Truncate discards all but the first keep messages of a session.
func (s *MemoryStore) Truncate(ctx context.Context, sessionID string, keep int) error {
	if keep < 0 {
		return fmt.Errorf("invalid truncate length %d", keep)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	messages, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if keep < len(messages) {
		s.sessions[sessionID] = messages[:keep]
	}
	return nil
}
