// Package history is the conversation-history boundary. The orchestrator
// hands it the ordered, immutable transcript of a finished session; how
// the transcript is synchronized or merged remotely is out of scope here.
package history

import (
	"context"
	"sync"
	"time"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEvent is one finalized utterance. Appended, never mutated.
type TranscriptEvent struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Store persists the transcript of one session.
type Store interface {
	SaveSession(ctx context.Context, sessionID string, events []TranscriptEvent) error
}

// MemoryStore keeps transcripts in process memory. Used in tests and as
// the fallback when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]TranscriptEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]TranscriptEvent)}
}

// SaveSession stores a copy of the transcript. Saving the same session
// again replaces the previous copy.
func (s *MemoryStore) SaveSession(ctx context.Context, sessionID string, events []TranscriptEvent) error {
	cp := make([]TranscriptEvent, len(events))
	copy(cp, events)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = cp
	return nil
}

// Session returns the stored transcript for a session, or nil.
func (s *MemoryStore) Session(sessionID string) []TranscriptEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	cp := make([]TranscriptEvent, len(events))
	copy(cp, events)
	return cp
}
