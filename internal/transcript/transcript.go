// Package transcript persists the user-visible record of conversation turns
// so a chat can be saved and reloaded outside the process.
package transcript

import (
	"context"
	"sync"
	"time"
)

type Turn struct {
	ID         int64     `json:"id,omitempty"`
	SessionID  string    `json:"session_id"`
	Principal  string    `json:"principal,omitempty"`
	Utterance  string    `json:"utterance"`
	SQL        string    `json:"sql,omitempty"`
	RowCount   int       `json:"row_count"`
	FinalState string    `json:"final_state"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Retry      bool      `json:"retry,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store returns List results oldest first; limit <= 0 means all turns.
type Store interface {
	Append(ctx context.Context, turn Turn) error
	List(ctx context.Context, sessionID string, limit int) ([]Turn, error)
}

// MemoryStore keeps turns in process. It backs sessions when no database
// store is configured.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	turns  map[string][]Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: map[string][]Turn{}}
}

func (s *MemoryStore) Append(_ context.Context, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	turn.ID = s.nextID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return nil
}

func (s *MemoryStore) List(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns[sessionID]
	start := 0
	if limit > 0 && len(turns) > limit {
		start = len(turns) - limit
	}
	out := make([]Turn, len(turns)-start)
	copy(out, turns[start:])
	return out, nil
}

// Forget drops every turn of a session.
func (s *MemoryStore) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, sessionID)
}
