// Package memory keeps the per-session record of answered questions that is
// fed back into prompts as conversation history.
package memory

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is how many recent entries a prompt sees.
const DefaultWindow = 3

type Entry struct {
	Utterance  string    `json:"utterance"`
	SQL        string    `json:"sql"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Memory is owned by exactly one session. Recent returns entries oldest
// first; Reset is idempotent.
type Memory interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, n int) ([]Entry, error)
	Reset(ctx context.Context) error
}

// Log is the in-process Memory.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

func NewLog() *Log {
	return &Log{now: time.Now}
}

func (l *Log) Record(_ context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = l.now().UTC()
	}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *Log) Recent(_ context.Context, n int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return tail(l.entries, n), nil
}

func (l *Log) Reset(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return nil
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func tail(entries []Entry, n int) []Entry {
	if n <= 0 || len(entries) == 0 {
		return []Entry{}
	}
	start := len(entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(entries)-start)
	copy(out, entries[start:])
	return out
}
