package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/sqlagent/sqlagent/internal/memory"
	"github.com/sqlagent/sqlagent/internal/observability"
	"github.com/sqlagent/sqlagent/internal/transcript"
)

const (
	defaultTTL             = 30 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
)

type ManagerOptions struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	// NewMemory returns the memory owned by the session with the given id.
	NewMemory func(sessionID string) memory.Memory
	// NewRunner builds the per-session orchestrator over that memory.
	NewRunner func(mem memory.Memory) (Runner, error)
	Store     transcript.Store
	Logger    *slog.Logger
}

// Manager hands out sessions and expires the ones that go idle for TTL.
type Manager struct {
	sessions  *cache.Cache
	newMemory func(string) memory.Memory
	newRunner func(memory.Memory) (Runner, error)
	store     transcript.Store
	logger    *slog.Logger
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.NewRunner == nil {
		return nil, fmt.Errorf("session runner factory is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	cleanup := opts.CleanupInterval
	if cleanup <= 0 {
		cleanup = defaultCleanupInterval
	}
	newMemory := opts.NewMemory
	if newMemory == nil {
		newMemory = func(string) memory.Memory { return memory.NewLog() }
	}

	m := &Manager{
		sessions:  cache.New(ttl, cleanup),
		newMemory: newMemory,
		newRunner: opts.NewRunner,
		store:     opts.Store,
		logger:    observability.OrDiscard(opts.Logger),
	}
	m.sessions.OnEvicted(func(id string, _ interface{}) {
		observability.SetActiveSessions(m.sessions.ItemCount())
		m.logger.Debug("session evicted", slog.String("session_id", id))
	})
	return m, nil
}

func (m *Manager) Create(ctx context.Context, principal string) (*Session, error) {
	id := uuid.NewString()
	mem := m.newMemory(id)
	runner, err := m.newRunner(mem)
	if err != nil {
		return nil, fmt.Errorf("build session runner: %w", err)
	}
	s, err := New(Options{
		ID:        id,
		Principal: principal,
		Memory:    mem,
		Runner:    runner,
		Store:     m.store,
		Logger:    m.logger,
	})
	if err != nil {
		return nil, err
	}
	m.sessions.Set(id, s, cache.DefaultExpiration)
	observability.SetActiveSessions(m.sessions.ItemCount())
	m.logger.InfoContext(ctx, "session created",
		append(observability.LogAttrs(observability.ContextWithSessionID(ctx, id)), slog.String("principal", principal))...)
	return s, nil
}

// Get returns the session and refreshes its expiry. A session bound to a
// different principal is reported as not found.
func (m *Manager) Get(id, principal string) (*Session, error) {
	value, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	s := value.(*Session)
	if s.principal != principal {
		return nil, ErrNotFound
	}
	m.sessions.Set(id, s, cache.DefaultExpiration)
	return s, nil
}

// Delete resets the session's memory and forgets it.
func (m *Manager) Delete(ctx context.Context, id, principal string) error {
	s, err := m.Get(id, principal)
	if err != nil {
		return err
	}
	if err := s.Reset(ctx); err != nil {
		return err
	}
	m.sessions.Delete(id)
	return nil
}

func (m *Manager) Count() int {
	return m.sessions.ItemCount()
}
