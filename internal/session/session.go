// Package session owns everything that belongs to one conversation: its
// memory, its generator and orchestrator, the pending correction error and
// the turn transcript. Nothing here is shared between sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sqlagent/sqlagent/internal/agent"
	"github.com/sqlagent/sqlagent/internal/memory"
	"github.com/sqlagent/sqlagent/internal/observability"
	"github.com/sqlagent/sqlagent/internal/transcript"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrNothingToRetry = errors.New("no failed query to retry")
	ErrRetryExhausted = errors.New("retry already used for this error")
)

type Runner interface {
	Run(ctx context.Context, in agent.Input) agent.Outcome
}

type Options struct {
	ID        string
	Principal string
	Memory    memory.Memory
	Runner    Runner
	// Store additionally persists turns; nil keeps them in the session only.
	Store  transcript.Store
	Logger *slog.Logger
}

type Session struct {
	id        string
	principal string
	createdAt time.Time
	memory    memory.Memory
	runner    Runner
	store     transcript.Store
	logger    *slog.Logger
	now       func() time.Time

	mu             sync.Mutex
	pendingError   string
	pendingInput   string
	retryAvailable bool
	turns          []transcript.Turn
	last           *agent.Outcome
	lastActive     time.Time
}

// Status is a point-in-time view of a session.
type Status struct {
	ID             string    `json:"session_id"`
	Principal      string    `json:"principal,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActive     time.Time `json:"last_active"`
	Turns          int       `json:"turns"`
	PendingError   string    `json:"previous_error,omitempty"`
	RetryAvailable bool      `json:"retry_available"`
}

func New(opts Options) (*Session, error) {
	if strings.TrimSpace(opts.ID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if opts.Memory == nil {
		return nil, fmt.Errorf("session memory is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("session runner is required")
	}
	now := time.Now().UTC()
	return &Session{
		id:         opts.ID,
		principal:  opts.Principal,
		createdAt:  now,
		memory:     opts.Memory,
		runner:     opts.Runner,
		store:      opts.Store,
		logger:     observability.OrDiscard(opts.Logger),
		now:        time.Now,
		lastActive: now,
	}, nil
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Principal() string { return s.principal }

// Ask runs a new turn. Any pending execution error from the previous turn is
// handed to the generator once and then dropped.
func (s *Session) Ask(ctx context.Context, utterance string) agent.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.pendingError
	return s.run(ctx, strings.TrimSpace(utterance), previous, false)
}

// Retry re-runs the last failed utterance with its execution error. Only a
// failure from Ask can be retried, and only once.
func (s *Session) Retry(ctx context.Context) (agent.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingError == "" {
		return agent.Outcome{}, ErrNothingToRetry
	}
	if !s.retryAvailable {
		return agent.Outcome{}, ErrRetryExhausted
	}
	return s.run(ctx, s.pendingInput, s.pendingError, true), nil
}

func (s *Session) run(ctx context.Context, utterance, previousError string, retry bool) agent.Outcome {
	ctx = observability.ContextWithSessionID(ctx, s.id)
	s.pendingError, s.pendingInput, s.retryAvailable = "", "", false

	outcome := s.runner.Run(ctx, agent.Input{Utterance: utterance, PreviousError: previousError})
	if outcome.PreviousError != "" {
		s.pendingError = outcome.PreviousError
		s.pendingInput = utterance
		s.retryAvailable = !retry
	}
	if outcome.Succeeded() {
		last := outcome
		s.last = &last
	}
	s.lastActive = s.now().UTC()
	s.appendTurn(ctx, outcome, retry)
	return outcome
}

func (s *Session) appendTurn(ctx context.Context, outcome agent.Outcome, retry bool) {
	turn := transcript.Turn{
		SessionID:  s.id,
		Principal:  s.principal,
		Utterance:  outcome.Utterance,
		SQL:        outcome.SQL,
		RowCount:   len(outcome.Rows),
		FinalState: outcome.Final,
		ErrorKind:  outcome.ErrKind,
		Retry:      retry,
		CreatedAt:  s.lastActive,
	}
	if outcome.Err != nil {
		turn.Error = outcome.Err.Error()
	}
	s.turns = append(s.turns, turn)
	if s.store == nil {
		return
	}
	if err := s.store.Append(ctx, turn); err != nil {
		s.logger.WarnContext(ctx, "failed to persist conversation turn",
			append(observability.LogAttrs(ctx), slog.String("error", err.Error()))...)
	}
}

// Reset clears conversation memory, the pending error and the in-session
// transcript. Persisted transcript rows are kept.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.memory.Reset(ctx); err != nil {
		return fmt.Errorf("reset session %s: %w", s.id, err)
	}
	s.pendingError, s.pendingInput, s.retryAvailable = "", "", false
	s.turns = nil
	s.last = nil
	s.lastActive = s.now().UTC()
	ctx = observability.ContextWithSessionID(ctx, s.id)
	s.logger.InfoContext(ctx, "session reset", observability.LogAttrs(ctx)...)
	return nil
}

// History returns the last n remembered (utterance, SQL) pairs, oldest first.
func (s *Session) History(ctx context.Context, n int) ([]memory.Entry, error) {
	if n <= 0 {
		n = memory.DefaultWindow
	}
	return s.memory.Recent(ctx, n)
}

// Turns returns the in-session transcript, oldest first.
func (s *Session) Turns() []transcript.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transcript.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// LastResult returns the most recent successful outcome.
func (s *Session) LastResult() (agent.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return agent.Outcome{}, false
	}
	return *s.last, true
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		ID:             s.id,
		Principal:      s.principal,
		CreatedAt:      s.createdAt,
		LastActive:     s.lastActive,
		Turns:          len(s.turns),
		PendingError:   s.pendingError,
		RetryAvailable: s.pendingError != "" && s.retryAvailable,
	}
}
