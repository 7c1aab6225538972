// Package agent runs one conversational turn: generate a statement, execute
// it through the guarded executor, and stop in a result or an error.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sqlagent/sqlagent/internal/guard"
	"github.com/sqlagent/sqlagent/internal/nl2sql"
	"github.com/sqlagent/sqlagent/internal/observability"
	"github.com/sqlagent/sqlagent/internal/query"
)

// MaxVisits bounds the nodes entered per turn.
const MaxVisits = 3

const (
	ErrKindGuardViolation = "guard_violation"
	ErrKindExecution      = "execution_error"
	ErrKindInternal       = "internal"
)

type Generator interface {
	Generate(ctx context.Context, utterance, previousError string) (string, error)
}

type Executor interface {
	Execute(ctx context.Context, conn query.Conn, candidate string) (query.Result, error)
}

type Input struct {
	Utterance     string
	PreviousError string
}

// Outcome is the projection of the terminal state. Result and error are
// mutually exclusive.
type Outcome struct {
	Utterance     string
	SQL           string
	Columns       []string
	Rows          []query.Row
	Elapsed       time.Duration
	Err           error
	ErrKind       string
	PreviousError string
	Final         string
	Path          []string
}

func (o Outcome) Succeeded() bool { return o.Err == nil && o.Final == StateFormatting }

type Orchestrator struct {
	generator Generator
	executor  Executor
	conn      query.Conn
	logger    *slog.Logger
}

func New(generator Generator, executor Executor, conn query.Conn, logger *slog.Logger) (*Orchestrator, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	return &Orchestrator{generator: generator, executor: executor, conn: conn, logger: observability.OrDiscard(logger)}, nil
}

// Run drives a single turn. It never retries; a failed execution only
// surfaces PreviousError for the caller's next invocation.
func (o *Orchestrator) Run(ctx context.Context, in Input) Outcome {
	var state State = Generating{Utterance: in.Utterance, PreviousError: in.PreviousError}
	path := make([]string, 0, MaxVisits)
	for visits := 0; visits < MaxVisits; visits++ {
		path = append(path, state.Name())
		next, done := o.visit(ctx, state)
		if done {
			break
		}
		state = next
	}
	outcome := project(state, path)
	outcome.Utterance = in.Utterance

	observability.ObserveTurn(outcome.Final)
	attrs := append(observability.LogAttrs(ctx),
		slog.String("final_state", outcome.Final),
		slog.Any("path", outcome.Path))
	if outcome.Err != nil {
		attrs = append(attrs, slog.String("error_kind", outcome.ErrKind))
	}
	o.logger.InfoContext(ctx, "turn completed", attrs...)
	return outcome
}

func (o *Orchestrator) visit(ctx context.Context, state State) (State, bool) {
	switch s := state.(type) {
	case Generating:
		sql, err := o.generator.Generate(ctx, s.Utterance, s.PreviousError)
		if err != nil {
			return Errored{Utterance: s.Utterance, Err: err}, false
		}
		return Executing{Utterance: s.Utterance, SQL: sql}, false
	case Executing:
		result, err := o.executor.Execute(ctx, o.conn, s.SQL)
		if err != nil {
			errored := Errored{Utterance: s.Utterance, SQL: s.SQL, Err: err}
			var execErr *query.ExecutionError
			if errors.As(err, &execErr) {
				errored.PreviousError = err.Error()
			}
			return errored, false
		}
		return Formatting{Utterance: s.Utterance, SQL: s.SQL, Result: result}, false
	default:
		return state, true
	}
}

func project(state State, path []string) Outcome {
	outcome := Outcome{Final: state.Name(), Path: path}
	switch s := state.(type) {
	case Formatting:
		outcome.SQL = s.SQL
		outcome.Columns = s.Result.Columns
		outcome.Rows = s.Result.Rows
		outcome.Elapsed = s.Result.Duration
	case Errored:
		outcome.SQL = s.SQL
		outcome.Err = s.Err
		outcome.ErrKind = ErrorKind(s.Err)
		outcome.PreviousError = s.PreviousError
	default:
		// Generating or Executing after MaxVisits cannot happen with the
		// current graph; report it rather than loop.
		outcome.Final = StateErrored
		outcome.Err = fmt.Errorf("turn stopped in state %s", state.Name())
		outcome.ErrKind = ErrKindInternal
	}
	return outcome
}

// ErrorKind classifies err for callers and metrics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if kind := nl2sql.KindOf(err); kind != "" {
		return string(kind)
	}
	var violation *guard.Violation
	if errors.As(err, &violation) {
		return ErrKindGuardViolation
	}
	var execErr *query.ExecutionError
	if errors.As(err, &execErr) {
		return ErrKindExecution
	}
	return ErrKindInternal
}
