package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sqlagent/sqlagent/internal/guard"
	"github.com/sqlagent/sqlagent/internal/observability"
)

// ExecutionError wraps any failure raised by the warehouse driver while
// running an already validated statement.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("database error: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Executor validates statements with the guard and runs them with a row cap.
// Results over MaxRows are truncated; the caller is not told, only the log
// and the truncation metric record it.
type Executor struct {
	MaxRows int
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewExecutor(maxRows int, timeout time.Duration, logger *slog.Logger) *Executor {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Executor{MaxRows: maxRows, Timeout: timeout, Logger: observability.OrDiscard(logger)}
}

func (e *Executor) Execute(ctx context.Context, conn Conn, candidate string) (Result, error) {
	logger := observability.OrDiscard(e.Logger)
	validated, err := guard.Validate(candidate)
	if err != nil {
		var violation *guard.Violation
		if errors.As(err, &violation) {
			observability.IncrementGuardRejection(string(violation.Kind))
		}
		logger.ErrorContext(ctx, "query validation failed",
			append(observability.LogAttrs(ctx), slog.String("error", err.Error()), slog.String("sql", candidate))...)
		return Result{}, err
	}
	if conn == nil {
		return Result{}, &ExecutionError{Err: fmt.Errorf("no warehouse connection configured")}
	}

	maxRows := e.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	logger.DebugContext(ctx, "executing validated query", append(observability.LogAttrs(ctx), slog.String("sql", validated.String()))...)
	start := time.Now()
	result, err := e.run(ctx, conn, validated.String(), maxRows)
	elapsed := time.Since(start)
	if err != nil {
		observability.ObserveQuery("error", elapsed)
		logger.ErrorContext(ctx, "query execution failed", append(observability.LogAttrs(ctx), slog.String("error", err.Error()))...)
		return Result{}, &ExecutionError{Err: err}
	}
	observability.ObserveQuery("ok", elapsed)
	result.Duration = elapsed

	switch {
	case len(result.Rows) == 0:
		logger.DebugContext(ctx, "query returned no rows", observability.LogAttrs(ctx)...)
	case len(result.Rows) > maxRows:
		observability.IncrementResultTruncation()
		logger.WarnContext(ctx, "query result truncated",
			append(observability.LogAttrs(ctx), slog.Int("fetched_rows", len(result.Rows)), slog.Int("max_rows", maxRows))...)
		result.Rows = result.Rows[:maxRows]
	default:
		logger.InfoContext(ctx, "query executed",
			append(observability.LogAttrs(ctx), slog.Int("rows", len(result.Rows)), slog.String("duration", elapsed.String()))...)
	}
	return result, nil
}

func (e *Executor) run(ctx context.Context, conn Conn, statement string, maxRows int) (result Result, err error) {
	cursor, err := conn.OpenCursor(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("open cursor: %w", err)
	}
	defer func() {
		if closeErr := cursor.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close cursor: %w", closeErr)
		}
	}()

	if err := cursor.Execute(ctx, statement); err != nil {
		return Result{}, err
	}
	rows, err := cursor.FetchMany(ctx, maxRows+1)
	if err != nil {
		return Result{}, err
	}
	if rows == nil {
		rows = []Row{}
	}
	return Result{Columns: cursor.Columns(), Rows: rows}, nil
}
