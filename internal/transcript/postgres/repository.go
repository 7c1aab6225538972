// Package postgres stores conversation transcripts in the conversation_turn
// table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sqlagent/sqlagent/internal/transcript"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping transcript db: %w", err)
	}
	return nil
}

func (r *Repository) Append(ctx context.Context, turn transcript.Turn) error {
	if strings.TrimSpace(turn.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	query := `
INSERT INTO conversation_turn (
  session_id, principal, utterance, generated_sql, row_count,
  final_state, error_kind, error_message, is_retry, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))`
	var createdAt any
	if !turn.CreatedAt.IsZero() {
		createdAt = turn.CreatedAt.UTC()
	}
	if _, err := r.db.ExecContext(ctx, query,
		turn.SessionID,
		turn.Principal,
		turn.Utterance,
		turn.SQL,
		turn.RowCount,
		turn.FinalState,
		turn.ErrorKind,
		turn.Error,
		turn.Retry,
		createdAt,
	); err != nil {
		return fmt.Errorf("append conversation turn: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, sessionID string, limit int) ([]transcript.Turn, error) {
	const columns = `turn_id, session_id, principal, utterance, generated_sql, row_count,
  final_state, error_kind, error_message, is_retry, created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+columns+`
FROM (
  SELECT `+columns+`
  FROM conversation_turn
  WHERE session_id = $1
  ORDER BY turn_id DESC
  LIMIT $2
) recent
ORDER BY turn_id ASC`, sessionID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+columns+`
FROM conversation_turn
WHERE session_id = $1
ORDER BY turn_id ASC`, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("list conversation turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]transcript.Turn, 0)
	for rows.Next() {
		var turn transcript.Turn
		if err := rows.Scan(
			&turn.ID,
			&turn.SessionID,
			&turn.Principal,
			&turn.Utterance,
			&turn.SQL,
			&turn.RowCount,
			&turn.FinalState,
			&turn.ErrorKind,
			&turn.Error,
			&turn.Retry,
			&turn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation turns: %w", err)
	}
	return turns, nil
}
