package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sqlagent/sqlagent/internal/transcript"
)

var turnColumns = []string{
	"turn_id", "session_id", "principal", "utterance", "generated_sql", "row_count",
	"final_state", "error_kind", "error_message", "is_retry", "created_at",
}

func TestAppendInsertsTurn(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO conversation_turn`).
		WithArgs("s1", "analyst", "Indian TV shows", "SELECT title FROM NETFLIX_MOVIES", 20, "formatting_result", "", "", false, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Append(context.Background(), transcript.Turn{
		SessionID:  "s1",
		Principal:  "analyst",
		Utterance:  "Indian TV shows",
		SQL:        "SELECT title FROM NETFLIX_MOVIES",
		RowCount:   20,
		FinalState: "formatting_result",
		CreatedAt:  at,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestAppendDefaultsCreatedAtInDatabase(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(`COALESCE\(\$10, now\(\)\)`).
		WithArgs("s1", "", "count them", "", 0, "handled_error", "execution_error", "database error: boom", true, nil).
		WillReturnResult(sqlmock.NewResult(2, 1))

	err := repo.Append(context.Background(), transcript.Turn{
		SessionID:  "s1",
		Utterance:  "count them",
		FinalState: "handled_error",
		ErrorKind:  "execution_error",
		Error:      "database error: boom",
		Retry:      true,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestAppendRequiresSessionID(t *testing.T) {
	db, mock := newSQLMock(t)
	if err := NewRepository(db).Append(context.Background(), transcript.Turn{}); err == nil {
		t.Fatal("Append() expected error")
	}
	assertSQLMock(t, mock)
}

func TestListWithLimitReturnsChronologicalTail(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`ORDER BY turn_id DESC\s+LIMIT \$2\s+\) recent\s+ORDER BY turn_id ASC`).
		WithArgs("s1", 2).
		WillReturnRows(sqlmock.NewRows(turnColumns).
			AddRow(int64(4), "s1", "", "shows from India", "SELECT title FROM NETFLIX_MOVIES", 12, "formatting_result", "", "", false, at).
			AddRow(int64(5), "s1", "", "count them", "SELECT COUNT(*) FROM NETFLIX_MOVIES", 1, "formatting_result", "", "", false, at.Add(time.Minute)))

	turns, err := repo.List(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(turns) != 2 || turns[0].ID != 4 || turns[1].Utterance != "count them" {
		t.Fatalf("List() = %#v", turns)
	}
	assertSQLMock(t, mock)
}

func TestListWithoutLimitAndErrors(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(`FROM conversation_turn\s+WHERE session_id = \$1\s+ORDER BY turn_id ASC`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(turnColumns))
	turns, err := repo.List(context.Background(), "s1", 0)
	if err != nil || len(turns) != 0 {
		t.Fatalf("List() = %#v, %v", turns, err)
	}

	mock.ExpectQuery(`FROM conversation_turn`).WithArgs("s2").WillReturnError(errors.New("relation does not exist"))
	if _, err := repo.List(context.Background(), "s2", 0); err == nil {
		t.Fatal("List() expected error")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
