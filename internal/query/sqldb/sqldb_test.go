package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/sqlagent/sqlagent/internal/query"
)

func TestCursorFetchesInBatchesAndClosesRows(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT title, release_year FROM NETFLIX_MOVIES`)).
		WillReturnRows(sqlmock.NewRows([]string{"title", "release_year"}).
			AddRow([]byte("Dick Johnson Is Dead"), int64(2020)).
			AddRow("Blood & Water", int64(2021)).
			AddRow("Ganglands", int64(2021))).
		RowsWillBeClosed()

	cur, err := NewConn(db).OpenCursor(context.Background())
	if err != nil {
		t.Fatalf("OpenCursor() error = %v", err)
	}
	if err := cur.Execute(context.Background(), "SELECT title, release_year FROM NETFLIX_MOVIES"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := cur.Columns(); len(got) != 2 || got[1] != "release_year" {
		t.Fatalf("Columns() = %v", got)
	}

	first, err := cur.FetchMany(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchMany() error = %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("len(first) = %d, want 2", len(first))
	}
	if first[0][0] != "Dick Johnson Is Dead" {
		t.Fatalf("first[0][0] = %#v, want normalized string", first[0][0])
	}
	rest, err := cur.FetchMany(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchMany() error = %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("len(rest) = %d, want 1", len(rest))
	}
	if err := cur.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestExecutorOverSQLConnTruncates(t *testing.T) {
	db, mock := newSQLMock(t)
	rows := sqlmock.NewRows([]string{"title"})
	for _, title := range []string{"a", "b", "c", "d"} {
		rows.AddRow(title)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT title FROM NETFLIX_MOVIES`)).WillReturnRows(rows).RowsWillBeClosed()

	result, err := query.NewExecutor(3, time.Second, nil).Execute(context.Background(), NewConn(db), "SELECT title FROM NETFLIX_MOVIES")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount() != 3 {
		t.Fatalf("RowCount() = %d, want 3", result.RowCount())
	}
	assertSQLMock(t, mock)
}

func TestExecutorOverSQLConnWrapsDriverError(t *testing.T) {
	db, mock := newSQLMock(t)
	driverErr := errors.New(`pq: column "durations" does not exist`)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT durations FROM NETFLIX_MOVIES`)).WillReturnError(driverErr)

	_, err := query.NewExecutor(3, 0, nil).Execute(context.Background(), NewConn(db), "SELECT durations FROM NETFLIX_MOVIES")
	var execErr *query.ExecutionError
	if !errors.As(err, &execErr) || !errors.Is(err, driverErr) {
		t.Fatalf("Execute() error = %v, want wrapped driver error", err)
	}
	assertSQLMock(t, mock)
}

func TestHealthCheckPings(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectPing()
	if err := NewConn(db).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestOpenRequiresDriverAndDSN(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{DSN: "postgres://x"}); err == nil {
		t.Fatal("expected error for empty driver")
	}
	if _, err := Open(context.Background(), DBConfig{Driver: DriverPGX}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestConnectorCloseWithoutConnect(t *testing.T) {
	c := NewConnector("postgres", DBConfig{Driver: DriverPGX})
	if c.Name() != "postgres" {
		t.Fatalf("Name() = %q", c.Name())
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect() expected error for empty DSN")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp), sqlmock.MonitorPingsOption(true))
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
