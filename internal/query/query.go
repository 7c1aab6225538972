// Package query defines the warehouse connection contract and the bounded
// executor that every agent-generated statement passes through.
package query

import (
	"context"
	"time"
)

// TableName is the only relation the agent is expected to query.
const TableName = "NETFLIX_MOVIES"

// DefaultMaxRows caps result sets when no explicit limit is configured.
const DefaultMaxRows = 1000

type Row []any

type Result struct {
	Columns  []string
	Rows     []Row
	Duration time.Duration
}

func (r Result) RowCount() int {
	return len(r.Rows)
}

// Conn is a handle to a warehouse that can hand out cursors. Implementations
// must be safe for use by concurrent sessions.
type Conn interface {
	OpenCursor(ctx context.Context) (Cursor, error)
}

// Cursor runs exactly one statement and is released with Close.
type Cursor interface {
	Execute(ctx context.Context, statement string) error
	Columns() []string
	// FetchMany returns at most n rows; fewer means the result is exhausted.
	FetchMany(ctx context.Context, n int) ([]Row, error)
	Close() error
}

// Connector builds the Conn for one configured warehouse driver.
type Connector interface {
	Name() string
	Connect(ctx context.Context) (Conn, error)
	Close() error
}

// NormalizeValues converts driver-specific scan values into JSON friendly ones.
func NormalizeValues(values []any) Row {
	normalized := make(Row, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case time.Time:
			normalized[i] = typed.UTC().Format(time.RFC3339Nano)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
