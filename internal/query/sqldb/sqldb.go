// Package sqldb adapts any database/sql driver to the query cursor contract.
// The postgres (pgx) and SQL Server drivers are registered here.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/sqlagent/sqlagent/internal/query"
)

// database/sql driver names.
const (
	DriverPGX       = "pgx"
	DriverSQLServer = "sqlserver"
)

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open opens a pool and verifies it with a ping.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("sql driver is required")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s dsn is required", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.Driver, err)
	}
	return db, nil
}

// Conn hands out cursors backed by dedicated pool connections.
type Conn struct {
	db *sql.DB
}

func NewConn(db *sql.DB) *Conn {
	return &Conn{db: db}
}

func (c *Conn) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse: %w", err)
	}
	return nil
}

func (c *Conn) OpenCursor(ctx context.Context) (query.Cursor, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &cursor{conn: conn}, nil
}

type cursor struct {
	conn    *sql.Conn
	rows    *sql.Rows
	columns []string
}

func (c *cursor) Execute(ctx context.Context, statement string) error {
	if c.rows != nil {
		return fmt.Errorf("cursor already executed")
	}
	rows, err := c.conn.QueryContext(ctx, statement)
	if err != nil {
		return err
	}
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return fmt.Errorf("query columns: %w", err)
	}
	c.rows = rows
	c.columns = columns
	return nil
}

func (c *cursor) Columns() []string {
	return c.columns
}

func (c *cursor) FetchMany(_ context.Context, n int) ([]query.Row, error) {
	if c.rows == nil {
		return nil, fmt.Errorf("cursor has no active statement")
	}
	out := make([]query.Row, 0)
	for len(out) < n && c.rows.Next() {
		values := make([]any, len(c.columns))
		scanTargets := make([]any, len(c.columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := c.rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, query.NormalizeValues(values))
	}
	if err := c.rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (c *cursor) Close() error {
	var rowsErr error
	if c.rows != nil {
		rowsErr = c.rows.Close()
		c.rows = nil
	}
	if err := c.conn.Close(); err != nil {
		return err
	}
	return rowsErr
}

// Connector opens one pool for the lifetime of the process.
type Connector struct {
	name string
	cfg  DBConfig

	mu sync.Mutex
	db *sql.DB
}

func NewConnector(name string, cfg DBConfig) *Connector {
	return &Connector{name: name, cfg: cfg}
}

func (c *Connector) Name() string { return c.name }

func (c *Connector) Connect(ctx context.Context) (query.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		db, err := Open(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		c.db = db
	}
	return NewConn(c.db), nil
}

func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
