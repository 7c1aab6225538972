// Package fixture is a warehouse driver that answers every statement with the
// same canned rows. It lets the agent run end to end without a database.
package fixture

import (
	"context"
	"fmt"

	"github.com/sqlagent/sqlagent/internal/query"
)

var defaultTitles = []string{
	"Breaking Bad",
	"Stranger Things",
	"The Crown",
	"Money Heist",
	"Dark",
	"Peaky Blinders",
	"The Mandalorian",
	"Squid Game",
	"Wednesday",
	"The Witcher",
	"Ozark",
	"Better Call Saul",
	"Mindhunter",
	"Russian Doll",
	"The Last of Us",
	"Andor",
	"The Last Kingdom",
	"Viking",
	"Game of Thrones",
	"House of Dragons",
}

// Conn returns Columns and Rows for any statement. When Err is set every
// Execute fails with it.
type Conn struct {
	Columns []string
	Rows    []query.Row
	Err     error
}

// Titles is the stock fixture: twenty show titles in a single "title" column.
func Titles() *Conn {
	rows := make([]query.Row, 0, len(defaultTitles))
	for _, title := range defaultTitles {
		rows = append(rows, query.Row{title})
	}
	return &Conn{Columns: []string{"title"}, Rows: rows}
}

func (c *Conn) OpenCursor(context.Context) (query.Cursor, error) {
	return &cursor{conn: c}, nil
}

type cursor struct {
	conn     *Conn
	executed bool
	pos      int
	closed   bool
}

func (c *cursor) Execute(ctx context.Context, _ string) error {
	if c.closed {
		return fmt.Errorf("cursor is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.conn.Err != nil {
		return c.conn.Err
	}
	c.executed = true
	return nil
}

func (c *cursor) Columns() []string {
	return append([]string(nil), c.conn.Columns...)
}

func (c *cursor) FetchMany(_ context.Context, n int) ([]query.Row, error) {
	if !c.executed {
		return nil, fmt.Errorf("cursor has no active statement")
	}
	end := c.pos + n
	if end > len(c.conn.Rows) {
		end = len(c.conn.Rows)
	}
	out := make([]query.Row, 0, end-c.pos)
	for _, row := range c.conn.Rows[c.pos:end] {
		out = append(out, append(query.Row(nil), row...))
	}
	c.pos = end
	return out, nil
}

func (c *cursor) Close() error {
	c.closed = true
	return nil
}

type Connector struct {
	conn *Conn
}

func NewConnector(conn *Conn) *Connector {
	if conn == nil {
		conn = Titles()
	}
	return &Connector{conn: conn}
}

func (c *Connector) Name() string { return "fixture" }

func (c *Connector) Connect(context.Context) (query.Conn, error) {
	return c.conn, nil
}

func (c *Connector) Close() error { return nil }
