// Package duckdb serves NETFLIX_MOVIES from a local or object-store dataset
// file through an in-memory DuckDB database.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sqlagent/sqlagent/internal/observability"
	"github.com/sqlagent/sqlagent/internal/query"
	"github.com/sqlagent/sqlagent/internal/query/sqldb"
	"github.com/sqlagent/sqlagent/internal/storage"
)

type Options struct {
	// DatasetPath is a local CSV, Parquet or JSON file.
	DatasetPath string
	// DatasetObjectKey, when set, is downloaded from Store and wins over DatasetPath.
	DatasetObjectKey string
	Store            storage.ObjectStore
	Logger           *slog.Logger
}

type Connector struct {
	opts Options

	mu      sync.Mutex
	db      *sql.DB
	workDir string
}

func NewConnector(opts Options) *Connector {
	opts.Logger = observability.OrDiscard(opts.Logger)
	return &Connector{opts: opts}
}

func (c *Connector) Name() string { return "duckdb" }

func (c *Connector) Connect(ctx context.Context) (query.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return sqldb.NewConn(c.db), nil
	}

	localPath, err := c.resolveDataset(ctx)
	if err != nil {
		c.cleanup()
		return nil, err
	}
	readFn, err := readerFunction(localPath)
	if err != nil {
		c.cleanup()
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		c.cleanup()
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM %s(%s)`, quoteIdent(query.TableName), readFn, quoteString(localPath))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		_ = db.Close()
		c.cleanup()
		return nil, fmt.Errorf("create view %s: %w", query.TableName, err)
	}

	var rows int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(query.TableName))).Scan(&rows); err != nil {
		_ = db.Close()
		c.cleanup()
		return nil, fmt.Errorf("count %s rows: %w", query.TableName, err)
	}
	c.opts.Logger.InfoContext(ctx, "duckdb dataset loaded",
		slog.String("dataset", localPath),
		slog.Int64("rows", rows),
	)
	c.db = db
	return sqldb.NewConn(db), nil
}

func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.db != nil {
		err = c.db.Close()
		c.db = nil
	}
	c.cleanup()
	return err
}

func (c *Connector) resolveDataset(ctx context.Context) (string, error) {
	key := strings.TrimSpace(c.opts.DatasetObjectKey)
	if key == "" {
		if strings.TrimSpace(c.opts.DatasetPath) == "" {
			return "", fmt.Errorf("duckdb dataset path or object key is required")
		}
		if _, err := os.Stat(c.opts.DatasetPath); err != nil {
			return "", fmt.Errorf("stat dataset %q: %w", c.opts.DatasetPath, err)
		}
		return c.opts.DatasetPath, nil
	}
	if c.opts.Store == nil {
		return "", fmt.Errorf("object store is required to load dataset %q", key)
	}

	workDir, err := os.MkdirTemp("", "sqlagent-dataset-")
	if err != nil {
		return "", fmt.Errorf("create dataset temp dir: %w", err)
	}
	c.workDir = workDir

	reader, err := c.opts.Store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get dataset %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	localPath := filepath.Join(workDir, "netflix_movies"+strings.ToLower(filepath.Ext(key)))
	if err := writeFile(localPath, reader); err != nil {
		return "", fmt.Errorf("write local dataset %q: %w", localPath, err)
	}
	return localPath, nil
}

func (c *Connector) cleanup() {
	if c.workDir != "" {
		_ = os.RemoveAll(c.workDir)
		c.workDir = ""
	}
}

func readerFunction(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return "read_parquet", nil
	case ".csv", ".tsv":
		return "read_csv_auto", nil
	case ".json", ".ndjson":
		return "read_json_auto", nil
	default:
		return "", fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
