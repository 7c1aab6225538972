// Package warehouse picks the query.Connector for the configured driver.
// There is no fallback between drivers: a failing postgres connection is a
// startup error, never a silent switch to fixture data.
package warehouse

import (
	"fmt"
	"log/slog"

	"github.com/sqlagent/sqlagent/internal/config"
	"github.com/sqlagent/sqlagent/internal/query"
	"github.com/sqlagent/sqlagent/internal/query/duckdb"
	"github.com/sqlagent/sqlagent/internal/query/fixture"
	"github.com/sqlagent/sqlagent/internal/query/sqldb"
	"github.com/sqlagent/sqlagent/internal/storage"
)

// NewConnector returns an unconnected Connector; store may be nil unless the
// duckdb driver loads its dataset from an object key.
func NewConnector(cfg config.WarehouseConfig, store storage.ObjectStore, logger *slog.Logger) (query.Connector, error) {
	switch cfg.Driver {
	case config.DriverFixture:
		return fixture.NewConnector(nil), nil
	case config.DriverPostgres:
		return sqldb.NewConnector(config.DriverPostgres, dbConfig(sqldb.DriverPGX, cfg)), nil
	case config.DriverSQLServer:
		return sqldb.NewConnector(config.DriverSQLServer, dbConfig(sqldb.DriverSQLServer, cfg)), nil
	case config.DriverDuckDB:
		if cfg.DatasetObjectKey != "" && store == nil {
			return nil, fmt.Errorf("duckdb dataset object key %q needs an object store", cfg.DatasetObjectKey)
		}
		return duckdb.NewConnector(duckdb.Options{
			DatasetPath:      cfg.DatasetPath,
			DatasetObjectKey: cfg.DatasetObjectKey,
			Store:            store,
			Logger:           logger,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported warehouse driver %q", cfg.Driver)
	}
}

func dbConfig(driver string, cfg config.WarehouseConfig) sqldb.DBConfig {
	return sqldb.DBConfig{
		Driver:          driver,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
}
