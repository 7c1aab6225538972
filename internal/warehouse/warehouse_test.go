package warehouse

import (
	"context"
	"testing"

	"github.com/sqlagent/sqlagent/internal/config"
)

func TestNewConnectorSelectsDriver(t *testing.T) {
	cases := map[string]string{
		config.DriverFixture:   "fixture",
		config.DriverPostgres:  "postgres",
		config.DriverSQLServer: "sqlserver",
		config.DriverDuckDB:    "duckdb",
	}
	for driver, want := range cases {
		connector, err := NewConnector(config.WarehouseConfig{Driver: driver, DSN: "x", DatasetPath: "netflix.csv"}, nil, nil)
		if err != nil {
			t.Fatalf("NewConnector(%q) error = %v", driver, err)
		}
		if connector.Name() != want {
			t.Fatalf("NewConnector(%q).Name() = %q, want %q", driver, connector.Name(), want)
		}
	}
}

func TestNewConnectorRejectsUnknownDriver(t *testing.T) {
	if _, err := NewConnector(config.WarehouseConfig{Driver: "snowflake"}, nil, nil); err == nil {
		t.Fatal("NewConnector() expected error for unknown driver")
	}
}

func TestDuckDBObjectKeyNeedsStore(t *testing.T) {
	_, err := NewConnector(config.WarehouseConfig{Driver: config.DriverDuckDB, DatasetObjectKey: "datasets/netflix.parquet"}, nil, nil)
	if err == nil {
		t.Fatal("NewConnector() expected error without object store")
	}
}

func TestFixtureConnectorConnects(t *testing.T) {
	connector, err := NewConnector(config.WarehouseConfig{Driver: config.DriverFixture}, nil, nil)
	if err != nil {
		t.Fatalf("NewConnector() error = %v", err)
	}
	conn, err := connector.Connect(context.Background())
	if err != nil || conn == nil {
		t.Fatalf("Connect() = %v, %v", conn, err)
	}
	if err := connector.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
