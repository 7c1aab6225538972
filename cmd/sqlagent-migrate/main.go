package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqlagent/sqlagent/internal/config"
	"github.com/sqlagent/sqlagent/internal/migrations"
	"github.com/sqlagent/sqlagent/internal/query/sqldb"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	dsnFlag := flag.String("dsn", "", "postgres DSN; defaults to SQLAGENT_TRANSCRIPT_DSN, then SQLAGENT_WAREHOUSE_DSN")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("sqlagent-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	dsn := *dsnFlag
	if dsn == "" {
		dsn = cfg.Transcript.DSN
	}
	if dsn == "" && cfg.Warehouse.Driver == config.DriverPostgres {
		dsn = cfg.Warehouse.DSN
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "a postgres DSN is required (-dsn, SQLAGENT_TRANSCRIPT_DSN or SQLAGENT_WAREHOUSE_DSN)")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sqldb.Open(ctx, sqldb.DBConfig{Driver: sqldb.DriverPGX, DSN: dsn})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner()
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case "down":
		applied, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", applied)
	case "status":
		states, err := runner.Status(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration status failed: %v\n", err)
			os.Exit(1)
		}
		for _, state := range states {
			mark := "pending"
			if state.Applied {
				mark = "applied"
			}
			fmt.Printf("%06d  %-8s %s\n", state.Version, mark, state.Name)
		}
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}
