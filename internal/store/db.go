package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Pool limits sized for the engine's access pattern: whole-aggregate reads
// per open project plus short bursts of async persists, not a
// request-per-core web workload.
const (
	maxOpenConns    = 8
	maxIdleConns    = 4
	connMaxLifetime = time.Hour
	connMaxIdleTime = 10 * time.Minute
)

// Open connects through the pgx stdlib driver and verifies the connection
// before handing the pool out.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
