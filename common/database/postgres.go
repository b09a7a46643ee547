package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"coldtrack-sync/common/config"

	"github.com/NotCoffee418/dbmigrator"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// NewPostgresDB opens and pings the warehouse connection pool
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate applies the embedded warehouse migrations
func Migrate(db *sql.DB) {
	dbmigrator.SetDatabaseType(dbmigrator.PostgreSQL)
	<-dbmigrator.MigrateUpCh(db, migrationFS, "migrations")
}

// Close closes the pool if open
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
