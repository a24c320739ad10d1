package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"erp-nlquery/internal/common/config"
)

// ApplicationName tags sessions in pg_stat_activity.
const ApplicationName = "erp-nlquery"

// PostgresClient is a pooled handle to the ERP (or audit) database.
type PostgresClient struct {
	DB *sql.DB
}

// DSN extends the configured connection string with the session settings the
// service relies on. search_path is pinned so templates can use bare table
// names.
func DSN(cfg config.PostgresConfig) string {
	dsn := cfg.GetDSN() + " application_name=" + ApplicationName + " connect_timeout=5"
	if cfg.Schema != "" {
		dsn += " search_path=" + cfg.Schema
	}
	return dsn
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// Ping satisfies the readiness probe's Pinger.
func (c *PostgresClient) Ping(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return fmt.Errorf("postgres: not connected")
	}
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c != nil && c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
