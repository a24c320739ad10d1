// Package store runs planned queries against PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"
)

var (
	ErrQueryExecutionFailed = errors.New("QUERY_EXECUTION_FAILED")
	ErrQueryTimeout         = errors.New("QUERY_TIMEOUT")
	ErrTableNotAllowed      = errors.New("TABLE_NOT_ALLOWED")
)

// Querier executes a parameterized template.
type Querier interface {
	Execute(ctx context.Context, template string, args []interface{}) (*models.ResultSet, error)
}

// Executor runs templates inside read-only transactions and stops reading
// after the hard row cap, whatever LIMIT the template asked for.
type Executor struct {
	db      *sql.DB
	hardCap int
	timeout time.Duration
	logger  logger.Logger
}

func NewExecutor(db *sql.DB, cfg config.QueryConfig, log logger.Logger) *Executor {
	hardCap := cfg.HardRowCap
	if hardCap <= 0 {
		hardCap = 1000
	}
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{
		db:      db,
		hardCap: hardCap,
		timeout: timeout,
		logger:  logger.Component(log, "executor"),
	}
}

func (e *Executor) Execute(ctx context.Context, template string, args []interface{}) (*models.ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	result, err := e.query(ctx, template, args)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.logger.Error("query timed out", map[string]interface{}{"timeout": e.timeout.String()})
			return nil, fmt.Errorf("%w: %v", ErrQueryTimeout, err)
		}
		e.logger.Error("database query failed", map[string]interface{}{"error": err})
		return nil, fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
	}

	e.logger.Info("query executed successfully", map[string]interface{}{
		"rows":       result.Len(),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return result, nil
}

func (e *Executor) query(ctx context.Context, template string, args []interface{}) (*models.ResultSet, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, template, args...)
	if err != nil {
		return nil, err
	}

	result, err := scanRows(rows, e.hardCap)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if result.Len() == e.hardCap {
		e.logger.Warn("row cap reached, result truncated", map[string]interface{}{"cap": e.hardCap})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

func scanRows(rows *sql.Rows, limit int) (*models.ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := &models.ResultSet{Columns: columns, Rows: []models.Row{}}
	for len(result.Rows) < limit && rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(models.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
