package store

import (
	"context"
	"database/sql"
	"fmt"

	"erp-nlquery/internal/common/logger"
)

const columnsQuery = `
	SELECT column_name, data_type, is_nullable, column_default
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`

// Column describes one column of an allowed table.
type Column struct {
	Name     string  `json:"column_name"`
	DataType string  `json:"data_type"`
	Nullable bool    `json:"is_nullable"`
	Default  *string `json:"column_default,omitempty"`
}

// SchemaInspector exposes column metadata for an allow list of tables.
type SchemaInspector struct {
	db      *sql.DB
	schema  string
	allowed []string
	logger  logger.Logger
}

func NewSchemaInspector(db *sql.DB, schema string, allowed []string, log logger.Logger) *SchemaInspector {
	if schema == "" {
		schema = "public"
	}
	return &SchemaInspector{
		db:      db,
		schema:  schema,
		allowed: append([]string(nil), allowed...),
		logger:  logger.Component(log, "schema-inspector"),
	}
}

func (s *SchemaInspector) isAllowed(table string) bool {
	for _, t := range s.allowed {
		if t == table {
			return true
		}
	}
	return false
}

// TableSchema returns the columns of table, or ErrTableNotAllowed.
func (s *SchemaInspector) TableSchema(ctx context.Context, table string) ([]Column, error) {
	if !s.isAllowed(table) {
		s.logger.Warn("table not in allowed list", map[string]interface{}{"table": table})
		return nil, fmt.Errorf("%w: %s", ErrTableNotAllowed, table)
	}

	rows, err := s.db.QueryContext(ctx, columnsQuery, s.schema, table)
	if err != nil {
		return nil, fmt.Errorf("%w: schema for %s: %v", ErrQueryExecutionFailed, table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			col      Column
			nullable string
			def      sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &def); err != nil {
			return nil, fmt.Errorf("%w: scan schema for %s: %v", ErrQueryExecutionFailed, table, err)
		}
		col.Nullable = nullable == "YES"
		if def.Valid {
			col.Default = &def.String
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: schema for %s: %v", ErrQueryExecutionFailed, table, err)
	}
	return columns, nil
}

// AllSchemas returns the schema of every allowed table that exists. Tables
// that fail or have no columns are skipped.
func (s *SchemaInspector) AllSchemas(ctx context.Context) map[string][]Column {
	out := make(map[string][]Column, len(s.allowed))
	for _, table := range s.allowed {
		columns, err := s.TableSchema(ctx, table)
		if err != nil {
			s.logger.Error("failed to get schema", map[string]interface{}{"table": table, "error": err})
			continue
		}
		if len(columns) > 0 {
			out[table] = columns
		}
	}
	return out
}

// AllowedTables returns the configured allow list.
func (s *SchemaInspector) AllowedTables() []string {
	return append([]string(nil), s.allowed...)
}
