package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"erp-nlquery/internal/common/logger"
)

var (
	ErrAuditInsertFailed = errors.New("AUDIT_INSERT_FAILED")
	ErrAuditQueryFailed  = errors.New("AUDIT_QUERY_FAILED")
)

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresStore writes entries to the audit table, which may live in a
// different database than the ERP data.
type PostgresStore struct {
	db     *sql.DB
	table  string
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, table string, log logger.Logger) (*PostgresStore, error) {
	if table == "" {
		table = "mcp_audit_logs"
	}
	// the name is interpolated into SQL, so it must be a plain identifier
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name %q", table)
	}
	return &PostgresStore{db: db, table: table, logger: logger.Component(log, "audit-postgres")}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, e *Entry) error {
	roles, err := json.Marshal(e.Roles)
	if err != nil {
		return fmt.Errorf("%w: encode roles: %v", ErrAuditInsertFailed, err)
	}
	params, err := json.Marshal(e.Parameters)
	if err != nil {
		return fmt.Errorf("%w: encode parameters: %v", ErrAuditInsertFailed, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, user_id, roles, question, intent, parameters,
			sql_template, rows_returned, success, error_message,
			response_time_ms, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		e.ID,
		e.UserID,
		string(roles),
		e.Question,
		e.Intent,
		string(params),
		nullString(e.SQLTemplate),
		e.RowsReturned,
		e.Success,
		nullString(e.ErrorMessage),
		e.ResponseTimeMS,
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditInsertFailed, err)
	}

	s.logger.Debug("audit log created", map[string]interface{}{"userId": e.UserID, "id": e.ID})
	return nil
}

// CountSince returns how many requests the user made at or after since.
func (s *PostgresStore) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE user_id = $1 AND timestamp >= $2`, s.table)

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAuditQueryFailed, err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
