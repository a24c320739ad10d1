package querypostgresql

import "erp-nlquery/internal/models"

type Input struct {
	Intent     string                 `json:"intent"`
	Parameters map[string]interface{} `json:"parameters"`
	Roles      []string               `json:"roles"`
	UserID     string                 `json:"userId,omitempty"`
	Question   string                 `json:"question,omitempty"`
}

type Output struct {
	Rows               []models.Row `json:"rows"`
	Columns            []string     `json:"columns"`
	RowCount           int          `json:"rowCount"`
	QueryExecutionTime int64        `json:"queryExecutionTime"` // milliseconds
}
