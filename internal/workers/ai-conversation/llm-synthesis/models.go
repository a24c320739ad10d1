package llmsynthesis

import "erp-nlquery/internal/models"

type Input struct {
	Question string       `json:"question"`
	Intent   string       `json:"intent"`
	Rows     []models.Row `json:"rows"`
	Columns  []string     `json:"columns,omitempty"`
}

type Output struct {
	Answer    string `json:"answer"`
	RowsCount int    `json:"rowsCount"`
}
