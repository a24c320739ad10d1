// Package audit records one entry per query request. Audit failures are
// logged and never fail the request.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"erp-nlquery/internal/models"
)

// MaxTemplateLen bounds the SQL template stored with an entry.
const MaxTemplateLen = 200

type Entry struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"user_id"`
	Roles          []string               `json:"roles"`
	Question       string                 `json:"question"`
	Intent         string                 `json:"intent"`
	Parameters     map[string]interface{} `json:"parameters"`
	SQLTemplate    string                 `json:"sql_template,omitempty"`
	RowsReturned   int                    `json:"rows_returned"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	ResponseTimeMS int64                  `json:"response_time_ms"`
	Timestamp      time.Time              `json:"timestamp"`
}

// NewEntry starts an entry for a request. Intent stays empty until known.
func NewEntry(p models.Principal, question string, now time.Time) *Entry {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return &Entry{
		ID:         uuid.NewString(),
		UserID:     p.UserID,
		Roles:      roles,
		Question:   question,
		Parameters: map[string]interface{}{},
		Timestamp:  now.UTC(),
	}
}

// SetTemplate stores at most MaxTemplateLen bytes of the template.
func (e *Entry) SetTemplate(template string) {
	if len(template) > MaxTemplateLen {
		template = template[:MaxTemplateLen]
	}
	e.SQLTemplate = template
}

func (e *Entry) SetParameters(p models.Params) {
	e.Parameters = p.Map()
}

// Sink persists entries.
type Sink interface {
	Insert(ctx context.Context, e *Entry) error
}
