// Package planner turns a classified intent into a role-checked SQL template
// and the positional arguments that fill it.
package planner

import (
	"errors"
	"fmt"
	"time"

	"erp-nlquery/internal/access"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"
)

// ErrRejected matches every planning failure. Callers that need to tell a
// forbidden request from a misconfiguration test for the specific sentinel.
var (
	ErrRejected   = errors.New("PLAN_REJECTED")
	ErrForbidden  = fmt.Errorf("%w: FORBIDDEN", ErrRejected)
	ErrNoTemplate = fmt.Errorf("%w: TEMPLATE_NOT_FOUND", ErrRejected)
)

// DefaultMaxRows is used when no positive limit is configured.
const DefaultMaxRows = 100

// Plan is a ready-to-execute query. Args line up with the template's $n
// placeholders and are never interpolated into the text.
type Plan struct {
	Intent   models.Intent
	Template string
	Args     []interface{}
}

type Option func(*Planner)

// WithClock fixes the time used to resolve relative dates.
func WithClock(clock func() time.Time) Option {
	return func(p *Planner) { p.clock = clock }
}

// WithTemplates replaces the template table.
func WithTemplates(templates map[models.Intent]string) Option {
	return func(p *Planner) { p.templates = templates }
}

// Planner is immutable after construction and safe for concurrent use.
type Planner struct {
	matrix    *access.Matrix
	templates map[models.Intent]string
	maxRows   int64
	clock     func() time.Time
	logger    logger.Logger
}

func New(matrix *access.Matrix, maxRows int, log logger.Logger, opts ...Option) *Planner {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	p := &Planner{
		matrix:    matrix,
		templates: defaultTemplates,
		maxRows:   int64(maxRows),
		clock:     time.Now,
		logger:    logger.Component(log, "planner"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan authorizes, picks the template and builds the argument tuple.
func (p *Planner) Plan(intent models.Intent, params models.Params, roles []string) (*Plan, error) {
	if !p.matrix.IsAuthorized(roles, intent) {
		p.logger.Warn("permission denied", map[string]interface{}{
			"intent": intent,
			"roles":  roles,
		})
		return nil, fmt.Errorf("%w: intent %s", ErrForbidden, intent)
	}

	template, ok := p.templates[intent]
	if !ok || template == "" {
		p.logger.Error("no SQL template for intent", map[string]interface{}{"intent": intent})
		return nil, fmt.Errorf("%w: intent %s", ErrNoTemplate, intent)
	}

	if params == nil {
		params = models.Params{}
	}
	return &Plan{
		Intent:   intent,
		Template: template,
		Args:     p.buildArgs(intent, params),
	}, nil
}

// Validate reports supported intents without a template.
func (p *Planner) Validate() error {
	var missing []models.Intent
	for _, info := range models.SupportedIntents() {
		if p.templates[info.Name] == "" {
			missing = append(missing, info.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing templates for %v", ErrNoTemplate, missing)
	}
	return nil
}

// MaxRows is the configured default row limit.
func (p *Planner) MaxRows() int64 {
	return p.maxRows
}

func likePattern(s string) string {
	if s == "" {
		return "%"
	}
	return "%" + s + "%"
}

func (p *Planner) buildArgs(intent models.Intent, params models.Params) []interface{} {
	today := models.Day(p.clock())
	days := func(n int) time.Time { return today.AddDate(0, 0, n) }
	ref := params.StringOr(models.ParamDateRef, "")
	limit := p.maxRows

	switch intent {
	case models.IntentTimetable:
		return []interface{}{params.IntArg(models.ParamClassID, 1), limit}

	case models.IntentAttendance:
		date := params.DateArg(models.ParamDate, today)
		switch ref {
		case models.DateRefToday:
			date = today
		case models.DateRefTomorrow:
			date = days(1)
		case models.DateRefYesterday:
			date = days(-1)
		}
		return []interface{}{params.IntArg(models.ParamClassID, 1), date, limit}

	case models.IntentStudentInfo:
		if params.Flag(models.ParamListAll) {
			limit *= 10
		}
		return []interface{}{
			params.IntArg(models.ParamStudentID, 0),
			params.StringOr(models.ParamRollNumber, ""),
			likePattern(params.StringOr(models.ParamStudentName, "")),
			params.IntArg(models.ParamClassID, 0),
			limit,
		}

	case models.IntentTeacherInfo:
		return []interface{}{
			params.IntArg(models.ParamTeacherID, 0),
			likePattern(params.StringOr(models.ParamTeacherName, "")),
			limit,
		}

	case models.IntentFeeStatus:
		return []interface{}{
			params.IntArg(models.ParamStudentID, 0),
			params.IntArg(models.ParamClassID, 0),
			limit,
		}

	case models.IntentExamSchedule:
		return []interface{}{params.IntArg(models.ParamClassID, 1), limit}

	case models.IntentClassInfo:
		return []interface{}{
			params.IntArg(models.ParamClassID, 0),
			likePattern(params.StringOr(models.ParamClassName, "")),
			limit,
		}

	case models.IntentSubjectInfo:
		return []interface{}{
			params.IntArg(models.ParamSubjectID, 0),
			likePattern(params.StringOr(models.ParamSubjectName, "")),
			limit,
		}

	case models.IntentMarks:
		return []interface{}{
			params.IntArg(models.ParamStudentID, 0),
			params.StringOr(models.ParamRollNumber, ""),
			params.IntArg(models.ParamClassID, 0),
			limit,
		}

	case models.IntentDiary:
		date := params.DateArg(models.ParamDate, today)
		switch ref {
		case models.DateRefToday:
			date = today
		case models.DateRefYesterday:
			date = days(-1)
		}
		return []interface{}{params.IntArg(models.ParamClassID, 0), date, limit}

	case models.IntentCalendar:
		start := params.DateArg(models.ParamStartDate, today)
		end := params.DateArg(models.ParamEndDate, days(30))
		switch ref {
		case models.DateRefThisWeek:
			start, end = today, days(7)
		case models.DateRefThisMonth:
			start, end = today, days(30)
		case models.DateRefNextWeek:
			start, end = days(7), days(14)
		}
		return []interface{}{start, end, limit}

	case models.IntentParentInfo:
		return []interface{}{
			params.IntArg(models.ParamParentID, 0),
			params.StringOr(models.ParamPhone, ""),
			params.IntArg(models.ParamStudentID, 0),
			params.StringOr(models.ParamStudentUSN, ""),
			likePattern(params.StringOr(models.ParamStudentName, "")),
			limit,
		}

	case models.IntentCircular:
		date := params.DateArg(models.ParamDate, today)
		switch ref {
		case models.DateRefToday:
			date = today
		case models.DateRefRecent:
			date = days(-7)
		}
		return []interface{}{params.IntArg(models.ParamClassID, 0), date, limit}

	case models.IntentAttendanceStats:
		start := params.DateArg(models.ParamStartDate, days(-30))
		end := params.DateArg(models.ParamEndDate, today)
		switch ref {
		case models.DateRefThisMonth:
			start, end = today.AddDate(0, 0, 1-today.Day()), today
		case models.DateRefThisWeek:
			start, end = days(-7), today
		}
		return []interface{}{params.IntArg(models.ParamClassID, 1), start, end}

	case models.IntentFeeSummary:
		return []interface{}{
			params.IntArg(models.ParamClassID, 0),
			likePattern(params.StringOr(models.ParamClassName, "")),
		}

	case models.IntentClassPerformance:
		return []interface{}{params.IntArg(models.ParamClassID, 1), limit}
	}

	return []interface{}{}
}
