// Package nlquery answers one natural language question end to end: rate
// limit, classify, plan, execute, answer and audit.
package nlquery

import (
	"context"
	"errors"
	"time"

	"erp-nlquery/internal/access"
	"erp-nlquery/internal/audit"
	apperrors "erp-nlquery/internal/common/errors"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/common/metrics"
	"erp-nlquery/internal/common/observability"
	"erp-nlquery/internal/common/validation"
	"erp-nlquery/internal/models"
	"erp-nlquery/internal/pipeline"
	"erp-nlquery/internal/planner"
	"erp-nlquery/internal/ratelimit"
	"erp-nlquery/internal/store"
)

const (
	UnknownAnswer = "I couldn't understand your question. Please try rephrasing it or be more specific."

	maxSources = 10
)

type Request struct {
	Question string                 `json:"question"`
	Context  map[string]interface{} `json:"context"`
}

type Source struct {
	Table string      `json:"table"`
	RowID interface{} `json:"row_id"`
}

type Response struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
	RowsCount  int      `json:"rows_count"`
	Intent     string   `json:"intent"`
}

// Answerer renders rows into prose. llm.AnswerGenerator implements it.
type Answerer interface {
	GenerateAnswer(ctx context.Context, question string, rs *models.ResultSet, in models.Intent) string
}

type Service struct {
	pipeline *pipeline.Pipeline
	matrix   *access.Matrix
	querier  store.Querier
	answerer Answerer
	limiter  ratelimit.Limiter
	recorder *audit.Recorder
	obs      *observability.Observability
	now      func() time.Time
	logger   logger.Logger
}

type Option func(*Service)

func WithRateLimiter(l ratelimit.Limiter) Option { return func(s *Service) { s.limiter = l } }

func WithRecorder(r *audit.Recorder) Option { return func(s *Service) { s.recorder = r } }

func WithObservability(o *observability.Observability) Option {
	return func(s *Service) { s.obs = o }
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(p *pipeline.Pipeline, m *access.Matrix, q store.Querier, a Answerer, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		pipeline: p,
		matrix:   m,
		querier:  q,
		answerer: a,
		now:      time.Now,
		logger:   logger.Component(log, "nlquery"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask runs one request. Every call, successful or not, produces exactly one
// audit entry. Returned errors are *errors.StandardError.
func (s *Service) Ask(ctx context.Context, principal models.Principal, req Request) (resp *Response, err error) {
	start := s.now()
	entry := audit.NewEntry(principal, req.Question, start)
	intentLabel := string(models.IntentUnknown)

	defer func() {
		elapsed := s.now().Sub(start)
		entry.ResponseTimeMS = elapsed.Milliseconds()
		if err != nil {
			entry.Success = false
			if entry.ErrorMessage == "" {
				entry.ErrorMessage = err.Error()
			}
		}
		s.recorder.Record(ctx, entry)

		outcome := "success"
		if err != nil {
			outcome = string(apperrors.CodeOf(err))
		} else if !entry.Success {
			outcome = string(apperrors.ErrCodeUnknownIntent)
		}
		metrics.QueriesTotal.WithLabelValues(intentLabel, outcome).Inc()
		metrics.QueryDuration.WithLabelValues(intentLabel).Observe(elapsed.Seconds())
		s.obs.RecordQuery(ctx, intentLabel, outcome, elapsed)
	}()

	if vr, verr := validation.ValidateInput(req, validation.QueryRequestSchema); verr != nil {
		return nil, apperrors.NewInternalError(verr)
	} else if !vr.Valid {
		return nil, apperrors.NewInvalidRequestError(vr.Error())
	}

	if err := s.checkRateLimit(ctx, principal.UserID); err != nil {
		return nil, err
	}

	res, perr := s.pipeline.ClassifyAndPlan(ctx, req.Question, models.ParamsFromMap(req.Context), principal.Roles)
	metrics.ClassifierResults.WithLabelValues(res.Source, string(res.Extraction.Intent)).Inc()

	if errors.Is(perr, pipeline.ErrUnknownIntent) {
		entry.Intent = string(models.IntentUnknown)
		entry.ErrorMessage = "Could not understand the question"
		return &Response{
			Answer:     UnknownAnswer,
			Sources:    []Source{},
			Confidence: 0,
			RowsCount:  0,
			Intent:     string(models.IntentUnknown),
		}, nil
	}

	ext := res.Extraction
	intentLabel = ext.Intent.String()
	entry.Intent = intentLabel
	entry.SetParameters(ext.Parameters)

	if perr != nil {
		return nil, s.planError(ext.Intent, perr, entry)
	}
	entry.SetTemplate(res.Plan.Template)

	rs, qerr := s.querier.Execute(ctx, res.Plan.Template, res.Plan.Args)
	if qerr != nil {
		s.logger.Error("query processing failed", map[string]interface{}{
			"error":  qerr,
			"intent": intentLabel,
		})
		entry.ErrorMessage = qerr.Error()
		if errors.Is(qerr, store.ErrQueryTimeout) {
			return nil, apperrors.NewQueryTimeoutError(intentLabel)
		}
		return nil, apperrors.NewQueryExecutionFailedError(intentLabel, qerr)
	}
	entry.RowsReturned = rs.Len()
	metrics.RowsReturned.WithLabelValues(intentLabel).Observe(float64(rs.Len()))

	answer := s.answerer.GenerateAnswer(ctx, req.Question, rs, ext.Intent)

	entry.Success = true
	return &Response{
		Answer:     answer,
		Sources:    sourcesFor(ext.Intent, rs),
		Confidence: ext.Confidence,
		RowsCount:  rs.Len(),
		Intent:     intentLabel,
	}, nil
}

func (s *Service) checkRateLimit(ctx context.Context, userID string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		s.logger.Warn("rate limiter degraded", map[string]interface{}{"error": err})
	}
	if !allowed {
		metrics.RateLimited.Inc()
		return apperrors.NewRateLimitedError(userID)
	}
	return nil
}

func (s *Service) planError(in models.Intent, err error, entry *audit.Entry) error {
	if errors.Is(err, planner.ErrForbidden) {
		entry.ErrorMessage = "Permission denied or invalid query"
		s.logger.Warn("access denied", map[string]interface{}{
			"intent": in,
			"userId": entry.UserID,
			"roles":  entry.Roles,
		})
		return apperrors.NewForbiddenError(err)
	}
	if errors.Is(err, planner.ErrNoTemplate) {
		entry.ErrorMessage = "Permission denied or invalid query"
		return apperrors.NewTemplateNotFoundError(in.String(), err)
	}
	return apperrors.NewInternalError(err)
}

// sourcesFor cites the first rows that carry an id column.
func sourcesFor(in models.Intent, rs *models.ResultSet) []Source {
	sources := []Source{}
	if rs == nil {
		return sources
	}
	rows := rs.Rows
	if len(rows) > maxSources {
		rows = rows[:maxSources]
	}
	for _, row := range rows {
		if id, ok := row["id"]; ok {
			sources = append(sources, Source{Table: in.String(), RowID: id})
		}
	}
	return sources
}

// Intents lists the catalog and the subset the principal may ask about.
func (s *Service) Intents(principal models.Principal) IntentsResponse {
	roles := principal.Roles
	if roles == nil {
		roles = []string{}
	}
	allowed := s.matrix.AllowedForRoles(principal.Roles)
	if allowed == nil {
		allowed = []models.Intent{}
	}
	return IntentsResponse{
		Intents:   pipeline.ListSupportedIntents(),
		Allowed:   allowed,
		UserRoles: roles,
	}
}

type IntentsResponse struct {
	Intents   []models.IntentInfo `json:"intents"`
	Allowed   []models.Intent     `json:"allowed"`
	UserRoles []string            `json:"user_roles"`
}
