package querypostgresql

import (
	"context"
	"errors"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"erp-nlquery/internal/audit"
	"erp-nlquery/internal/common/camunda"
	apperrors "erp-nlquery/internal/common/errors"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/common/metrics"
	"erp-nlquery/internal/common/validation"
	"erp-nlquery/internal/models"
	"erp-nlquery/internal/planner"
	"erp-nlquery/internal/store"
)

const (
	TaskType = "query-postgresql"
)

// Handler plans an already classified intent for the caller's roles and runs
// it. Forbidden and unknown intents are thrown as BPMN errors, database
// failures are retried by the engine.
type Handler struct {
	config   *Config
	planner  *planner.Planner
	querier  store.Querier
	recorder *audit.Recorder
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
	now      func() time.Time
}

// NewHandler builds the handler. recorder may be nil.
func NewHandler(config *Config, p *planner.Planner, q store.Querier, recorder *audit.Recorder, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		planner:  p,
		querier:  q,
		recorder: recorder,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
		now:      time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := camunda.DecodeVariables(job, validation.PlanInputSchema, &input); err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.Key, "error": err})
	}
}

// Execute plans and runs the query, writing one audit entry either way.
func (h *Handler) Execute(ctx context.Context, input *Input) (out *Output, err error) {
	if input == nil {
		return nil, apperrors.NewInvalidRequestError("input cannot be nil")
	}

	start := h.now()
	params := models.ParamsFromMap(input.Parameters)
	entry := audit.NewEntry(models.Principal{UserID: input.UserID, Roles: input.Roles}, input.Question, start)
	entry.Intent = input.Intent
	entry.SetParameters(params)
	defer func() {
		entry.ResponseTimeMS = h.now().Sub(start).Milliseconds()
		if err != nil {
			entry.ErrorMessage = err.Error()
		} else {
			entry.Success = true
			entry.RowsReturned = out.RowCount
		}
		h.recorder.Record(ctx, entry)
	}()

	intent := models.ParseIntent(input.Intent)
	if !intent.IsSupported() {
		return nil, apperrors.NewUnknownIntentError()
	}

	plan, err := h.planner.Plan(intent, params, input.Roles)
	switch {
	case errors.Is(err, planner.ErrForbidden):
		return nil, apperrors.NewForbiddenError(err)
	case err != nil:
		return nil, apperrors.NewTemplateNotFoundError(string(intent), err)
	}
	entry.SetTemplate(plan.Template)

	result, err := h.querier.Execute(ctx, plan.Template, plan.Args)
	if err != nil {
		if errors.Is(err, store.ErrQueryTimeout) {
			return nil, apperrors.NewQueryTimeoutError(string(intent))
		}
		return nil, apperrors.NewQueryExecutionFailedError(string(intent), err)
	}
	if result == nil {
		result = &models.ResultSet{}
	}
	metrics.RowsReturned.WithLabelValues(string(intent)).Observe(float64(result.Len()))

	rows := result.Rows
	if rows == nil {
		rows = []models.Row{}
	}
	return &Output{
		Rows:               rows,
		Columns:            result.Columns,
		RowCount:           len(rows),
		QueryExecutionTime: h.now().Sub(start).Milliseconds(),
	}, nil
}
