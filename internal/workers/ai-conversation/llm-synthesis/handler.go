package llmsynthesis

import (
	"context"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"erp-nlquery/internal/common/camunda"
	apperrors "erp-nlquery/internal/common/errors"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/common/validation"
	"erp-nlquery/internal/models"
)

const (
	TaskType = "llm-synthesis"
)

// Answerer renders rows as an answer. It never fails; it degrades to a
// plain listing of the rows.
type Answerer interface {
	GenerateAnswer(ctx context.Context, question string, rs *models.ResultSet, in models.Intent) string
}

type Handler struct {
	config   *Config
	answerer Answerer
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, answerer Answerer, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		answerer: answerer,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
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
	if err := camunda.DecodeVariables(job, validation.SynthesisInputSchema, &input); err != nil {
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || strings.TrimSpace(input.Question) == "" {
		return nil, apperrors.NewInvalidRequestError("question is required")
	}

	rs := &models.ResultSet{Columns: input.Columns, Rows: input.Rows}
	answer := h.answerer.GenerateAnswer(ctx, input.Question, rs, models.ParseIntent(input.Intent))

	h.logger.Info("answer synthesized", map[string]interface{}{
		"intent": input.Intent,
		"rows":   rs.Len(),
	})
	return &Output{Answer: answer, RowsCount: rs.Len()}, nil
}
