package classifyintent

import (
	"context"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"erp-nlquery/internal/common/camunda"
	apperrors "erp-nlquery/internal/common/errors"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/common/metrics"
	"erp-nlquery/internal/common/validation"
	"erp-nlquery/internal/models"
	"erp-nlquery/internal/pipeline"
)

const TaskType = "classify-intent"

// Handler classifies a question and hands the extraction back to the process.
// An unknown intent is a normal result; the process decides what to do with it.
type Handler struct {
	config   *Config
	pipeline *pipeline.Pipeline
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, p *pipeline.Pipeline, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		pipeline: p,
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
	if err := camunda.DecodeVariables(job, validation.ClassifyInputSchema, &input); err != nil {
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

// Execute runs the classifier chain. Context values override anything
// extracted from the text.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || strings.TrimSpace(input.Question) == "" {
		return nil, apperrors.NewInvalidRequestError("question is required")
	}

	extraction, source := h.pipeline.Classify(ctx, input.Question, models.ParamsFromMap(input.Context))
	metrics.ClassifierResults.WithLabelValues(source, string(extraction.Intent)).Inc()

	h.logger.Info("intent classified", map[string]interface{}{
		"intent":     extraction.Intent,
		"confidence": extraction.Confidence,
		"source":     source,
	})

	return &Output{
		Intent:     string(extraction.Intent),
		Parameters: extraction.Parameters.Map(),
		Confidence: extraction.Confidence,
		Source:     source,
	}, nil
}
