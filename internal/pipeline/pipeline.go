// Package pipeline composes classification and planning into the single
// entry point used by the HTTP API, the workers and the CLI.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/intent"
	"erp-nlquery/internal/models"
	"erp-nlquery/internal/planner"
)

// ErrUnknownIntent means neither classifier recognized the question. It is a
// normal outcome, not a failure.
var ErrUnknownIntent = errors.New("UNKNOWN_INTENT")

// Result carries what was learned about a request. Extraction is always set,
// Plan only when err is nil.
type Result struct {
	Extraction models.IntentExtraction
	Source     string
	Plan       *planner.Plan
}

type Pipeline struct {
	chain   *intent.Chain
	planner *planner.Planner
	logger  logger.Logger
}

// New wires the pattern classifier, an optional fallback and the planner.
func New(fallback intent.Classifier, p *planner.Planner, log logger.Logger) *Pipeline {
	return &Pipeline{
		chain:   intent.NewChain(intent.NewPatternClassifier(log), fallback, log),
		planner: p,
		logger:  logger.Component(log, "pipeline"),
	}
}

// ClassifyAndPlan returns a plan, or one of ErrUnknownIntent,
// planner.ErrForbidden and planner.ErrNoTemplate. The Result is non-nil in
// every case.
func (p *Pipeline) ClassifyAndPlan(ctx context.Context, question string, hints models.Params, roles []string) (*Result, error) {
	extraction, source := p.chain.Classify(ctx, question, hints)
	res := &Result{Extraction: extraction, Source: source}

	if extraction.IsUnknown() {
		return res, ErrUnknownIntent
	}

	plan, err := p.planner.Plan(extraction.Intent, extraction.Parameters, roles)
	if err != nil {
		return res, fmt.Errorf("plan %s: %w", extraction.Intent, err)
	}
	res.Plan = plan
	return res, nil
}

// Classify runs only the classifier chain.
func (p *Pipeline) Classify(ctx context.Context, question string, hints models.Params) (models.IntentExtraction, string) {
	return p.chain.Classify(ctx, question, hints)
}

// Plan runs only the planner, for callers that classified elsewhere.
func (p *Pipeline) Plan(extraction models.IntentExtraction, roles []string) (*planner.Plan, error) {
	return p.planner.Plan(extraction.Intent, extraction.Parameters, roles)
}

// ListSupportedIntents returns (name, description) pairs in catalog order.
func ListSupportedIntents() []models.IntentInfo {
	return models.SupportedIntents()
}
