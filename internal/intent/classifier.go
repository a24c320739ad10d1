// Package intent turns a free-text question into an IntentExtraction using an
// ordered rule table, with an optional semantic fallback.
package intent

import (
	"context"
	"strings"

	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"
)

// Classifier is satisfied by every strategy that can label a question.
type Classifier interface {
	Classify(ctx context.Context, question string, hints models.Params) models.IntentExtraction
}

// PatternClassifier matches the lowercased question against the rule table.
// It holds no mutable state and is safe for concurrent use.
type PatternClassifier struct {
	logger logger.Logger
}

func NewPatternClassifier(log logger.Logger) *PatternClassifier {
	return &PatternClassifier{logger: logger.Component(log, "pattern-classifier")}
}

// Classify never fails: a question no rule matches is reported as unknown.
func (c *PatternClassifier) Classify(_ context.Context, question string, hints models.Params) models.IntentExtraction {
	lower := strings.ToLower(question)

	for _, r := range rules {
		for _, p := range r.patterns {
			if p.MatchString(lower) {
				return models.IntentExtraction{
					Intent:     r.intent,
					Parameters: Extract(question, hints),
					Confidence: models.PatternConfidence,
				}
			}
		}
	}

	c.logger.Warn("could not extract intent", map[string]interface{}{"question": question})
	return models.UnknownExtraction()
}

// Chain consults the fallback only when the primary classifier returns unknown.
type Chain struct {
	primary  Classifier
	fallback Classifier
	logger   logger.Logger
}

// NewChain builds a chain. A nil fallback disables the second stage.
func NewChain(primary, fallback Classifier, log logger.Logger) *Chain {
	return &Chain{primary: primary, fallback: fallback, logger: logger.Component(log, "classifier-chain")}
}

// Classify returns the primary result, or the normalized fallback result.
// The second return value names the stage that produced a known intent.
func (c *Chain) Classify(ctx context.Context, question string, hints models.Params) (models.IntentExtraction, string) {
	result := c.primary.Classify(ctx, question, hints)
	if !result.IsUnknown() {
		return result, SourcePattern
	}
	if c.fallback == nil {
		return models.UnknownExtraction(), SourceNone
	}

	result = normalize(c.fallback.Classify(ctx, question, hints), hints)
	if result.IsUnknown() {
		return result, SourceNone
	}
	c.logger.Info("fallback classifier resolved intent", map[string]interface{}{
		"intent":     result.Intent,
		"confidence": result.Confidence,
	})
	return result, SourceFallback
}

const (
	SourcePattern  = "pattern"
	SourceFallback = "fallback"
	SourceNone     = "none"
)

// normalize enforces the extraction contract on results from outside the
// package: known intent, confidence within [0,1] and context precedence.
func normalize(e models.IntentExtraction, hints models.Params) models.IntentExtraction {
	if !e.Intent.IsSupported() {
		return models.UnknownExtraction()
	}
	params := models.Params{}
	for k, v := range e.Parameters {
		if v.Valid() {
			params[k] = v
		}
	}
	for k, v := range hints {
		params[k] = v
	}
	conf := e.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return models.IntentExtraction{Intent: e.Intent, Parameters: params, Confidence: conf}
}
