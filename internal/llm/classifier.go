package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"
)

const (
	classifyTemperature = 0
	classifyMaxTokens   = 200

	// defaultLLMConfidence is assumed when the model omits a confidence.
	defaultLLMConfidence = 0.5
)

// GeminiClassifier labels questions the rule table could not. It satisfies
// intent.Classifier and never returns an error: every failure is unknown.
type GeminiClassifier struct {
	gen    Generator
	cache  *expirable.LRU[string, models.IntentExtraction]
	logger logger.Logger
}

func NewGeminiClassifier(gen Generator, cfg config.GenAIConfig, log logger.Logger) *GeminiClassifier {
	c := &GeminiClassifier{
		gen:    gen,
		logger: logger.Component(log, "llm-classifier"),
	}
	if cfg.ClassifierCache > 0 {
		ttl := time.Duration(cfg.ClassifierCacheTTL) * time.Second
		c.cache = expirable.NewLRU[string, models.IntentExtraction](cfg.ClassifierCache, nil, ttl)
	}
	return c
}

func (c *GeminiClassifier) Classify(ctx context.Context, question string, hints models.Params) models.IntentExtraction {
	key := cacheKey(question, hints)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			return cached
		}
	}

	text, err := c.gen.Generate(ctx, Request{
		Purpose:     "classify",
		Prompt:      buildClassifyPrompt(question, hints),
		Temperature: classifyTemperature,
		MaxTokens:   classifyMaxTokens,
		JSON:        true,
	})
	if err != nil {
		c.logger.Error("LLM intent extraction failed", map[string]interface{}{"error": err})
		return models.UnknownExtraction()
	}

	result, err := parseClassification(text)
	if err != nil {
		c.logger.Error("LLM intent response unparseable", map[string]interface{}{
			"error":    err,
			"response": truncate(text, 200),
		})
		return models.UnknownExtraction()
	}

	// only parsed responses are cached
	if c.cache != nil {
		c.cache.Add(key, result)
	}
	return result
}

type classification struct {
	Intent     string        `json:"intent"`
	Parameters models.Params `json:"parameters"`
	Confidence *float64      `json:"confidence"`
}

func parseClassification(text string) (models.IntentExtraction, error) {
	var raw classification
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return models.UnknownExtraction(), fmt.Errorf("decode classification: %w", err)
	}

	in := models.ParseIntent(strings.TrimSpace(raw.Intent))
	if in == models.IntentUnknown {
		return models.UnknownExtraction(), nil
	}

	conf := defaultLLMConfidence
	if raw.Confidence != nil {
		conf = *raw.Confidence
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	params := raw.Parameters
	if params == nil {
		params = models.Params{}
	}
	return models.IntentExtraction{Intent: in, Parameters: params, Confidence: conf}, nil
}

// stripFences removes a ```json ... ``` wrapper the model sometimes adds
// despite the JSON response type.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func buildClassifyPrompt(question string, hints models.Params) string {
	var b strings.Builder
	b.WriteString("You are an intent classifier for a School ERP database query system.\n\n")
	b.WriteString("Available intents:\n")
	for _, info := range models.SupportedIntents() {
		fmt.Fprintf(&b, "- %s: %s\n", info.Name, info.Description)
	}
	fmt.Fprintf(&b, "- %s: The question does not match any intent above\n\n", models.IntentUnknown)

	fmt.Fprintf(&b, "User question: %q\n", question)
	fmt.Fprintf(&b, "Context: %s\n\n", canonicalHints(hints))

	b.WriteString(`Extract the intent and parameters from the question.

Rules:
1. Choose the most appropriate intent from the list, or "unknown"
2. Extract ALL relevant parameters (names, IDs, dates, etc.)
3. Dates use the format YYYY-MM-DD
4. For "list all X", set list_all=true
5. Return confidence between 0 and 1

Return ONLY valid JSON in this format:
{
  "intent": "intent_name",
  "parameters": {
    "class_id": 1,
    "student_name": "John",
    "teacher_name": "Jane",
    "subject_name": "Mathematics",
    "list_all": false
  },
  "confidence": 0.9
}`)
	return b.String()
}

// canonicalHints renders context with sorted keys; encoding/json sorts map keys.
func canonicalHints(hints models.Params) string {
	if len(hints) == 0 {
		return "{}"
	}
	data, err := json.Marshal(hints.Map())
	if err != nil {
		return "{}"
	}
	return string(data)
}

func cacheKey(question string, hints models.Params) string {
	return strings.TrimSpace(question) + "\x00" + canonicalHints(hints)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
