// Package llm talks to the hosted language model. It backs the fallback
// intent classifier and renders result sets into answers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/common/observability"
)

var (
	ErrLLMTimeout        = errors.New("LLM_TIMEOUT")
	ErrLLMGenerateFailed = errors.New("LLM_GENERATE_FAILED")
	ErrLLMEmptyResponse  = errors.New("LLM_EMPTY_RESPONSE")
	ErrLLMNotConfigured  = errors.New("LLM_NOT_CONFIGURED")
)

// Request is one single-turn generation.
type Request struct {
	Purpose     string // metric label: "classify" or "answer"
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int32
	JSON        bool
}

// Generator produces text for a prompt. GeminiClient is the production
// implementation; tests substitute their own.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeminiClient calls the Gemini API through google.golang.org/genai.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	obs     *observability.Observability
	logger  logger.Logger
}

func NewGeminiClient(ctx context.Context, cfg config.GenAIConfig, obs *observability.Observability, log logger.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrLLMNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		timeout: timeout,
		obs:     obs,
		logger:  logger.Component(log, "gemini").WithFields(map[string]interface{}{"model": cfg.Model}),
	}, nil
}

func (g *GeminiClient) Model() string {
	return g.model
}

func (g *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: req.MaxTokens,
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), genCfg)
	elapsed := time.Since(start)
	g.obs.RecordLLMCall(ctx, req.Purpose, elapsed, err != nil)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrLLMTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrLLMGenerateFailed, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrLLMEmptyResponse
	}

	g.logger.Debug("generation completed", map[string]interface{}{
		"purpose":    req.Purpose,
		"chars":      len(text),
		"durationMs": elapsed.Milliseconds(),
	})
	return text, nil
}
