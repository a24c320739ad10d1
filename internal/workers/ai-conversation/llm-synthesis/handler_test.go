package llmsynthesis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-nlquery/internal/common/config"
	apperrors "erp-nlquery/internal/common/errors"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/llm"
	"erp-nlquery/internal/models"
)

type scriptedGenerator struct {
	answer string
	err    error
	last   llm.Request
	calls  int
}

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.calls++
	g.last = req
	return g.answer, g.err
}

func newTestHandler(t *testing.T, gen llm.Generator) *Handler {
	log := logger.NewTestLogger(t)
	answers := llm.NewAnswerGenerator(gen, config.GenAIConfig{Temperature: 0.1, MaxTokens: 500}, log)
	return NewHandler(LoadConfig(config.WorkerConfig{Timeout: 5000}), answers, log)
}

func timetableInput() *Input {
	return &Input{
		Question: "Show me the timetable for Class 10A",
		Intent:   "get_timetable",
		Columns:  []string{"id", "day_of_week"},
		Rows: []models.Row{
			{"id": float64(1), "day_of_week": "Monday"},
			{"id": float64(2), "day_of_week": "Tuesday"},
		},
	}
}

func TestHandler_Execute_ModelAnswer(t *testing.T) {
	gen := &scriptedGenerator{answer: "Class 10A has Mathematics on Monday [get_timetable:1]."}
	h := newTestHandler(t, gen)

	out, err := h.Execute(context.Background(), timetableInput())
	require.NoError(t, err)

	assert.Equal(t, gen.answer, out.Answer)
	assert.Equal(t, 2, out.RowsCount)
	require.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.last.Prompt, "DATABASE RESULTS (2 records from get_timetable)")
	assert.Contains(t, gen.last.Prompt, "USER QUESTION: Show me the timetable for Class 10A")
	assert.Contains(t, gen.last.System, "CRITICAL RULES")
}

func TestHandler_Execute_FallsBackToRawRows(t *testing.T) {
	tests := []struct {
		name string
		gen  llm.Generator
	}{
		{name: "model error", gen: &scriptedGenerator{err: errors.New("quota exhausted")}},
		{name: "no model configured", gen: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.gen)

			out, err := h.Execute(context.Background(), timetableInput())
			require.NoError(t, err)

			assert.Contains(t, out.Answer, "Found 2 record(s):")
			assert.Contains(t, out.Answer, "day_of_week: Monday")
		})
	}
}

func TestHandler_Execute_NoRows(t *testing.T) {
	h := newTestHandler(t, nil)

	out, err := h.Execute(context.Background(), &Input{Question: "who is absent today", Intent: "get_attendance"})
	require.NoError(t, err)

	assert.Equal(t, llm.NoRecordsAnswer, out.Answer)
	assert.Zero(t, out.RowsCount)
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	h := newTestHandler(t, nil)

	for _, in := range []*Input{nil, {Question: ""}} {
		_, err := h.Execute(context.Background(), in)
		assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.CodeOf(err))
	}
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 30*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
}
