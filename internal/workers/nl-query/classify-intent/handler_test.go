package classifyintent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-nlquery/internal/access"
	"erp-nlquery/internal/common/config"
	apperrors "erp-nlquery/internal/common/errors"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/intent"
	"erp-nlquery/internal/models"
	"erp-nlquery/internal/pipeline"
	"erp-nlquery/internal/planner"
)

type stubFallback struct {
	result models.IntentExtraction
	calls  int
}

func (s *stubFallback) Classify(context.Context, string, models.Params) models.IntentExtraction {
	s.calls++
	return s.result
}

func newHandler(t *testing.T, fallback intent.Classifier) *Handler {
	log := logger.NewTestLogger(t)
	p := planner.New(access.NewMatrix(log), 100, log)
	return NewHandler(LoadConfig(config.WorkerConfig{Timeout: 5000}), pipeline.New(fallback, p, log), log)
}

func TestHandler_Execute_Pattern(t *testing.T) {
	h := newHandler(t, nil)

	out, err := h.Execute(context.Background(), &Input{
		Question: "Show me the timetable for Class 10A",
		Context:  map[string]interface{}{"class_id": float64(10)},
	})
	require.NoError(t, err)

	assert.Equal(t, "get_timetable", out.Intent)
	assert.InDelta(t, models.PatternConfidence, out.Confidence, 1e-9)
	assert.Equal(t, intent.SourcePattern, out.Source)
	assert.Equal(t, int64(10), out.Parameters["class_id"])
	assert.Equal(t, "10A", out.Parameters["class_name"])
}

func TestHandler_Execute_Unknown(t *testing.T) {
	h := newHandler(t, nil)

	out, err := h.Execute(context.Background(), &Input{Question: "asdf qwerty"})
	require.NoError(t, err)

	assert.Equal(t, "unknown", out.Intent)
	assert.Zero(t, out.Confidence)
	assert.Empty(t, out.Parameters)
	assert.NotNil(t, out.Parameters)
	assert.Equal(t, intent.SourceNone, out.Source)
}

func TestHandler_Execute_Fallback(t *testing.T) {
	fb := &stubFallback{result: models.IntentExtraction{
		Intent:     models.IntentSubjectInfo,
		Parameters: models.Params{models.ParamSubjectName: models.StringValue("Physics")},
		Confidence: 0.65,
	}}
	h := newHandler(t, fb)

	out, err := h.Execute(context.Background(), &Input{Question: "who handles the lab stuff"})
	require.NoError(t, err)

	assert.Equal(t, 1, fb.calls)
	assert.Equal(t, "get_subject_info", out.Intent)
	assert.Equal(t, intent.SourceFallback, out.Source)
	assert.InDelta(t, 0.65, out.Confidence, 1e-9)
	assert.Equal(t, "Physics", out.Parameters["subject_name"])
}

func TestHandler_Execute_DateParametersRenderAsText(t *testing.T) {
	h := newHandler(t, nil)

	out, err := h.Execute(context.Background(), &Input{
		Question: "show attendance",
		Context:  map[string]interface{}{"date": "2024-05-15"},
	})
	require.NoError(t, err)

	assert.Equal(t, "get_attendance", out.Intent)
	assert.Equal(t, "2024-05-15", out.Parameters["date"])
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	h := newHandler(t, nil)

	for _, in := range []*Input{nil, {Question: "   "}} {
		_, err := h.Execute(context.Background(), in)
		assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.CodeOf(err))
	}
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 5*time.Second, LoadConfig(config.WorkerConfig{Timeout: 5000}).Timeout)
	assert.Equal(t, 30*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
}
