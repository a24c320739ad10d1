package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"
)

type fakeGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	requests []Request
}

func (f *fakeGenerator) Generate(_ context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.response, f.err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func testGenAIConfig() config.GenAIConfig {
	return config.GenAIConfig{
		Model:              "gemini-test",
		Temperature:        0.1,
		MaxTokens:          500,
		ClassifierCache:    16,
		ClassifierCacheTTL: 60,
	}
}

func TestGeminiClassifier_Classify(t *testing.T) {
	tests := []struct {
		name           string
		response       string
		err            error
		wantIntent     models.Intent
		wantConfidence float64
		wantParams     map[string]interface{}
	}{
		{
			name:           "plain json",
			response:       `{"intent":"get_fee_status","parameters":{"student_id":42},"confidence":0.9}`,
			wantIntent:     models.IntentFeeStatus,
			wantConfidence: 0.9,
			wantParams:     map[string]interface{}{"student_id": int64(42)},
		},
		{
			name:           "fenced json",
			response:       "```json\n{\"intent\":\"get_calendar\",\"parameters\":{\"date\":\"2024-06-01\"},\"confidence\":0.7}\n```",
			wantIntent:     models.IntentCalendar,
			wantConfidence: 0.7,
			wantParams:     map[string]interface{}{"date": "2024-06-01"},
		},
		{
			name:           "missing confidence defaults",
			response:       `{"intent":"get_marks","parameters":{}}`,
			wantIntent:     models.IntentMarks,
			wantConfidence: 0.5,
			wantParams:     map[string]interface{}{},
		},
		{
			name:           "confidence clamped",
			response:       `{"intent":"get_marks","confidence":3}`,
			wantIntent:     models.IntentMarks,
			wantConfidence: 1,
			wantParams:     map[string]interface{}{},
		},
		{
			name:           "intent outside catalog",
			response:       `{"intent":"drop_tables","parameters":{"x":1},"confidence":0.99}`,
			wantIntent:     models.IntentUnknown,
			wantConfidence: 0,
			wantParams:     map[string]interface{}{},
		},
		{
			name:           "garbage",
			response:       "Sure! The intent is probably marks.",
			wantIntent:     models.IntentUnknown,
			wantConfidence: 0,
			wantParams:     map[string]interface{}{},
		},
		{
			name:           "transport error",
			err:            ErrLLMTimeout,
			wantIntent:     models.IntentUnknown,
			wantConfidence: 0,
			wantParams:     map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{response: tt.response, err: tt.err}
			c := NewGeminiClassifier(gen, testGenAIConfig(), logger.NewTestLogger(t))

			got := c.Classify(context.Background(), "what about the money", nil)

			assert.Equal(t, tt.wantIntent, got.Intent)
			assert.InDelta(t, tt.wantConfidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.wantParams, got.Parameters.Map())
		})
	}
}

func TestGeminiClassifier_RequestShape(t *testing.T) {
	gen := &fakeGenerator{response: `{"intent":"unknown"}`}
	c := NewGeminiClassifier(gen, testGenAIConfig(), logger.NewNoOpLogger())

	c.Classify(context.Background(), "how is Ravi doing", models.Params{"class_id": models.IntValue(3)})

	require.Equal(t, 1, gen.calls())
	req := gen.requests[0]
	assert.Equal(t, "classify", req.Purpose)
	assert.True(t, req.JSON)
	assert.Equal(t, int32(200), req.MaxTokens)
	assert.Zero(t, req.Temperature)
	for _, info := range models.SupportedIntents() {
		assert.Contains(t, req.Prompt, string(info.Name))
	}
	assert.Contains(t, req.Prompt, `"how is Ravi doing"`)
	assert.Contains(t, req.Prompt, `{"class_id":3}`)
}

func TestGeminiClassifier_Cache(t *testing.T) {
	gen := &fakeGenerator{response: `{"intent":"get_diary","confidence":0.6}`}
	c := NewGeminiClassifier(gen, testGenAIConfig(), logger.NewNoOpLogger())
	ctx := context.Background()

	first := c.Classify(ctx, "homework please", nil)
	second := c.Classify(ctx, "homework please", nil)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.calls())

	c.Classify(ctx, "homework please", models.Params{"class_id": models.IntValue(1)})
	assert.Equal(t, 2, gen.calls(), "different context is a different key")
}

func TestGeminiClassifier_FailuresNotCached(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota")}
	c := NewGeminiClassifier(gen, testGenAIConfig(), logger.NewNoOpLogger())
	ctx := context.Background()

	c.Classify(ctx, "homework please", nil)
	gen.err = nil
	gen.response = `{"intent":"get_diary"}`
	got := c.Classify(ctx, "homework please", nil)

	assert.Equal(t, models.IntentDiary, got.Intent)
	assert.Equal(t, 2, gen.calls())
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```json{\"a\":1}```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripFences(tt.in))
	}
}

func sampleResultSet(n int) *models.ResultSet {
	rs := &models.ResultSet{Columns: []string{"id", "name", "date"}}
	for i := 1; i <= n; i++ {
		rs.Rows = append(rs.Rows, models.Row{
			"id":   int64(i),
			"name": "Student",
			"date": time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		})
	}
	return rs
}

func TestAnswerGenerator_UsesModel(t *testing.T) {
	gen := &fakeGenerator{response: "Ravi attended all classes [attendance:1]."}
	a := NewAnswerGenerator(gen, testGenAIConfig(), logger.NewTestLogger(t))

	got := a.GenerateAnswer(context.Background(), "Was Ravi present?", sampleResultSet(2), models.IntentAttendance)

	assert.Equal(t, "Ravi attended all classes [attendance:1].", got)
	require.Equal(t, 1, gen.calls())
	req := gen.requests[0]
	assert.Equal(t, "answer", req.Purpose)
	assert.False(t, req.JSON)
	assert.InDelta(t, 0.1, req.Temperature, 1e-6)
	assert.Equal(t, int32(500), req.MaxTokens)
	assert.Contains(t, req.System, "CRITICAL RULES")
	assert.Contains(t, req.Prompt, "DATABASE RESULTS (2 records from get_attendance)")
	assert.Contains(t, req.Prompt, "Record 1:\n  - id: 1\n  - name: Student\n  - date: 2024-05-15\n")
	assert.Contains(t, req.Prompt, "USER QUESTION: Was Ravi present?")
}

func TestAnswerGenerator_FallsBackToRaw(t *testing.T) {
	gen := &fakeGenerator{err: ErrLLMGenerateFailed}
	a := NewAnswerGenerator(gen, testGenAIConfig(), logger.NewNoOpLogger())

	got := a.GenerateAnswer(context.Background(), "list students", sampleResultSet(12), models.IntentStudentInfo)

	assert.True(t, strings.HasPrefix(got, "Found 12 record(s):"))
	assert.Contains(t, got, "Record 10:")
	assert.NotContains(t, got, "Record 11:")
	assert.Contains(t, got, "(Showing first 10 of 12 records)")
}

func TestAnswerGenerator_NilGenerator(t *testing.T) {
	a := NewAnswerGenerator(nil, testGenAIConfig(), logger.NewNoOpLogger())

	assert.Equal(t, NoRecordsAnswer, a.GenerateAnswer(context.Background(), "q", &models.ResultSet{}, models.IntentMarks))
	assert.Equal(t, NoRecordsAnswer, a.GenerateAnswer(context.Background(), "q", nil, models.IntentMarks))
}

func TestFormatForPrompt_Truncates(t *testing.T) {
	out := FormatForPrompt(sampleResultSet(60), "get_student_info")

	assert.Contains(t, out, "DATABASE RESULTS (50 records from get_student_info)")
	assert.Contains(t, out, "Record 50:")
	assert.NotContains(t, out, "Record 51:")
	assert.Contains(t, out, "(Note: Showing first 50 of 60 total records)")
}

func TestFormatRaw_SortedKeysWithoutColumns(t *testing.T) {
	rs := &models.ResultSet{Rows: []models.Row{{"b": "x", "a": nil}}}

	out := FormatRaw(rs)

	assert.Contains(t, out, "Record 1:\n  • a: null\n  • b: x\n")
}
