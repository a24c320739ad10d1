package nlquery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-nlquery/internal/access"
	"erp-nlquery/internal/audit"
	apperrors "erp-nlquery/internal/common/errors"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"
	"erp-nlquery/internal/pipeline"
	"erp-nlquery/internal/planner"
	"erp-nlquery/internal/store"
)

var fixedNow = time.Date(2024, time.May, 15, 9, 0, 0, 0, time.UTC)

type fakeQuerier struct {
	result   *models.ResultSet
	err      error
	template string
	args     []interface{}
	calls    int
}

func (q *fakeQuerier) Execute(_ context.Context, template string, args []interface{}) (*models.ResultSet, error) {
	q.calls++
	q.template = template
	q.args = args
	return q.result, q.err
}

type fakeAnswerer struct {
	answer string
}

func (a fakeAnswerer) GenerateAnswer(context.Context, string, *models.ResultSet, models.Intent) string {
	return a.answer
}

type memorySink struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (m *memorySink) Insert(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *e
	m.entries = append(m.entries, &copied)
	return nil
}

type fixedLimiter struct {
	allowed bool
	err     error
}

func (l fixedLimiter) Allow(context.Context, string) (bool, error) { return l.allowed, l.err }

type fixture struct {
	svc     *Service
	querier *fakeQuerier
	sink    *memorySink
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	log := logger.NewTestLogger(t)
	matrix := access.NewMatrix(log)
	p := planner.New(matrix, 100, log, planner.WithClock(func() time.Time { return fixedNow }))

	q := &fakeQuerier{result: &models.ResultSet{
		Columns: []string{"id", "day_of_week"},
		Rows: []models.Row{
			{"id": int64(1), "day_of_week": "Monday"},
			{"id": int64(2), "day_of_week": "Tuesday"},
		},
	}}
	sink := &memorySink{}

	base := []Option{
		WithRecorder(audit.NewRecorder(log, sink)),
		WithClock(func() time.Time { return fixedNow }),
	}
	svc := NewService(pipeline.New(nil, p, log), matrix, q, fakeAnswerer{answer: "Class 10A has two periods."}, log,
		append(base, opts...)...)
	return &fixture{svc: svc, querier: q, sink: sink}
}

func (f *fixture) onlyEntry(t *testing.T) *audit.Entry {
	t.Helper()
	require.Len(t, f.sink.entries, 1, "exactly one audit entry per request")
	return f.sink.entries[0]
}

var teacher = models.Principal{UserID: "t-1", Roles: []string{"teacher"}}

func TestAsk_Success(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Ask(context.Background(), teacher, Request{
		Question: "Show me the timetable for Class 10A",
		Context:  map[string]interface{}{"class_id": float64(10)},
	})
	require.NoError(t, err)

	assert.Equal(t, "Class 10A has two periods.", resp.Answer)
	assert.Equal(t, "get_timetable", resp.Intent)
	assert.Equal(t, 2, resp.RowsCount)
	assert.InDelta(t, 0.8, resp.Confidence, 1e-9)
	if diff := cmp.Diff([]Source{
		{Table: "get_timetable", RowID: int64(1)},
		{Table: "get_timetable", RowID: int64(2)},
	}, resp.Sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}

	assert.Contains(t, f.querier.template, "FROM timetables t")
	if diff := cmp.Diff([]interface{}{int64(10), int64(100)}, f.querier.args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	e := f.onlyEntry(t)
	assert.True(t, e.Success)
	assert.Equal(t, "get_timetable", e.Intent)
	assert.Equal(t, 2, e.RowsReturned)
	assert.Equal(t, "t-1", e.UserID)
	assert.Equal(t, int64(10), e.Parameters["class_id"])
	assert.LessOrEqual(t, len(e.SQLTemplate), audit.MaxTemplateLen)
	assert.Empty(t, e.ErrorMessage)
}

func TestAsk_UnknownQuestion(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Ask(context.Background(), models.Principal{UserID: "a-1", Roles: []string{"admin"}},
		Request{Question: "asdf qwerty"})
	require.NoError(t, err)

	assert.Equal(t, UnknownAnswer, resp.Answer)
	assert.Equal(t, "unknown", resp.Intent)
	assert.Zero(t, resp.Confidence)
	assert.Empty(t, resp.Sources)
	assert.NotNil(t, resp.Sources)
	assert.Zero(t, f.querier.calls)

	e := f.onlyEntry(t)
	assert.False(t, e.Success)
	assert.Equal(t, "unknown", e.Intent)
	assert.Equal(t, "Could not understand the question", e.ErrorMessage)
}

func TestAsk_Forbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ask(context.Background(), teacher, Request{Question: "show fee status"})
	require.Error(t, err)

	stdErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeForbidden, stdErr.Code)
	assert.NotContains(t, stdErr.Message, "accountant")
	assert.Zero(t, f.querier.calls)

	e := f.onlyEntry(t)
	assert.False(t, e.Success)
	assert.Equal(t, "get_fee_summary", e.Intent)
	assert.Equal(t, "Permission denied or invalid query", e.ErrorMessage)
}

func TestAsk_RateLimited(t *testing.T) {
	f := newFixture(t, WithRateLimiter(fixedLimiter{allowed: false}))

	_, err := f.svc.Ask(context.Background(), teacher, Request{Question: "Show me the timetable for Class 10A"})

	assert.Equal(t, apperrors.ErrCodeRateLimited, apperrors.CodeOf(err))
	assert.Zero(t, f.querier.calls)
	assert.False(t, f.onlyEntry(t).Success)
}

func TestAsk_RateLimiterDegradedAllows(t *testing.T) {
	f := newFixture(t, WithRateLimiter(fixedLimiter{allowed: true, err: fmt.Errorf("redis down")}))

	_, err := f.svc.Ask(context.Background(), teacher, Request{Question: "Show me the timetable for Class 10A"})

	require.NoError(t, err)
	assert.Equal(t, 1, f.querier.calls)
}

func TestAsk_QueryFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode apperrors.ErrorCode
	}{
		{"timeout", fmt.Errorf("%w: context deadline exceeded", store.ErrQueryTimeout), apperrors.ErrCodeQueryTimeout},
		{"execution", fmt.Errorf("%w: relation does not exist", store.ErrQueryExecutionFailed), apperrors.ErrCodeQueryExecutionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.querier.err = tt.err
			f.querier.result = nil

			_, err := f.svc.Ask(context.Background(), teacher, Request{Question: "Show me the timetable for Class 10A"})

			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			assert.NotContains(t, apperrors.PublicMessage(err), "relation")
			e := f.onlyEntry(t)
			assert.False(t, e.Success)
			assert.Equal(t, tt.err.Error(), e.ErrorMessage)
		})
	}
}

func TestAsk_InvalidRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ask(context.Background(), teacher, Request{Question: "hi"})

	assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.CodeOf(err))
	assert.Len(t, f.sink.entries, 1)
}

func TestSourcesFor(t *testing.T) {
	rs := &models.ResultSet{}
	for i := 0; i < 15; i++ {
		row := models.Row{"name": "x"}
		if i%2 == 0 {
			row["id"] = int64(i)
		}
		rs.Rows = append(rs.Rows, row)
	}

	got := sourcesFor(models.IntentStudentInfo, rs)

	// rows 0..9 are considered; even ones carry an id
	require.Len(t, got, 5)
	assert.Equal(t, Source{Table: "get_student_info", RowID: int64(8)}, got[4])
	assert.Empty(t, sourcesFor(models.IntentStudentInfo, nil))
}

func TestIntents(t *testing.T) {
	f := newFixture(t)

	got := f.svc.Intents(models.Principal{UserID: "s-1", Roles: []string{"student"}})
	assert.Len(t, got.Intents, 16)
	assert.NotContains(t, got.Allowed, models.IntentFeeSummary)
	assert.Contains(t, got.Allowed, models.IntentTimetable)
	assert.Equal(t, []string{"student"}, got.UserRoles)

	none := f.svc.Intents(models.Principal{UserID: "x"})
	assert.Equal(t, []models.Intent{}, none.Allowed)
	assert.Equal(t, []string{}, none.UserRoles)
}
