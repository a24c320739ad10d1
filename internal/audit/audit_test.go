package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"
)

func newTestEntry() *Entry {
	e := NewEntry(models.Principal{UserID: "u-1", Roles: []string{"teacher"}},
		"show attendance for class 5", time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC))
	e.Intent = "get_attendance"
	e.SetParameters(models.Params{"class_name": models.StringValue("5")})
	e.RowsReturned = 3
	e.Success = true
	e.ResponseTimeMS = 120
	return e
}

func TestNewEntry(t *testing.T) {
	e := NewEntry(models.Principal{UserID: "u-1"}, "q", time.Now())

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, []string{}, e.Roles)
	assert.Empty(t, e.Intent)
	assert.NotNil(t, e.Parameters)
	assert.Equal(t, time.UTC, e.Timestamp.Location())
}

func TestEntry_SetTemplateTruncates(t *testing.T) {
	e := &Entry{}
	e.SetTemplate(strings.Repeat("x", 250))
	assert.Len(t, e.SQLTemplate, MaxTemplateLen)

	e.SetTemplate("SELECT 1")
	assert.Equal(t, "SELECT 1", e.SQLTemplate)
}

func TestPostgresStore_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewPostgresStore(db, "", logger.NewTestLogger(t))
	require.NoError(t, err)

	e := newTestEntry()
	mock.ExpectExec(`INSERT INTO mcp_audit_logs`).
		WithArgs(e.ID, "u-1", `["teacher"]`, e.Question, "get_attendance", `{"class_name":"5"}`,
			nil, 3, true, nil, int64(120), e.Timestamp).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Insert(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewPostgresStore(db, "audit_custom", logger.NewNoOpLogger())
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO audit_custom`).WillReturnError(errors.New("connection reset"))

	err = store.Insert(context.Background(), newTestEntry())
	assert.ErrorIs(t, err, ErrAuditInsertFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RejectsUnsafeTableName(t *testing.T) {
	_, err := NewPostgresStore(nil, "logs; DROP TABLE students", logger.NewNoOpLogger())
	assert.Error(t, err)
}

func TestPostgresStore_CountSince(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewPostgresStore(db, "", logger.NewNoOpLogger())
	require.NoError(t, err)

	since := time.Date(2024, 5, 15, 9, 59, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM mcp_audit_logs WHERE user_id = \$1 AND timestamp >= \$2`).
		WithArgs("u-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.CountSince(context.Background(), "u-1", since)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountSinceFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewPostgresStore(db, "", logger.NewNoOpLogger())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errors.New("boom"))

	count, err := store.CountSince(context.Background(), "u-1", time.Now())
	assert.ErrorIs(t, err, ErrAuditQueryFailed)
	assert.Zero(t, count)
}

type capturedRequest struct {
	method string
	path   string
	body   map[string]interface{}
}

func newElasticsearchServer(t *testing.T, status int) (*elasticsearch.Client, *[]capturedRequest) {
	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)

		mu.Lock()
		captured = append(captured, capturedRequest{method: r.Method, path: r.URL.Path, body: body})
		mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client, &captured
}

func TestElasticsearchStore_Insert(t *testing.T) {
	client, captured := newElasticsearchServer(t, http.StatusCreated)
	store := NewElasticsearchStore(client, "", logger.NewTestLogger(t))

	e := newTestEntry()
	require.NoError(t, store.Insert(context.Background(), e))

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/nlquery-audit/_doc/"+e.ID, req.path)
	assert.Equal(t, "u-1", req.body["user_id"])
	assert.Equal(t, "get_attendance", req.body["intent"])
	assert.Equal(t, true, req.body["success"])
}

func TestElasticsearchStore_InsertError(t *testing.T) {
	client, _ := newElasticsearchServer(t, http.StatusInternalServerError)
	store := NewElasticsearchStore(client, "audit", logger.NewNoOpLogger())

	err := store.Insert(context.Background(), newTestEntry())
	assert.ErrorIs(t, err, ErrAuditIndexFailed)
}

func TestElasticsearchStore_EnsureIndex(t *testing.T) {
	tests := []struct {
		name        string
		existStatus int
		wantPaths   []string
		wantErr     bool
	}{
		{name: "already there", existStatus: http.StatusOK, wantPaths: []string{"HEAD /nlquery-audit"}},
		{name: "created", existStatus: http.StatusNotFound, wantPaths: []string{"HEAD /nlquery-audit", "PUT /nlquery-audit"}},
		{name: "cluster error", existStatus: http.StatusUnauthorized, wantPaths: []string{"HEAD /nlquery-audit"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu    sync.Mutex
				paths []string
				body  map[string]interface{}
			)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				paths = append(paths, r.Method+" "+r.URL.Path)
				mu.Unlock()

				w.Header().Set("X-Elastic-Product", "Elasticsearch")
				w.Header().Set("Content-Type", "application/json")
				if r.Method == http.MethodHead {
					w.WriteHeader(tt.existStatus)
					return
				}
				raw, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(raw, &body)
				_, _ = w.Write([]byte(`{"acknowledged":true}`))
			}))
			defer srv.Close()

			client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
			require.NoError(t, err)
			store := NewElasticsearchStore(client, "", logger.NewTestLogger(t))

			err = store.EnsureIndex(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAuditIndexFailed)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantPaths, paths)
			if len(tt.wantPaths) == 2 {
				require.Contains(t, body, "mappings")
			}
		})
	}
}

type sinkFunc func(ctx context.Context, e *Entry) error

func (f sinkFunc) Insert(ctx context.Context, e *Entry) error { return f(ctx, e) }

func TestRecorder_FansOutAndSwallowsErrors(t *testing.T) {
	var calls []string
	failing := sinkFunc(func(context.Context, *Entry) error {
		calls = append(calls, "failing")
		return errors.New("disk full")
	})
	ok := sinkFunc(func(ctx context.Context, e *Entry) error {
		calls = append(calls, "ok")
		assert.NoError(t, ctx.Err())
		return nil
	})

	r := NewRecorder(logger.NewTestLogger(t), failing, nil, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, newTestEntry())

	assert.Equal(t, []string{"failing", "ok"}, calls)
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() { r.Record(context.Background(), newTestEntry()) })
}
