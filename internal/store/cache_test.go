package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingQuerier struct {
	result *models.ResultSet
	err    error
	calls  int
}

func (q *countingQuerier) Execute(context.Context, string, []interface{}) (*models.ResultSet, error) {
	q.calls++
	return q.result, q.err
}

func sampleResult() *models.ResultSet {
	return &models.ResultSet{
		Columns: []string{"id", "name"},
		Rows: []models.Row{
			{"id": int64(7), "name": "Ravi"},
		},
	}
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestCachedExecutor_MissThenHit(t *testing.T) {
	mr, client := setupRedis(t)
	next := &countingQuerier{result: sampleResult()}
	cached := NewCachedExecutor(next, client, time.Minute, logger.NewTestLogger(t))
	args := []interface{}{int64(1), "%Ravi%"}

	first, err := cached.Execute(context.Background(), "SELECT 1", args)
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), first)

	key, err := CacheKey("SELECT 1", args)
	require.NoError(t, err)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	second, err := cached.Execute(context.Background(), "SELECT 1", args)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, []string{"id", "name"}, second.Columns)
	require.Equal(t, 1, second.Len())
	assert.Equal(t, "Ravi", second.Rows[0]["name"])
	assert.Equal(t, json.Number("7"), second.Rows[0]["id"])
}

func TestCachedExecutor_DistinctArgs(t *testing.T) {
	_, client := setupRedis(t)
	next := &countingQuerier{result: sampleResult()}
	cached := NewCachedExecutor(next, client, time.Minute, logger.NewNoOpLogger())

	_, err := cached.Execute(context.Background(), "SELECT 1", []interface{}{int64(1)})
	require.NoError(t, err)
	_, err = cached.Execute(context.Background(), "SELECT 1", []interface{}{int64(2)})
	require.NoError(t, err)

	assert.Equal(t, 2, next.calls)
}

func TestCachedExecutor_ErrorsAreNotCached(t *testing.T) {
	mr, client := setupRedis(t)
	next := &countingQuerier{err: ErrQueryExecutionFailed}
	cached := NewCachedExecutor(next, client, time.Minute, logger.NewNoOpLogger())

	_, err := cached.Execute(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, ErrQueryExecutionFailed)
	assert.Empty(t, mr.Keys())
}

func TestCachedExecutor_RedisFailureFallsThrough(t *testing.T) {
	client, mock := redismock.NewClientMock()
	next := &countingQuerier{result: sampleResult()}
	cached := NewCachedExecutor(next, client, time.Minute, logger.NewTestLogger(t))

	args := []interface{}{int64(3)}
	key, err := CacheKey("SELECT 1", args)
	require.NoError(t, err)
	payload, err := json.Marshal(sampleResult())
	require.NoError(t, err)

	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, payload, time.Minute).SetErr(errors.New("connection refused"))

	result, err := cached.Execute(context.Background(), "SELECT 1", args)
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), result)
	assert.Equal(t, 1, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedExecutor_CorruptEntry(t *testing.T) {
	mr, client := setupRedis(t)
	next := &countingQuerier{result: sampleResult()}
	cached := NewCachedExecutor(next, client, time.Minute, logger.NewNoOpLogger())

	key, err := CacheKey("SELECT 1", nil)
	require.NoError(t, err)
	require.NoError(t, mr.Set(key, "{not json"))

	_, err = cached.Execute(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestCacheKey_Stable(t *testing.T) {
	day := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	a, err := CacheKey("SELECT $1", []interface{}{day})
	require.NoError(t, err)
	b, err := CacheKey("SELECT $1", []interface{}{day})
	require.NoError(t, err)
	c, err := CacheKey("SELECT $1 ", []interface{}{day})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, cacheKeyPrefix)
}
