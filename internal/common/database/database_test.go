package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-nlquery/internal/common/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.PostgresConfig{
		Host: "db", Port: 5432, User: "erp", Password: "pw", Database: "school", SSLMode: "disable", Schema: "erp",
	})

	assert.Contains(t, dsn, "host=db port=5432 user=erp password=pw dbname=school sslmode=disable")
	assert.Contains(t, dsn, "application_name=erp-nlquery")
	assert.Contains(t, dsn, "search_path=erp")

	assert.NotContains(t, DSN(config.PostgresConfig{Host: "db"}), "search_path")
}

func TestPostgresClient_NilSafe(t *testing.T) {
	var c *PostgresClient
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}

func TestNewRedis(t *testing.T) {
	assert.Nil(t, NewRedis(config.RedisConfig{}))

	mr := miniredis.RunT(t)
	rc := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NotNil(t, rc)
	defer rc.Close()

	assert.NoError(t, rc.Ping(context.Background()))

	mr.Close()
	assert.Error(t, rc.Ping(context.Background()))
}

func TestElasticsearchVersion(t *testing.T) {
	assert.NotPanics(t, func() {
		_, err := NewElasticsearch(config.ElasticsearchConfig{})
		assert.Error(t, err)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cluster_name":"erp","version":{"number":"8.11.0"}}`))
	}))
	defer srv.Close()

	es, err := NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	v, err := es.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8.11.0", v)
	assert.NoError(t, es.Ping(context.Background()))
}
