package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENVIRONMENT", "ERP_JWT_SECRET", "ERP_JWT_ISSUER", "DISABLE_AUTH",
		"DB_HOST", "DB_NAME", "DB_USER", "DB_PASSWORD", "REDIS_ADDRESS",
		"GEMINI_API_KEY", "ALLOWED_TABLES", "FRONTEND_URL", "AUDIT_DB_HOST",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromFile_Defaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
auth:
  jwt_secret: s3cret
database:
  postgres:
    host: db.internal
    database: erp
    user: erp
workers:
  query-postgresql:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "erp-nlquery", cfg.App.Name)
	assert.Equal(t, 5003, cfg.Server.Port)
	assert.Equal(t, "erp_mcp", cfg.Auth.Audience)
	assert.Equal(t, 100, cfg.Query.MaxRows)
	assert.Equal(t, 1000, cfg.Query.HardRowCap)
	assert.Equal(t, DefaultAllowedTables, cfg.Query.AllowedTables)
	assert.Equal(t, "mcp_audit_logs", cfg.Audit.Table)
	assert.Equal(t, 30, cfg.RateLimit.PerMinute)
	assert.Equal(t, "public", cfg.Database.Postgres.Schema)

	// audit database falls back to the main one
	assert.Equal(t, "db.internal", cfg.Database.Audit.Host)

	wc := GetWorkerConfig(cfg, "query-postgresql")
	assert.Equal(t, 5, wc.MaxJobsActive)
	assert.Equal(t, 30*time.Second, GetDuration(wc.Timeout))
	assert.Equal(t, 3, wc.MaxRetries)
}

func TestLoadFromFile_EnvironmentPlaceholders(t *testing.T) {
	clearEnv(t)
	t.Setenv("ERP_JWT_SECRET", "from-env")
	t.Setenv("DB_HOST", "pg.example")
	t.Setenv("ALLOWED_TABLES", "students, fees")

	path := writeConfig(t, `
auth:
  jwt_secret: ${ERP_JWT_SECRET}
database:
  postgres:
    host: ${DB_HOST}
    database: erp
    user: erp
  audit:
    host: ${AUDIT_DB_HOST}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "pg.example", cfg.Database.Postgres.Host)
	assert.Equal(t, []string{"students", "fees"}, cfg.Query.AllowedTables)
	assert.Equal(t, "pg.example", cfg.Database.Audit.Host, "an unset placeholder must not count as a configured audit host")
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing postgres host",
			body:    "auth:\n  jwt_secret: x\ndatabase:\n  postgres:\n    database: erp\n    user: erp\n",
			wantErr: "database.postgres.host is required",
		},
		{
			name:    "missing jwt secret",
			body:    "database:\n  postgres:\n    host: h\n    database: erp\n    user: erp\n",
			wantErr: "auth.jwt_secret is required",
		},
		{
			name:    "max rows above ceiling",
			body:    "auth:\n  jwt_secret: x\ndatabase:\n  postgres:\n    host: h\n    database: erp\n    user: erp\nquery:\n  max_rows: 5000\n  hard_row_cap: 6000\n",
			wantErr: "query.max_rows must be between 1 and 1000",
		},
		{
			name:    "camunda without broker",
			body:    "auth:\n  jwt_secret: x\ndatabase:\n  postgres:\n    host: h\n    database: erp\n    user: erp\ncamunda:\n  enabled: true\n",
			wantErr: "camunda.broker_address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_DevelopmentWithoutAuth(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
app:
  environment: development
auth:
  disable_auth: true
database:
  postgres:
    host: localhost
    database: erp
    user: erp
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.App.IsDevelopment())
	assert.True(t, cfg.Auth.DisableAuth)
}

func TestWorkerLookups(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"llm-synthesis": {Enabled: false, MaxJobsActive: 2},
	}}

	assert.False(t, IsWorkerEnabled(cfg, "llm-synthesis"))
	assert.True(t, IsWorkerEnabled(cfg, "classify-intent"))
	assert.Equal(t, 2, GetWorkerConfig(cfg, "llm-synthesis").MaxJobsActive)
	assert.Equal(t, 5, GetWorkerConfig(cfg, "classify-intent").MaxJobsActive)
}
