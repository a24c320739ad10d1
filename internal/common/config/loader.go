// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultAllowedTables is used for schema introspection when nothing is configured.
var DefaultAllowedTables = []string{
	"students", "teachers", "timetables", "attendance",
	"subjects", "classes", "fees", "exams",
}

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment overlay is optional

	return finish(v, env)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v, os.Getenv("APP_ENVIRONMENT"))
}

func finish(v *viper.Viper, env string) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = env
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or the project root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			// unset variables expand to "" so overrideEmptyConfig can fill them
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills values still empty after expansion from the
// environment variable names the ERP deployment already uses.
func overrideEmptyConfig(cfg *Config) {
	setString := func(dst *string, envKey string) {
		if *dst == "" {
			if val := os.Getenv(envKey); val != "" {
				*dst = val
			}
		}
	}

	setString(&cfg.Auth.JWTSecret, "ERP_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "ERP_JWT_ISSUER")
	setString(&cfg.GenAI.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Database.Postgres.Host, "DB_HOST")
	setString(&cfg.Database.Postgres.Database, "DB_NAME")
	setString(&cfg.Database.Postgres.User, "DB_USER")
	setString(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Database.Redis.Address, "REDIS_ADDRESS")
	setString(&cfg.Server.FrontendURL, "FRONTEND_URL")

	if !cfg.Auth.DisableAuth {
		if val, err := strconv.ParseBool(os.Getenv("DISABLE_AUTH")); err == nil {
			cfg.Auth.DisableAuth = val
		}
	}
	if len(cfg.Query.AllowedTables) == 0 {
		if val := os.Getenv("ALLOWED_TABLES"); val != "" {
			cfg.Query.AllowedTables = splitList(val)
		}
	}
	if len(cfg.Query.AllowedTables) == 1 && strings.Contains(cfg.Query.AllowedTables[0], ",") {
		cfg.Query.AllowedTables = splitList(cfg.Query.AllowedTables[0])
	}
	if len(cfg.Query.AllowedTables) == 0 {
		cfg.Query.AllowedTables = append([]string(nil), DefaultAllowedTables...)
	}

	// audit database falls back to the main database
	if !cfg.Database.Audit.IsSet() {
		cfg.Database.Audit = cfg.Database.Postgres
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "erp-nlquery"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5003
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	if cfg.Auth.Audience == "" {
		cfg.Auth.Audience = "erp_mcp"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	for _, pg := range []*PostgresConfig{&cfg.Database.Postgres, &cfg.Database.Audit} {
		if pg.Port == 0 {
			pg.Port = 5432
		}
		if pg.Schema == "" {
			pg.Schema = "public"
		}
		if pg.MaxConnections == 0 {
			pg.MaxConnections = 25
		}
		if pg.MaxIdle == 0 {
			pg.MaxIdle = 5
		}
		if pg.SSLMode == "" {
			pg.SSLMode = "disable"
		}
	}
	if cfg.Database.Redis.CacheTTL == 0 {
		cfg.Database.Redis.CacheTTL = 300
	}

	if cfg.Query.MaxRows == 0 {
		cfg.Query.MaxRows = 100
	}
	if cfg.Query.HardRowCap == 0 {
		cfg.Query.HardRowCap = 1000
	}
	if cfg.Query.Timeout == 0 {
		cfg.Query.Timeout = 10000
	}

	if cfg.GenAI.Model == "" {
		cfg.GenAI.Model = "gemini-2.0-flash-exp"
	}
	if cfg.GenAI.Temperature == 0 {
		cfg.GenAI.Temperature = 0.1
	}
	if cfg.GenAI.MaxTokens == 0 {
		cfg.GenAI.MaxTokens = 500
	}
	if cfg.GenAI.Timeout == 0 {
		cfg.GenAI.Timeout = 30000
	}
	if cfg.GenAI.ClassifierCache == 0 {
		cfg.GenAI.ClassifierCache = 512
	}
	if cfg.GenAI.ClassifierCacheTTL == 0 {
		cfg.GenAI.ClassifierCacheTTL = 600
	}

	if cfg.RateLimit.PerMinute == 0 {
		cfg.RateLimit.PerMinute = 30
	}
	if cfg.RateLimit.PerHour == 0 {
		cfg.RateLimit.PerHour = 500
	}

	if cfg.Audit.Table == "" {
		cfg.Audit.Table = "mcp_audit_logs"
	}
	if cfg.Audit.Index == "" {
		cfg.Audit.Index = "nlquery-audit"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Query.MaxRows < 1 || cfg.Query.MaxRows > 1000 {
		return fmt.Errorf("query.max_rows must be between 1 and 1000, got %d", cfg.Query.MaxRows)
	}
	if cfg.Query.HardRowCap < cfg.Query.MaxRows {
		return fmt.Errorf("query.hard_row_cap (%d) must not be below query.max_rows (%d)", cfg.Query.HardRowCap, cfg.Query.MaxRows)
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if !(cfg.App.IsDevelopment() && cfg.Auth.DisableAuth) && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required unless auth is disabled in development")
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}
	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when elasticsearch is enabled")
	}

	if cfg.RateLimit.PerMinute < 0 || cfg.RateLimit.PerHour < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
