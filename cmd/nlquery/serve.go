package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"erp-nlquery/internal/access"
	"erp-nlquery/internal/audit"
	"erp-nlquery/internal/common/auth"
	"erp-nlquery/internal/common/camunda"
	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/database"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/common/observability"
	"erp-nlquery/internal/intent"
	"erp-nlquery/internal/llm"
	"erp-nlquery/internal/nlquery"
	"erp-nlquery/internal/pipeline"
	"erp-nlquery/internal/planner"
	"erp-nlquery/internal/ratelimit"
	"erp-nlquery/internal/server"
	"erp-nlquery/internal/store"

	llmsynthesis "erp-nlquery/internal/workers/ai-conversation/llm-synthesis"
	querypostgresql "erp-nlquery/internal/workers/data-access/query-postgresql"
	classifyintent "erp-nlquery/internal/workers/nl-query/classify-intent"
	"erp-nlquery/pkg/registry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Zeebe workers and the metrics listener",
		RunE:  runServe,
	}
}

// retryWithBackoff runs operation until it succeeds or maxRetries attempts
// have failed, doubling the delay each time.
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}

		log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
			"error":       err,
			"attempt":     i + 1,
			"maxRetries":  maxRetries,
			"nextRetryIn": delay.String(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled: %w", operationName, ctx.Err())
		}
		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// connectPostgres opens and pings a pool, retrying while the database starts.
func connectPostgres(ctx context.Context, pgCfg config.PostgresConfig, name string) (*database.PostgresClient, error) {
	var pg *database.PostgresClient
	err := retryWithBackoff(ctx, func() error {
		if pg == nil {
			var err error
			if pg, err = database.NewPostgres(pgCfg); err != nil {
				return err
			}
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pg.Ping(pingCtx)
	}, 15, 2*time.Second, appLog, name+" connection")
	if err != nil {
		if pg != nil {
			_ = pg.Close()
		}
		return nil, err
	}
	appLog.Info(name+" connected successfully", nil)
	return pg, nil
}

// connectRedis returns nil when Redis is not configured or not reachable.
// Callers then run without the result cache and with in-process rate limits.
func connectRedis(ctx context.Context) *database.RedisClient {
	rc := database.NewRedis(cfg.Database.Redis)
	if rc == nil {
		appLog.Info("redis not configured, rate limiting is per process", nil)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		appLog.Warn("redis unavailable, rate limiting is per process and result cache is off", map[string]interface{}{"error": err})
		_ = rc.Close()
		return nil
	}
	appLog.Info("Redis connected successfully", nil)
	return rc
}

func auditSinks(ctx context.Context, pg *database.PostgresClient) ([]audit.Sink, func(), error) {
	cleanup := func() {}
	if !cfg.Audit.Enabled {
		return nil, cleanup, nil
	}

	db := pg
	if cfg.Database.Audit.IsSet() {
		auditPG, err := connectPostgres(ctx, cfg.Database.Audit, "Audit database")
		if err != nil {
			return nil, cleanup, err
		}
		db = auditPG
		cleanup = func() { _ = auditPG.Close() }
	}

	pgStore, err := audit.NewPostgresStore(db.DB, cfg.Audit.Table, appLog)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	sinks := []audit.Sink{pgStore}

	if cfg.Database.Elasticsearch.Enabled {
		if mirror, err := elasticsearchSink(ctx); err != nil {
			appLog.Warn("elasticsearch audit mirror disabled", map[string]interface{}{"error": err})
		} else {
			sinks = append(sinks, mirror)
		}
	}
	return sinks, cleanup, nil
}

func elasticsearchSink(ctx context.Context) (*audit.ElasticsearchStore, error) {
	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		return nil, err
	}
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	version, err := es.Version(initCtx)
	if err != nil {
		return nil, err
	}
	mirror := audit.NewElasticsearchStore(es.Client, cfg.Audit.Index, appLog)
	if err := mirror.EnsureIndex(initCtx); err != nil {
		return nil, err
	}
	appLog.Info("Elasticsearch audit mirror enabled", map[string]interface{}{"version": version, "index": cfg.Audit.Index})
	return mirror, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLog.Info("starting nlquery", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	obs := observability.New(cfg.App.Name, appLog)
	defer obs.Shutdown()

	pg, err := connectPostgres(ctx, cfg.Database.Postgres, "PostgreSQL")
	if err != nil {
		return err
	}
	defer pg.Close()

	// rdb stays a nil interface when Redis is absent
	var rdb redis.Cmdable
	if rc := connectRedis(ctx); rc != nil {
		defer rc.Close()
		rdb = rc.Client
	}

	sinks, closeAudit, err := auditSinks(ctx, pg)
	if err != nil {
		return err
	}
	defer closeAudit()
	recorder := audit.NewRecorder(appLog, sinks...)

	var (
		gen      llm.Generator
		fallback intent.Classifier
	)
	if cfg.GenAI.APIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GenAI, obs, appLog)
		if err != nil {
			return err
		}
		gen = gemini
		if cfg.GenAI.FallbackEnabled {
			fallback = llm.NewGeminiClassifier(gemini, cfg.GenAI, appLog)
		}
	} else {
		appLog.Warn("genai.api_key not set, answers are formatted rows and there is no fallback classifier", nil)
	}

	matrix := access.NewMatrix(appLog)
	plans := planner.New(matrix, cfg.Query.MaxRows, appLog)
	if err := plans.Validate(); err != nil {
		return err
	}
	pipe := pipeline.New(fallback, plans, appLog)

	var querier store.Querier = store.NewExecutor(pg.DB, cfg.Query, appLog)
	if cfg.Query.CacheEnabled && rdb != nil {
		ttl := time.Duration(cfg.Database.Redis.CacheTTL) * time.Second
		querier = store.NewCachedExecutor(querier, rdb, ttl, appLog)
	}
	answers := llm.NewAnswerGenerator(gen, cfg.GenAI, appLog)

	svc := nlquery.NewService(pipe, matrix, querier, answers, appLog,
		nlquery.WithRateLimiter(ratelimit.New(rdb, cfg.RateLimit, appLog)),
		nlquery.WithRecorder(recorder),
		nlquery.WithObservability(obs),
	)

	srv, err := server.New(server.Deps{
		App:      cfg.App,
		Server:   cfg.Server,
		Service:  svc,
		Verifier: auth.NewVerifier(cfg.App, cfg.Auth, appLog),
		Schema:   store.NewSchemaInspector(pg.DB, cfg.Database.Postgres.Schema, cfg.Query.AllowedTables, appLog),
		Database: pg,
		Logger:   appLog,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.Server.MetricsPort > 0 && cfg.Server.MetricsPort != cfg.Server.Port {
		g.Go(func() error { return runMetrics(gctx, cfg.Server.MetricsPort) })
	}

	if cfg.Camunda.Enabled {
		zeebe, err := camunda.NewClient(ctx, cfg.Camunda, appLog)
		if err != nil {
			return err
		}
		defer zeebe.Close()

		workers, err := buildWorkers(zeebe, pipe, plans, querier, recorder, answers)
		if err != nil {
			return err
		}
		appLog.Info("workers registered", map[string]interface{}{"count": len(workers)})
		g.Go(func() error { return camunda.RunWorkers(gctx, workers...) })
	}

	err = g.Wait()
	appLog.Info("nlquery stopped", nil)
	return err
}

func buildWorkers(zeebe *camunda.Client, pipe *pipeline.Pipeline, plans *planner.Planner, q store.Querier,
	recorder *audit.Recorder, answers *llm.AnswerGenerator) ([]*camunda.Worker, error) {
	handlers := map[string]func(config.WorkerConfig) camunda.JobHandler{
		classifyintent.TaskType: func(wc config.WorkerConfig) camunda.JobHandler {
			return classifyintent.NewHandler(classifyintent.LoadConfig(wc), pipe, appLog)
		},
		querypostgresql.TaskType: func(wc config.WorkerConfig) camunda.JobHandler {
			return querypostgresql.NewHandler(querypostgresql.LoadConfig(wc), plans, q, recorder, appLog)
		},
		llmsynthesis.TaskType: func(wc config.WorkerConfig) camunda.JobHandler {
			return llmsynthesis.NewHandler(llmsynthesis.LoadConfig(wc), answers, appLog)
		},
	}

	var workers []*camunda.Worker
	for _, activity := range registry.Default().Activities {
		newHandler, ok := handlers[activity.TaskType]
		if !ok {
			return nil, fmt.Errorf("no handler for registered task type %q", activity.TaskType)
		}
		if !config.IsWorkerEnabled(cfg, activity.TaskType) {
			appLog.Info("worker disabled", map[string]interface{}{"taskType": activity.TaskType})
			continue
		}
		wc := config.GetWorkerConfig(cfg, activity.TaskType)
		workers = append(workers, camunda.NewWorker(zeebe.Zeebe(), activity.TaskType, wc, newHandler(wc), appLog))
	}
	return workers, nil
}

// runMetrics serves /metrics on a separate port for scrapers that should not
// reach the API.
func runMetrics(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLog.Info("metrics listener started", map[string]interface{}{"addr": srv.Addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}
