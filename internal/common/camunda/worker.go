package camunda

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/common/metrics"
)

// JobHandler processes one activated job and is responsible for completing
// or failing it.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// Worker polls one task type.
type Worker struct {
	client   zbc.Client
	taskType string
	cfg      config.WorkerConfig
	handler  JobHandler
	logger   logger.Logger

	mu     sync.Mutex
	active worker.JobWorker
}

func NewWorker(client zbc.Client, taskType string, cfg config.WorkerConfig, handler JobHandler, log logger.Logger) *Worker {
	if cfg.MaxJobsActive <= 0 {
		cfg.MaxJobsActive = 5
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Worker{
		client:   client,
		taskType: taskType,
		cfg:      cfg,
		handler:  handler,
		logger:   log.WithFields(map[string]interface{}{"taskType": taskType}),
	}
}

func (w *Worker) TaskType() string { return w.taskType }

func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active != nil {
		return
	}

	step := w.client.NewJobWorker().
		JobType(w.taskType).
		Handler(w.handle).
		Name("erp-nlquery").
		MaxJobsActive(w.cfg.MaxJobsActive)
	if timeout := config.GetDuration(w.cfg.Timeout); timeout > 0 {
		step = step.Timeout(timeout)
	}
	w.active = step.Open()
	w.logger.Info("worker started", map[string]interface{}{"maxJobsActive": w.cfg.MaxJobsActive})
}

func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return
	}
	w.logger.Info("stopping worker", nil)
	w.active.Close()
	w.active.AwaitClose()
	w.active = nil
}

func (w *Worker) handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(w.taskType).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			w.logger.Error("handler panicked", map[string]interface{}{"jobKey": job.Key, "panic": fmt.Sprint(r)})
			metrics.WorkerJobsFailed.WithLabelValues(w.taskType, "PANIC").Inc()
		}
	}()
	w.handler.Handle(client, job)
}

// RunWorkers starts every worker and blocks until ctx is cancelled.
func RunWorkers(ctx context.Context, workers ...*Worker) error {
	for _, w := range workers {
		w.Start()
	}
	<-ctx.Done()
	for _, w := range workers {
		w.Stop()
	}
	return nil
}

// CompleteJob sends vars as the job result.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, vars interface{}) error {
	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(vars)
	if err != nil {
		return fmt.Errorf("build complete command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("complete job %d: %w", job.Key, err)
	}
	metrics.WorkerJobsCompleted.WithLabelValues(job.Type).Inc()
	return nil
}
