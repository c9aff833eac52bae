package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opsinsight/reportcore/pkg/result"
	"github.com/opsinsight/reportcore/pkg/workflow"
)

// Error codes for failures that carry no code of their own.
const (
	CodeInternal       = "internal_error"
	CodeInvalidPayload = "job.invalid_payload"
)

// Runner executes one analysis job. It is satisfied by *workflow.Workflow.
type Runner interface {
	Run(ctx context.Context, job workflow.Job) (*result.Result, error)
}

// ErrorCode returns the code an error reports through an ErrorCode method,
// or internal_error when it has none.
func ErrorCode(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCanceled
	}
	return CodeInternal
}

// WorkerPool promotes, claims and runs analysis jobs using a pool of
// goroutines. Jobs run once; a failed job stays failed.
type WorkerPool struct {
	store  *JobStore
	runner Runner
	cfg    *JobConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(store *JobStore, runner Runner, cfg *JobConfig, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	return &WorkerPool{
		store:  store,
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts the worker pool. It spawns cfg.Concurrency goroutines,
// each polling for jobs. It blocks until the context is cancelled,
// then waits for all workers to finish.
func (wp *WorkerPool) Run(ctx context.Context) {
	if wp.store == nil || !wp.cfg.Enabled {
		wp.logger.Info("job worker pool disabled")
		return
	}

	wp.logger.Info("job worker pool starting",
		"concurrency", wp.cfg.Concurrency,
		"pollInterval", wp.cfg.PollInterval.String(),
		"claimTimeout", wp.cfg.ClaimTimeout.String())

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.cleanupLoop(ctx)
	}()

	for i := 0; i < wp.cfg.Concurrency; i++ {
		wp.wg.Add(1)
		go func(workerID int) {
			defer wp.wg.Done()
			wp.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wp.logger.Info("job worker pool shutting down, waiting for workers to finish")
	wp.wg.Wait()
	wp.logger.Info("job worker pool stopped")
}

// workerLoop is the main loop for a single worker goroutine.
func (wp *WorkerPool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	wp.logger.Info("worker started", "workerID", workerID)

	for {
		select {
		case <-ctx.Done():
			wp.logger.Info("worker stopped", "workerID", workerID)
			return
		case <-ticker.C:
			if _, err := wp.store.PromotePending(ctx); err != nil && ctx.Err() == nil {
				wp.logger.Error("failed to promote pending jobs", "workerID", workerID, "error", err)
			}
			wp.processOne(ctx, workerID)
		}
	}
}

// processOne tries to claim and run a single job.
func (wp *WorkerPool) processOne(ctx context.Context, workerID int) {
	job, err := wp.store.Claim(ctx)
	if err != nil {
		if ctx.Err() == nil {
			wp.logger.Error("failed to claim job", "workerID", workerID, "error", err)
		}
		return
	}
	if job == nil {
		return // No jobs available.
	}

	wp.logger.Info("processing job",
		"workerID", workerID,
		"jobID", job.ID,
		"taskKind", job.TaskKind,
		"spiderTaskID", job.SpiderTaskID)

	start := time.Now()
	// Persist the outcome even when shutdown cancels the run.
	persistCtx := context.WithoutCancel(ctx)

	wj, err := job.WorkflowJob()
	if err != nil {
		wp.fail(persistCtx, job.ID, CodeInvalidPayload, err, time.Since(start))
		return
	}

	runCtx := ctx
	if wp.cfg.ClaimTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, wp.cfg.ClaimTimeout)
		defer cancel()
	}

	res, err := wp.runner.Run(runCtx, wj)
	if err != nil {
		wp.fail(persistCtx, job.ID, ErrorCode(err), err, time.Since(start))
		return
	}

	body, err := json.Marshal(res)
	if err != nil {
		wp.fail(persistCtx, job.ID, CodeInternal, err, time.Since(start))
		return
	}

	duration := time.Since(start)
	wp.logger.Info("job completed",
		"workerID", workerID,
		"jobID", job.ID,
		"evidences", len(res.Evidences()),
		"warnings", len(res.Warnings()),
		"duration", duration.String())

	if err := wp.store.Complete(persistCtx, job.ID, body, duration); err != nil {
		wp.logger.Error("failed to mark job as complete", "jobID", job.ID, "error", err)
	}
}

func (wp *WorkerPool) fail(ctx context.Context, jobID int64, code string, cause error, duration time.Duration) {
	wp.logger.Error("job failed", "jobID", jobID, "errorCode", code, "error", cause)
	if err := wp.store.Fail(ctx, jobID, code, cause.Error(), duration); err != nil {
		wp.logger.Error("failed to mark job as failed", "jobID", jobID, "error", err)
	}
}

// cleanupLoop periodically fails stuck jobs and deletes old finished jobs.
func (wp *WorkerPool) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.cleanup(ctx, time.Now())
		}
	}
}

func (wp *WorkerPool) cleanup(ctx context.Context, now time.Time) {
	if wp.cfg.ClaimTimeout > 0 {
		failed, err := wp.store.CleanupStuckJobs(ctx, wp.cfg.ClaimTimeout)
		if err != nil {
			wp.logger.Error("failed to cleanup stuck jobs", "error", err)
		} else if failed > 0 {
			wp.logger.Info("failed stuck jobs", "count", failed)
		}
	}

	if wp.cfg.RetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -wp.cfg.RetentionDays)
		deleted, err := wp.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			wp.logger.Error("failed to delete old jobs", "error", err)
		} else if deleted > 0 {
			wp.logger.Info("deleted old jobs", "count", deleted)
		}
	}
}
