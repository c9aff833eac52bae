package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/opsinsight/reportcore/pkg/spider"
)

// Error codes the store writes on its own.
const (
	CodeStuck    = "job.timeout"
	CodeCanceled = "job.canceled"
)

// JobStore provides database operations for analysis jobs.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// AutoMigrate creates or updates the ops_analysis_jobs table.
func (s *JobStore) AutoMigrate() error {
	return s.db.AutoMigrate(&AnalysisJob{})
}

// JobListFilter defines filters for listing jobs.
type JobListFilter struct {
	TaskKind     string
	Status       *Status
	CreatedBy    int64
	SpiderTaskID int64
}

// Create inserts a job. A zero status becomes PENDING.
func (s *JobStore) Create(ctx context.Context, job *AnalysisJob) (*AnalysisJob, error) {
	if job.Status == 0 {
		job.Status = StatusPending
	}
	if job.JobType == 0 {
		job.JobType = JobTypeAmazonAnalysis
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Get retrieves a job by ID. It returns nil, nil when no job exists.
func (s *JobStore) Get(ctx context.Context, id int64) (*AnalysisJob, error) {
	var job AnalysisJob
	if err := s.db.WithContext(ctx).First(&job, "job_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns jobs newest first. The page token is the last job ID of the
// previous page.
func (s *JobStore) List(ctx context.Context, filter JobListFilter, pageSize int, pageToken string) ([]AnalysisJob, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.WithContext(ctx).Model(&AnalysisJob{})
		if filter.TaskKind != "" {
			q = q.Where("task_kind = ?", filter.TaskKind)
		}
		if filter.Status != nil {
			q = q.Where("status = ?", *filter.Status)
		}
		if filter.CreatedBy != 0 {
			q = q.Where("created_by = ?", filter.CreatedBy)
		}
		if filter.SpiderTaskID != 0 {
			q = q.Where("spider_task_id = ?", filter.SpiderTaskID)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count jobs: %w", err)
	}

	query := buildQuery(s.db).Order("job_id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		after, err := strconv.ParseInt(pageToken, 10, 64)
		if err != nil || after <= 0 {
			return nil, "", 0, fmt.Errorf("invalid page token %q", pageToken)
		}
		query = query.Where("job_id < ?", after)
	}

	var records []AnalysisJob
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list jobs: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = strconv.FormatInt(records[pageSize-1].ID, 10)
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// PromoteBySpiderTask moves the PENDING jobs of a finished spider task on:
// to READY when the task is ready, to FAILED with the upstream error when it
// failed. Jobs of unfinished tasks are left alone.
func (s *JobStore) PromoteBySpiderTask(ctx context.Context, task *spider.Task) (int64, error) {
	var updates map[string]any
	now := time.Now()
	switch task.Status {
	case spider.StatusReady:
		updates = map[string]any{"status": StatusReady, "updated_at": now}
	case spider.StatusFailed:
		code := task.ErrorCode
		if code == "" {
			code = "spider.failed"
		}
		updates = map[string]any{
			"status":        StatusFailed,
			"error_code":    code,
			"error_message": task.ErrorMessage,
			"finished_at":   now,
			"updated_at":    now,
		}
	default:
		return 0, nil
	}

	result := s.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("spider_task_id = ? AND status = ?", task.ID, StatusPending).
		Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("promote jobs of spider task %d: %w", task.ID, result.Error)
	}
	return result.RowsAffected, nil
}

// PromotePending promotes every PENDING job whose spider task has finished.
func (s *JobStore) PromotePending(ctx context.Context) (int64, error) {
	pending := s.db.Model(&AnalysisJob{}).Select("spider_task_id").Where("status = ?", StatusPending)

	var tasks []spider.Task
	err := s.db.WithContext(ctx).
		Where("task_id IN (?) AND status IN ?", pending, []spider.Status{spider.StatusReady, spider.StatusFailed}).
		Order("task_id ASC").
		Find(&tasks).Error
	if err != nil {
		return 0, fmt.Errorf("find finished spider tasks: %w", err)
	}

	var total int64
	for i := range tasks {
		n, err := s.PromoteBySpiderTask(ctx, &tasks[i])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Claim atomically picks the oldest READY job and moves it to RUNNING.
// Uses FOR UPDATE SKIP LOCKED where supported (MySQL 8, PostgreSQL).
// Returns nil if no jobs are available.
func (s *JobStore) Claim(ctx context.Context) (*AnalysisJob, error) {
	var job AnalysisJob

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Raw(`
			SELECT * FROM ops_analysis_jobs
			WHERE status = ?
			ORDER BY job_id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, StatusReady).Scan(&job)

		if result.Error != nil {
			// SQLite has no row locks; fall back to a plain query.
			result = tx.Where("status = ?", StatusReady).
				Order("job_id ASC").
				Limit(1).
				First(&job)
			if result.Error != nil {
				if errors.Is(result.Error, gorm.ErrRecordNotFound) {
					return nil
				}
				return result.Error
			}
		}

		if job.ID == 0 {
			return nil
		}

		now := time.Now()
		moved := tx.Model(&AnalysisJob{}).Where("job_id = ? AND status = ?", job.ID, StatusReady).
			Updates(map[string]any{
				"status":     StatusRunning,
				"started_at": now,
				"updated_at": now,
			})
		if moved.Error != nil {
			return moved.Error
		}
		if moved.RowsAffected == 0 {
			job = AnalysisJob{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job.ID == 0 {
		return nil, nil
	}

	if err := s.db.WithContext(ctx).First(&job, "job_id = ?", job.ID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed job: %w", err)
	}
	return &job, nil
}

// Complete stores the result of a RUNNING job and marks it succeeded.
func (s *JobStore) Complete(ctx context.Context, id int64, result []byte, duration time.Duration) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("job_id = ? AND status = ?", id, StatusRunning).
		Updates(map[string]any{
			"status":        StatusSucceeded,
			"result":        datatypes.JSON(result),
			"error_code":    "",
			"error_message": "",
			"finished_at":   now,
			"updated_at":    now,
			"duration_ms":   duration.Milliseconds(),
		})
	if res.Error != nil {
		return fmt.Errorf("complete job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("complete job %d: job is not running", id)
	}
	return nil
}

// Fail marks a job as failed. Failed jobs are never retried.
func (s *JobStore) Fail(ctx context.Context, id int64, code, message string, duration time.Duration) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("job_id = ? AND status IN ?", id, []Status{StatusPending, StatusReady, StatusRunning}).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_code":    code,
			"error_message": message,
			"finished_at":   now,
			"updated_at":    now,
			"duration_ms":   duration.Milliseconds(),
		})
	if res.Error != nil {
		return fmt.Errorf("fail job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("fail job %d: job is already finished or missing", id)
	}
	return nil
}

// Cancel fails a job that has not started yet.
func (s *JobStore) Cancel(ctx context.Context, id int64) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("job_id = ? AND status IN ?", id, []Status{StatusPending, StatusReady}).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_code":    CodeCanceled,
			"error_message": "Canceled by user",
			"finished_at":   now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return fmt.Errorf("cancel job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		job, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job not found: %d", id)
		}
		return fmt.Errorf("job %d is %s, only pending or ready jobs can be canceled", id, job.Status)
	}
	return nil
}

// CleanupStuckJobs fails RUNNING jobs whose started_at is older than
// claimTimeout.
func (s *JobStore) CleanupStuckJobs(ctx context.Context, claimTimeout time.Duration) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("status = ? AND started_at < ?", StatusRunning, now.Add(-claimTimeout)).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_code":    CodeStuck,
			"error_message": "Timed out (stuck job recovery)",
			"finished_at":   now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup stuck jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteOlderThan removes finished jobs older than the given cutoff.
func (s *JobStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND finished_at < ?", []Status{StatusSucceeded, StatusFailed}, cutoff).
		Delete(&AnalysisJob{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete old jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
