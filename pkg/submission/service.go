// Package submission accepts analysis requests: it reuses or creates the
// spider task that collects the source rows and queues the analysis job that
// waits for it.
package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/opsinsight/reportcore/pkg/analyzer"
	"github.com/opsinsight/reportcore/pkg/jobs"
	"github.com/opsinsight/reportcore/pkg/source"
	"github.com/opsinsight/reportcore/pkg/spider"
	"github.com/opsinsight/reportcore/pkg/workflow"
)

// Biz is the business line every submission belongs to.
const Biz = "amazon"

// ResultTables are the source tables a collection run fills.
var ResultTables = []string{source.SnapshotTable, source.ReviewTable, source.KeywordMetricTable}

// Publisher hands a CREATED spider task to the crawler fleet.
type Publisher interface {
	Publish(ctx context.Context, task *spider.Task) error
}

// StorePublisher marks tasks ENQUEUED in ops_spider_tasks, where crawlers
// poll for work.
type StorePublisher struct {
	Tasks *spider.Store
}

func (p StorePublisher) Publish(ctx context.Context, task *spider.Task) error {
	moved, err := p.Tasks.MarkEnqueued(ctx, task.ID)
	if err != nil {
		return err
	}
	if moved {
		task.Status = spider.StatusEnqueued
	}
	return nil
}

// Receipt is the outcome of a submission.
type Receipt struct {
	Job        *jobs.AnalysisJob
	SpiderTask *spider.Task
	// Reused is true when an identical collection request already existed.
	Reused bool
}

// Service submits analysis requests.
type Service struct {
	tasks     *spider.Store
	jobs      *jobs.JobStore
	publisher Publisher
	logger    *slog.Logger
	newID     func() string
}

// NewService creates a Service. A nil publisher marks tasks enqueued in the
// spider task table.
func NewService(tasks *spider.Store, jobStore *jobs.JobStore, publisher Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = StorePublisher{Tasks: tasks}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:     tasks,
		jobs:      jobStore,
		publisher: publisher,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// spiderPayload holds only the fields that change what gets crawled. Analysis
// preferences such as extra_notes stay out so equal crawls share a task key.
type spiderPayload struct {
	Site       string              `json:"site"`
	TaskKind   analyzer.TaskKind   `json:"task_kind"`
	TimeWindow analyzer.TimeWindow `json:"time_window"`
	Filters    analyzer.Filters    `json:"filters"`
	Query      analyzer.Query      `json:"query"`
}

// SpiderPayload derives the crawl payload of a request.
func SpiderPayload(req *analyzer.Request) (map[string]any, error) {
	raw, err := json.Marshal(spiderPayload{
		Site:       req.Site,
		TaskKind:   req.TaskKind,
		TimeWindow: req.TimeWindow,
		Filters:    req.Filters,
		Query:      req.Query,
	})
	if err != nil {
		return nil, fmt.Errorf("encode spider payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode spider payload: %w", err)
	}
	return m, nil
}

// Submit validates raw as a request of kind and queues its analysis. It
// returns an error wrapping analyzer.ErrInvalidRequest when the request is
// rejected.
func (s *Service) Submit(ctx context.Context, kind analyzer.TaskKind, raw []byte, userID int64) (*Receipt, error) {
	req, err := analyzer.ParseRequest(kind, raw)
	if err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = s.newID()
	}

	payload, err := SpiderPayload(req)
	if err != nil {
		return nil, err
	}
	key, err := spider.TaskKey(string(kind), payload)
	if err != nil {
		return nil, err
	}

	task, err := s.tasks.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	reused := task != nil
	if task == nil {
		task, err = s.tasks.Create(ctx, &spider.Task{
			TaskType:     spider.TaskTypeAmazonCollect,
			TaskKey:      key,
			Biz:          Biz,
			Payload:      payload,
			ResultTables: ResultTables,
			CreatedBy:    userID,
		})
		if err != nil {
			return nil, err
		}
	}
	if task.Status == spider.StatusCreated {
		if err := s.publisher.Publish(ctx, task); err != nil {
			return nil, fmt.Errorf("publish spider task %d: %w", task.ID, err)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	jobPayload, err := json.Marshal(workflow.Payload{TaskKind: string(kind), Request: body})
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}

	status := jobs.StatusPending
	if task.Status == spider.StatusReady {
		status = jobs.StatusReady
	}
	job, err := s.jobs.Create(ctx, &jobs.AnalysisJob{
		JobType:      jobs.JobTypeAmazonAnalysis,
		Biz:          Biz,
		TaskKind:     string(kind),
		SpiderTaskID: task.ID,
		Status:       status,
		Payload:      jobPayload,
		CreatedBy:    userID,
	})
	if err != nil {
		return nil, err
	}

	// A failed crawl fails the new job straight away.
	if task.Status == spider.StatusFailed {
		if _, err := s.jobs.PromoteBySpiderTask(ctx, task); err != nil {
			return nil, err
		}
		if job, err = s.jobs.Get(ctx, job.ID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("analysis submitted",
		"jobID", job.ID,
		"taskKind", kind,
		"spiderTaskID", task.ID,
		"taskKey", key,
		"requestID", req.RequestID,
		"reused", reused,
	)
	return &Receipt{Job: job, SpiderTask: task, Reused: reused}, nil
}

// ReportReady records a finished crawl and promotes the jobs waiting on it.
// It returns nil, nil when the task does not exist.
func (s *Service) ReportReady(ctx context.Context, taskID int64, locator map[string]any) (*spider.Task, error) {
	loc, err := spider.ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	return s.report(ctx, taskID, func() error { return s.tasks.MarkReady(ctx, taskID, loc) })
}

// ReportFailed records a failed crawl and fails the jobs waiting on it.
// It returns nil, nil when the task does not exist.
func (s *Service) ReportFailed(ctx context.Context, taskID int64, code, message string) (*spider.Task, error) {
	return s.report(ctx, taskID, func() error { return s.tasks.MarkFailed(ctx, taskID, code, message) })
}

func (s *Service) report(ctx context.Context, taskID int64, mark func() error) (*spider.Task, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil || task == nil {
		return nil, err
	}
	if err := mark(); err != nil {
		return nil, err
	}
	if task, err = s.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	promoted, err := s.jobs.PromoteBySpiderTask(ctx, task)
	if err != nil {
		return nil, err
	}
	s.logger.Info("spider task reported",
		"spiderTaskID", task.ID,
		"status", task.Status.String(),
		"jobsPromoted", promoted,
	)
	return task, nil
}
