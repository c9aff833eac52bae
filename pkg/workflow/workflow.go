// Package workflow turns one analysis job into a finalized result:
// locator, data load, optional retrieval, analysis, evaluation and
// finalize, in that order. A failed run returns no result.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opsinsight/reportcore/pkg/analyzer"
	"github.com/opsinsight/reportcore/pkg/evaluate"
	"github.com/opsinsight/reportcore/pkg/result"
	"github.com/opsinsight/reportcore/pkg/retrieval"
	"github.com/opsinsight/reportcore/pkg/source"
	"github.com/opsinsight/reportcore/pkg/spider"
)

const (
	// DefaultRAGQuery is searched when a request enables retrieval without
	// extra notes.
	DefaultRAGQuery = "amazon operation constraints"
	ragTopK         = 8
)

// TaskLookup resolves the upstream crawl task of a job. It returns nil, nil
// when the task does not exist.
type TaskLookup interface {
	Get(ctx context.Context, id int64) (*spider.Task, error)
}

// RowSource is the read-only row query layer.
type RowSource interface {
	ListSnapshots(ctx context.Context, q source.Query) ([]source.Snapshot, error)
	ListReviews(ctx context.Context, q source.Query) ([]source.Review, error)
	ListKeywordMetrics(ctx context.Context, q source.Query) ([]source.KeywordMetric, error)
}

// Retriever searches a knowledge base.
type Retriever interface {
	Search(ctx context.Context, req retrieval.SearchRequest) ([]retrieval.Hit, error)
}

// Payload is the job payload: the task kind and the raw request.
type Payload struct {
	TaskKind string          `json:"task_kind"`
	Request  json.RawMessage `json:"request"`
}

// Job describes the analysis job a run works on.
type Job struct {
	ID           int64
	Type         int
	Status       int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CreatedBy    int64
	SourceTaskID int64
	Payload      Payload
	ErrorCode    string
	ErrorMessage string
}

// Workflow runs analysis jobs. It holds no per-run state and may serve
// concurrent runs.
type Workflow struct {
	tasks     TaskLookup
	rows      RowSource
	retriever Retriever
	registry  *analyzer.Registry
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Workflow. retriever may be nil, in which case requests that
// enable retrieval fail with a ConfigurationError.
func New(tasks TaskLookup, rows RowSource, retriever Retriever, registry *analyzer.Registry, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = analyzer.DefaultRegistry()
	}
	return &Workflow{
		tasks:     tasks,
		rows:      rows,
		retriever: retriever,
		registry:  registry,
		logger:    logger,
		now:       time.Now,
	}
}

// run is the state of one execution.
type run struct {
	ctx   context.Context
	job   Job
	kind  analyzer.TaskKind
	req   *analyzer.Request
	task  *spider.Task
	loc   spider.Locator
	rows  analyzer.Rows
	hits  []retrieval.Hit
	steps []result.StepTrace
	now   func() time.Time
}

// stage times fn as a named step. The context is checked first so a
// cancelled run stops between stages.
func (r *run) stage(name string, fn func() (string, error)) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	t := result.StartStep(name, r.now)
	note, err := fn()
	if err != nil {
		return err
	}
	r.steps = append(r.steps, t.Finish(note))
	return nil
}

// Run executes job and returns the finalized result.
func (w *Workflow) Run(ctx context.Context, job Job) (*result.Result, error) {
	kind, err := analyzer.ParseTaskKind(job.Payload.TaskKind)
	if err != nil {
		return nil, &ConfigurationError{Code: CodeInvalidTaskKind, Message: err.Error(), JobID: job.ID}
	}
	req, err := analyzer.ParseRequest(kind, job.Payload.Request)
	if err != nil {
		return nil, &ConfigurationError{Code: CodeInvalidRequest, Message: err.Error(), JobID: job.ID}
	}
	if job.SourceTaskID == 0 {
		return nil, &LocatorError{Code: CodeMissingSpiderTaskID, Message: "job has no spider task", JobID: job.ID}
	}

	r := &run{ctx: ctx, job: job, kind: kind, req: req, now: w.now}
	logger := w.logger.With("jobID", job.ID, "taskKind", string(kind))

	if err := r.stage("locator", func() (string, error) { return w.resolveLocator(r) }); err != nil {
		return nil, err
	}
	if err := r.stage("load_data", func() (string, error) { return w.loadData(r) }); err != nil {
		return nil, err
	}
	if req.UseRAG {
		if err := r.stage("rag", func() (string, error) { return w.retrieve(r) }); err != nil {
			return nil, err
		}
	}

	var draft *result.Draft
	err = r.stage("analyze", func() (string, error) {
		a, ok := w.registry.Lookup(kind)
		if !ok {
			return "", &ConfigurationError{Code: CodeAnalyzerNotFound, Message: fmt.Sprintf("no analyzer for %s", kind), JobID: job.ID}
		}
		d, err := a.Analyze(analyzer.Input{Request: req, Locator: r.loc, Rows: r.rows, Hits: r.hits})
		if err != nil {
			return "", err
		}
		draft = d
		return "task_kind=" + string(kind), nil
	})
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	warnings := evaluate.Evaluate(draft)
	draft.AddWarnings(warnings...)

	res, err := draft.Finalize(w.trace(r), result.Meta{OperatorUserID: job.CreatedBy}, w.now())
	if err != nil {
		return nil, err
	}
	logger.Info("analysis finished",
		"spiderTaskID", job.SourceTaskID,
		"steps", len(r.steps),
		"evidences", len(draft.Evidences()),
		"warnings", len(draft.Warnings()))
	return res, nil
}

func (w *Workflow) resolveLocator(r *run) (string, error) {
	job := r.job
	task, err := w.tasks.Get(r.ctx, job.SourceTaskID)
	if err != nil {
		return "", fmt.Errorf("get spider task: %w", err)
	}
	if task == nil {
		return "", &LocatorError{Code: CodeTaskNotFound, Message: "spider task not found", JobID: job.ID, TaskID: job.SourceTaskID}
	}
	switch task.Status {
	case spider.StatusReady:
	case spider.StatusFailed:
		code := task.ErrorCode
		if code == "" {
			code = CodeSpiderFailed
		}
		msg := task.ErrorMessage
		if msg == "" {
			msg = "spider task failed"
		}
		return "", &LocatorError{Code: code, Message: msg, JobID: job.ID, TaskID: task.ID, Status: int(task.Status)}
	default:
		return "", &LocatorError{
			Code:    CodeNotReady,
			Message: fmt.Sprintf("spider task is not ready (status %d)", int(task.Status)),
			JobID:   job.ID,
			TaskID:  task.ID,
			Status:  int(task.Status),
		}
	}

	loc, err := spider.ParseLocator(task.ResultLocator)
	if err != nil {
		return "", &LocatorError{Code: CodeInvalidLocator, Message: err.Error(), JobID: job.ID, TaskID: task.ID, Status: int(task.Status)}
	}
	r.task = task
	r.loc = loc

	rid := r.req.RequestID
	if rid == "" {
		rid = "-"
	}
	return fmt.Sprintf("spider_task_id=%d rid=%s", task.ID, rid), nil
}

func (w *Workflow) retrieve(r *run) (string, error) {
	if w.retriever == nil {
		return "", &ConfigurationError{Code: CodeRetrievalMissing, Message: "use_rag requested but no retriever is configured", JobID: r.job.ID}
	}
	query := strings.TrimSpace(r.req.ExtraNotes)
	if query == "" {
		query = DefaultRAGQuery
	}
	hits, err := w.retriever.Search(r.ctx, retrieval.SearchRequest{
		KBSpace: r.req.KBSpace,
		Query:   query,
		TopK:    ragTopK,
	})
	if err != nil {
		return "", fmt.Errorf("search knowledge base: %w", err)
	}
	r.hits = hits
	return fmt.Sprintf("hits=%d", len(hits)), nil
}

func (w *Workflow) trace(r *run) result.Trace {
	job := r.job
	t := result.Trace{
		RequestID:    r.req.RequestID,
		JobID:        job.ID,
		JobType:      job.Type,
		Status:       job.Status,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    unix(job.CreatedAt),
		UpdatedAt:    unix(job.UpdatedAt),
		CreatedBy:    job.CreatedBy,
		SpiderTaskID: job.SourceTaskID,
		CrawlLocator: r.loc.Map(),
		TaskKind:     string(r.kind),
		Biz:          analyzer.Biz,
		Steps:        r.steps,
	}
	if r.task != nil {
		t.SpiderStatus = int(r.task.Status)
		t.SpiderErrorCode = r.task.ErrorCode
		t.SpiderErrorMessage = r.task.ErrorMessage
	}
	if r.req.UseRAG {
		n := len(r.hits)
		t.Model.RagHits = &n
	}
	return t
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
