package result

import "time"

const (
	SchemaVersion  = "v1"
	RulesetVersion = "v1"
)

// StepTrace records one pipeline stage. Times are unix seconds.
type StepTrace struct {
	Step       string `json:"step"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
	DurationMS int64  `json:"duration_ms"`
	Note       string `json:"note,omitempty"`
}

// ModelTrace carries model and retrieval usage for a run.
type ModelTrace struct {
	ModelName     string   `json:"model_name,omitempty"`
	PromptVersion string   `json:"prompt_version,omitempty"`
	InputTokens   *int     `json:"input_tokens,omitempty"`
	OutputTokens  *int     `json:"output_tokens,omitempty"`
	CostUSD       *float64 `json:"cost_usd,omitempty"`
	RagHits       *int     `json:"rag_hits,omitempty"`
	Note          string   `json:"note,omitempty"`
}

// Trace is the lineage of a finalized result: the analysis job, the upstream
// spider task, the locator and every step in execution order.
type Trace struct {
	RequestID    string `json:"request_id,omitempty"`
	JobID        int64  `json:"job_id,omitempty"`
	JobType      int    `json:"job_type,omitempty"`
	Status       int    `json:"status,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    int64  `json:"created_at,omitempty"`
	UpdatedAt    int64  `json:"updated_at,omitempty"`
	CreatedBy    int64  `json:"created_by,omitempty"`

	SpiderTaskID       int64  `json:"spider_task_id,omitempty"`
	SpiderStatus       int    `json:"spider_status,omitempty"`
	SpiderErrorCode    string `json:"spider_error_code,omitempty"`
	SpiderErrorMessage string `json:"spider_error_message,omitempty"`

	CrawlLocator map[string]any `json:"crawl_locator,omitempty"`
	TaskKind     string         `json:"task_kind,omitempty"`
	Biz          string         `json:"biz,omitempty"`

	Steps []StepTrace `json:"steps"`
	Model ModelTrace  `json:"model"`
}

func (t Trace) clone() Trace {
	out := t
	out.Steps = append([]StepTrace{}, t.Steps...)
	out.CrawlLocator = cloneMap(t.CrawlLocator)
	return out
}

// Meta describes the schema and ruleset that produced a result.
type Meta struct {
	SchemaVersion  string `json:"schema_version"`
	RulesetVersion string `json:"ruleset_version"`
	GeneratedAt    int64  `json:"generated_at"`
	OperatorUserID int64  `json:"operator_user_id,omitempty"`
}

// StepTimer measures a single stage.
type StepTimer struct {
	step  string
	start time.Time
	now   func() time.Time
}

// StartStep starts timing step using now, or time.Now when now is nil.
func StartStep(step string, now func() time.Time) *StepTimer {
	if now == nil {
		now = time.Now
	}
	return &StepTimer{step: step, start: now(), now: now}
}

// Finish closes the stage with an optional note.
func (t *StepTimer) Finish(note string) StepTrace {
	end := t.now()
	ms := end.Sub(t.start).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return StepTrace{
		Step:       t.step,
		StartedAt:  t.start.Unix(),
		FinishedAt: end.Unix(),
		DurationMS: ms,
		Note:       note,
	}
}
