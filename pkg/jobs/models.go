package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/opsinsight/reportcore/pkg/workflow"
)

// Status is the lifecycle state of an analysis job.
type Status int

const (
	StatusPending   Status = 10
	StatusReady     Status = 15
	StatusRunning   Status = 20
	StatusSucceeded Status = 30
	StatusFailed    Status = 40
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus accepts a status name or its numeric code.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusPending, StatusReady, StatusRunning, StatusSucceeded, StatusFailed} {
		if s == st.String() || s == fmt.Sprint(int(st)) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown job status %q", s)
}

// JobTypeAmazonAnalysis is the job type of marketplace analysis runs.
const JobTypeAmazonAnalysis = 1

// AnalysisJob is the GORM model for an analysis job. A job waits in PENDING
// until its spider task is ready, then a worker claims and runs it.
type AnalysisJob struct {
	ID           int64          `gorm:"primaryKey;column:job_id;autoIncrement"`
	JobType      int            `gorm:"column:job_type;not null;default:1"`
	Biz          string         `gorm:"column:biz;type:varchar(32);not null"`
	TaskKind     string         `gorm:"column:task_kind;type:varchar(16);not null;index:idx_job_kind_status,priority:1"`
	SpiderTaskID int64          `gorm:"column:spider_task_id;index:idx_job_spider_task"`
	Status       Status         `gorm:"column:status;not null;default:10;index:idx_job_kind_status,priority:2;index:idx_job_status"`
	Payload      datatypes.JSON `gorm:"column:payload"`
	Result       datatypes.JSON `gorm:"column:result"`
	ErrorCode    string         `gorm:"column:error_code;type:varchar(64)"`
	ErrorMessage string         `gorm:"column:error_message;type:text"`
	CreatedBy    int64          `gorm:"column:created_by;index:idx_job_created_by"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;not null"`
	StartedAt    *time.Time     `gorm:"column:started_at"`
	FinishedAt   *time.Time     `gorm:"column:finished_at"`
	DurationMs   int64          `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (AnalysisJob) TableName() string { return "ops_analysis_jobs" }

// IsTerminal returns true if the job succeeded or failed.
func (j *AnalysisJob) IsTerminal() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// WorkflowJob decodes the payload into the descriptor the workflow runs.
func (j *AnalysisJob) WorkflowJob() (workflow.Job, error) {
	var p workflow.Payload
	if len(j.Payload) > 0 {
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return workflow.Job{}, fmt.Errorf("decode job payload: %w", err)
		}
	}
	return workflow.Job{
		ID:           j.ID,
		Type:         j.JobType,
		Status:       int(j.Status),
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		CreatedBy:    j.CreatedBy,
		SourceTaskID: j.SpiderTaskID,
		Payload:      p,
		ErrorCode:    j.ErrorCode,
		ErrorMessage: j.ErrorMessage,
	}, nil
}
