package workflow

import "fmt"

// Error codes reported by a failed run.
const (
	CodeInvalidTaskKind     = "amazon.invalid_task_kind"
	CodeInvalidRequest      = "amazon.invalid_request"
	CodeAnalyzerNotFound    = "amazon.analyzer_not_found"
	CodeRetrievalMissing    = "amazon.retrieval_unavailable"
	CodeMissingSpiderTaskID = "amazon.missing_spider_task_id"

	CodeTaskNotFound   = "spider.task_not_found"
	CodeSpiderFailed   = "spider.failed"
	CodeNotReady       = "spider.not_ready"
	CodeInvalidLocator = "spider.invalid_locator"
)

// ConfigurationError aborts a run whose task kind, request or wiring is
// unusable.
type ConfigurationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	JobID   int64  `json:"job_id"`
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s (job %d)", e.Code, e.Message, e.JobID)
}

// ErrorCode returns the code persisted on the failed job.
func (e *ConfigurationError) ErrorCode() string { return e.Code }

// LocatorError reports an upstream crawl task that cannot ground a run.
// Status is the task's status when it was found.
type LocatorError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	JobID   int64  `json:"job_id"`
	TaskID  int64  `json:"spider_task_id"`
	Status  int    `json:"status,omitempty"`
}

func (e *LocatorError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (job %d, spider task %d, status %d)", e.Code, e.Message, e.JobID, e.TaskID, e.Status)
	}
	return fmt.Sprintf("%s: %s (job %d, spider task %d)", e.Code, e.Message, e.JobID, e.TaskID)
}

// ErrorCode returns the code persisted on the failed job.
func (e *LocatorError) ErrorCode() string { return e.Code }
