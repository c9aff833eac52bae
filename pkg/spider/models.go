package spider

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Status is the lifecycle state of a spider task.
type Status int

const (
	StatusCreated  Status = 10
	StatusEnqueued Status = 20
	StatusReady    Status = 30
	StatusFailed   Status = 40
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusEnqueued:
		return "enqueued"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// TaskTypeAmazonCollect is the task type for marketplace collection runs.
const TaskTypeAmazonCollect = "amazon.collect"

// Task is the GORM model for a crawl request. When the crawler finishes it
// writes the batch locator that analysis jobs read from.
type Task struct {
	ID            int64                       `gorm:"primaryKey;column:task_id;autoIncrement"`
	TaskType      string                      `gorm:"column:task_type;type:varchar(64);not null"`
	TaskKey       string                      `gorm:"column:task_key;type:varchar(128);not null;uniqueIndex:uq_spider_task_key"`
	Biz           string                      `gorm:"column:biz;type:varchar(32);not null"`
	Status        Status                      `gorm:"column:status;not null;default:10;index:idx_spider_status"`
	Payload       datatypes.JSONMap           `gorm:"column:payload"`
	ResultTables  datatypes.JSONSlice[string] `gorm:"column:result_tables"`
	ResultLocator datatypes.JSONMap           `gorm:"column:result_locator"`
	ErrorCode     string                      `gorm:"column:error_code;type:varchar(64)"`
	ErrorMessage  string                      `gorm:"column:error_message;type:text"`
	CreatedBy     int64                       `gorm:"column:created_by;index:idx_spider_created_by"`
	CreatedAt     time.Time                   `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time                   `gorm:"column:updated_at;not null"`
}

// TableName returns the GORM table name.
func (Task) TableName() string { return "ops_spider_tasks" }

// IsTerminal returns true if the task is ready or failed.
func (t *Task) IsTerminal() bool {
	return t.Status == StatusReady || t.Status == StatusFailed
}
