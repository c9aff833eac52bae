// Package audit records the mutating API calls made against the report
// service: submissions, spider callbacks and cancellations.
package audit

import (
	"time"

	"gorm.io/datatypes"
)

// Outcomes of an audited request.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// Event is an immutable audit log entry.
type Event struct {
	ID           string                      `gorm:"primaryKey;column:id;type:varchar(36)"`
	Actor        string                      `gorm:"column:actor;type:varchar(128);not null;index:idx_audit_actor_time,priority:1"`
	ActorID      int64                       `gorm:"column:actor_id"`
	RequestID    string                      `gorm:"column:request_id;type:varchar(128);index"`
	Action       string                      `gorm:"column:action;type:varchar(64);not null;index:idx_audit_action_time,priority:1"`
	ResourceType string                      `gorm:"column:resource_type;type:varchar(64)"`
	ResourceIDs  datatypes.JSONSlice[string] `gorm:"column:resource_ids"`
	Outcome      string                      `gorm:"column:outcome;type:varchar(16);not null"`
	StatusCode   int                         `gorm:"column:status_code"`
	Metadata     datatypes.JSONMap           `gorm:"column:metadata"`
	CreatedAt    time.Time                   `gorm:"column:created_at;not null;index:idx_audit_actor_time,priority:2;index:idx_audit_action_time,priority:2;index:idx_audit_time"`
}

// TableName returns the GORM table name.
func (Event) TableName() string { return "ops_audit_events" }

// Config controls audit behavior.
type Config struct {
	RetentionDays int  `mapstructure:"retention_days"` // Default 90.
	LogDenied     bool `mapstructure:"log_denied"`     // Whether to record 403 responses.
	Enabled       bool `mapstructure:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		LogDenied:     true,
		Enabled:       true,
	}
}
