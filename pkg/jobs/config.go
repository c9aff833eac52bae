package jobs

import (
	"errors"
	"time"
)

// JobConfig controls the job queue and worker behavior.
type JobConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`    // Max concurrent workers. Default 3.
	PollInterval  time.Duration `mapstructure:"poll_interval"`  // How often workers poll for ready jobs. Default 5s.
	ClaimTimeout  time.Duration `mapstructure:"claim_timeout"`  // Max time a job can run before it is failed as stuck. Default 10m.
	RetentionDays int           `mapstructure:"retention_days"` // How long to keep finished jobs. Default 7.
	Enabled       bool          `mapstructure:"enabled"`        // Whether workers run. Default true.
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		Concurrency:   3,
		PollInterval:  5 * time.Second,
		ClaimTimeout:  10 * time.Minute,
		RetentionDays: 7,
		Enabled:       true,
	}
}

// Validate rejects settings the worker pool cannot run with.
func (c *JobConfig) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, errors.New("jobs.concurrency must be at least 1"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("jobs.poll_interval must be positive"))
	}
	if c.ClaimTimeout < 0 {
		errs = append(errs, errors.New("jobs.claim_timeout must not be negative"))
	}
	if c.RetentionDays < 0 {
		errs = append(errs, errors.New("jobs.retention_days must not be negative"))
	}
	return errors.Join(errs...)
}
