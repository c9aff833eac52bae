package spider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrInvalidTransition is returned when a task is already past the state a
// report would move it to.
var ErrInvalidTransition = errors.New("invalid spider task transition")

// Store provides database operations for spider tasks.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the ops_spider_tasks table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Task{})
}

// Get retrieves a task by ID. It returns nil, nil when no task exists.
func (s *Store) Get(ctx context.Context, id int64) (*Task, error) {
	var task Task
	if err := s.db.WithContext(ctx).First(&task, "task_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get spider task: %w", err)
	}
	return &task, nil
}

// GetByKey retrieves a task by its idempotency key.
func (s *Store) GetByKey(ctx context.Context, key string) (*Task, error) {
	var task Task
	if err := s.db.WithContext(ctx).First(&task, "task_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get spider task by key: %w", err)
	}
	return &task, nil
}

// Create inserts a new task in CREATED state. If a task with the same key
// already exists, that task is returned instead.
func (s *Store) Create(ctx context.Context, task *Task) (*Task, error) {
	if task.Status == 0 {
		task.Status = StatusCreated
	}
	if existing, err := s.GetByKey(ctx, task.TaskKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		// Another submitter may have inserted the same key in between.
		if existing, lookupErr := s.GetByKey(ctx, task.TaskKey); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create spider task: %w", err)
	}
	return task, nil
}

// MarkEnqueued moves a CREATED task to ENQUEUED. It reports whether the task
// was transitioned.
func (s *Store) MarkEnqueued(ctx context.Context, id int64) (bool, error) {
	result := s.db.WithContext(ctx).Model(&Task{}).
		Where("task_id = ? AND status = ?", id, StatusCreated).
		Updates(map[string]any{"status": StatusEnqueued, "updated_at": time.Now()})
	if result.Error != nil {
		return false, fmt.Errorf("mark spider task enqueued: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkReady records the result locator of a finished crawl.
func (s *Store) MarkReady(ctx context.Context, id int64, loc Locator) error {
	result := s.db.WithContext(ctx).Model(&Task{}).
		Where("task_id = ? AND status IN ?", id, []Status{StatusCreated, StatusEnqueued}).
		Updates(map[string]any{
			"status":         StatusReady,
			"result_locator": datatypes.JSONMap(loc.Map()),
			"error_code":     "",
			"error_message":  "",
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("mark spider task ready: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.transitionError(ctx, id, StatusReady)
	}
	return nil
}

// MarkFailed records a crawl failure.
func (s *Store) MarkFailed(ctx context.Context, id int64, code, message string) error {
	if code == "" {
		code = "spider.failed"
	}
	result := s.db.WithContext(ctx).Model(&Task{}).
		Where("task_id = ? AND status IN ?", id, []Status{StatusCreated, StatusEnqueued}).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_code":    code,
			"error_message": message,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("mark spider task failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.transitionError(ctx, id, StatusFailed)
	}
	return nil
}

func (s *Store) transitionError(ctx context.Context, id int64, to Status) error {
	task, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("spider task not found: %d", id)
	}
	return fmt.Errorf("%w: spider task %d is %s, cannot move to %s", ErrInvalidTransition, id, task.Status, to)
}
