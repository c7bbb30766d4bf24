package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"upgrade_checkout_echo/internal/models"
)

// BuildScheduledTask is a helper to build ScheduledTask records generically
func BuildScheduledTask(taskName string, args interface{}, due time.Time, recurringInterval *string, taskType models.ScheduledTaskType, maxAttempt int) (*models.ScheduledTask, error) {
	argsBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	var mapArgs map[string]interface{}
	if err := json.Unmarshal(argsBytes, &mapArgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into map: %w", err)
	}

	return &models.ScheduledTask{
		TaskName:          taskName,
		Arguments:         mapArgs,
		Due:               due,
		RecurringInterval: recurringInterval,
		Status:            models.ScheduledTaskStatusActive,
		TaskType:          taskType,
		MaxAttempt:        maxAttempt,
	}, nil
}

// GormQueue persists one-time tasks for the worker to pick up
type GormQueue struct {
	db          *gorm.DB
	maxAttempts int
	now         func() time.Time
}

func NewGormQueue(db *gorm.DB, maxAttempts int) *GormQueue {
	return &GormQueue{db: db, maxAttempts: maxAttempts, now: time.Now}
}

// Enqueue schedules a task due immediately
func (q *GormQueue) Enqueue(ctx context.Context, name string, args map[string]interface{}) error {
	task, err := BuildScheduledTask(name, args, q.now(), nil, models.ScheduledTaskTypeOneTime, q.maxAttempts)
	if err != nil {
		return err
	}
	if err := q.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", name, err)
	}
	return nil
}
