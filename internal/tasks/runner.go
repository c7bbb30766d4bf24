package tasks

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"upgrade_checkout_echo/internal/models"
)

// Runner executes due scheduled tasks and records their history
type Runner struct {
	db       *gorm.DB
	registry *Registry
	log      *logrus.Logger
	now      func() time.Time
}

func NewRunner(db *gorm.DB, registry *Registry, log *logrus.Logger) *Runner {
	return &Runner{db: db, registry: registry, log: log, now: time.Now}
}

// ProcessDue runs every active task whose due time has passed
func (r *Runner) ProcessDue(ctx context.Context) {
	r.log.Debug("Checking for pending tasks...")

	var pendingTasks []models.ScheduledTask
	now := r.now()
	err := r.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).
		Order("due asc").
		Find(&pendingTasks).Error
	if err != nil {
		r.log.WithError(err).Error("Error fetching pending tasks")
		return
	}

	if len(pendingTasks) == 0 {
		r.log.Debug("No pending tasks found.")
		return
	}

	r.log.Infof("Found %d pending tasks.", len(pendingTasks))

	for _, task := range pendingTasks {
		if ctx.Err() != nil {
			return
		}
		r.Execute(ctx, task)
	}
}

// Execute runs one task, writes a history row and moves the task to its next state
func (r *Runner) Execute(ctx context.Context, task models.ScheduledTask) {
	logger := r.log.WithFields(logrus.Fields{"task": task.TaskName, "taskId": task.ID})
	logger.Info("Processing task")

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		logger.Error("Task handler not found. Marking as failure.")

		now := r.now()
		r.db.WithContext(ctx).Model(&task).Updates(map[string]interface{}{
			"status":     models.ScheduledTaskStatusFailure,
			"last_run":   &now,
			"last_error": "handler not found",
		})
		r.db.WithContext(ctx).Create(&models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           now,
			Status:          "handler_not_found",
			AttemptNumber:   task.AttemptCount + 1,
			Arguments:       task.Arguments,
			Result:          map[string]interface{}{"error": "Handler not found"},
		})
		return
	}

	startTime := r.now()
	result, err := handler(ctx, task)
	runtimeMs := int(r.now().Sub(startTime).Milliseconds())

	status := "success"
	resultData := result
	if err != nil {
		status = "failure"
		resultData = map[string]interface{}{"error": err.Error()}
		logger.WithError(err).Warn("Task failed")
	} else {
		logger.Info("Task completed successfully.")
	}

	r.db.WithContext(ctx).Create(&models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           startTime,
		Runtime:         runtimeMs,
		Status:          status,
		AttemptNumber:   task.AttemptCount + 1,
		Arguments:       task.Arguments,
		Result:          resultData,
	})

	updates := nextState(task, err, startTime)
	if err := r.db.WithContext(ctx).Model(&task).Updates(updates).Error; err != nil {
		logger.WithError(err).Error("Failed to update task")
	}
}

// nextState decides the column updates after a run. Failed one-time tasks are
// rescheduled with backoff until MaxAttempt runs out.
func nextState(task models.ScheduledTask, runErr error, ranAt time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"last_run":      &ranAt,
		"attempt_count": task.AttemptCount + 1,
	}

	if runErr != nil {
		updates["last_error"] = runErr.Error()
		task.AttemptCount++
		if task.TaskType == models.ScheduledTaskTypeRecurring {
			return recurringUpdates(task, updates)
		}
		if task.CanRetry() {
			updates["status"] = models.ScheduledTaskStatusActive
			updates["due"] = task.RetryDue(ranAt)
			return updates
		}
		updates["status"] = models.ScheduledTaskStatusFailure
		return updates
	}

	updates["last_error"] = ""
	switch task.TaskType {
	case models.ScheduledTaskTypeRecurring:
		// a recurring run does not count towards the retry budget
		updates["attempt_count"] = 0
		return recurringUpdates(task, updates)
	default:
		updates["status"] = models.ScheduledTaskStatusDone
	}
	return updates
}

func recurringUpdates(task models.ScheduledTask, updates map[string]interface{}) map[string]interface{} {
	nextDue := task.NextDue()
	// only a future due date keeps the task from running again immediately
	if nextDue.After(task.Due) {
		updates["status"] = models.ScheduledTaskStatusActive
		updates["due"] = nextDue
	} else {
		updates["status"] = models.ScheduledTaskStatusDone
	}
	return updates
}
