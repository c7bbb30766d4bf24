package tasks

import (
	"context"

	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/models"
)

// LogInfoTaskDef writes its message to the worker log. Operators use it to check
// that the worker is picking tasks up.
type LogInfoTaskDef struct {
	Log *logrus.Logger
}

// TaskID returns the unique identifier for this task
func (t *LogInfoTaskDef) TaskID() string {
	return "log_info"
}

// HandleExecution handles logging information
func (t *LogInfoTaskDef) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
	message := task.StringArg("message")
	if message == "" {
		message = "No message provided"
	}
	t.Log.WithFields(logrus.Fields{"task": t.TaskID(), "taskId": task.ID}).Info(message)

	return map[string]interface{}{
		"status":            "success",
		"message":           message,
		"max_attempts_info": task.MaxAttempt,
	}, nil
}
