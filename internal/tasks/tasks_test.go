package tasks

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/services"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeReconciler struct {
	calls  [][2]string
	result *services.VerificationResult
	err    error
}

func (f *fakeReconciler) RetryReconcile(ctx context.Context, gatewaySessionID, checkoutID string) (*services.VerificationResult, error) {
	f.calls = append(f.calls, [2]string{gatewaySessionID, checkoutID})
	return f.result, f.err
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	DefineTasks(r, &fakeReconciler{}, quietLogger())

	_, ok := r.Get("log_info")
	assert.True(t, ok)
	_, ok = r.Get(services.TaskReconcileCheckout)
	assert.True(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"log_info", "reconcile_checkout"}, r.Names())
}

func TestBuildScheduledTask(t *testing.T) {
	due := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	task, err := BuildScheduledTask("reconcile_checkout", ReconcileArgs{
		GatewaySessionID:  "cs_1",
		CheckoutSessionID: "chk_1",
	}, due, nil, models.ScheduledTaskTypeOneTime, 5)
	require.NoError(t, err)

	assert.Equal(t, "cs_1", task.StringArg("gatewaySessionId"))
	assert.Equal(t, "chk_1", task.StringArg("checkoutSessionId"))
	_, hasReason := task.Arguments["reason"]
	assert.False(t, hasReason)
	assert.Equal(t, models.ScheduledTaskStatusActive, task.Status)
	assert.Equal(t, due, task.Due)
	assert.Equal(t, 5, task.MaxAttempt)
}

func TestReconcileTaskCreateRequiresSession(t *testing.T) {
	def := &ReconcileCheckoutTaskDef{}
	_, err := def.CreateTask(ReconcileArgs{}, time.Now(), 3)
	assert.Error(t, err)
}

func TestReconcileTaskHandleExecution(t *testing.T) {
	task := models.ScheduledTask{
		ID:       7,
		TaskName: services.TaskReconcileCheckout,
		Arguments: map[string]interface{}{
			"gatewaySessionId":  "cs_1",
			"checkoutSessionId": "chk_1",
			"reason":            "notify",
		},
	}

	t.Run("success", func(t *testing.T) {
		rec := &fakeReconciler{result: &services.VerificationResult{
			Paid:           true,
			BookingID:      "KOB-ABC123",
			StoreProcessed: true,
			AdminNotified:  true,
		}}
		def := &ReconcileCheckoutTaskDef{Reconciler: rec, Log: quietLogger()}

		out, err := def.HandleExecution(context.Background(), task)
		require.NoError(t, err)
		assert.Equal(t, [][2]string{{"cs_1", "chk_1"}}, rec.calls)
		assert.Equal(t, "success", out["status"])
		assert.Equal(t, "KOB-ABC123", out["bookingId"])
		assert.Equal(t, true, out["adminNotified"])
	})

	t.Run("still pending", func(t *testing.T) {
		rec := &fakeReconciler{
			result: &services.VerificationResult{Paid: true, ReconciliationPending: true},
			err:    errors.New("reconciliation still pending: notify"),
		}
		def := &ReconcileCheckoutTaskDef{Reconciler: rec, Log: quietLogger()}

		_, err := def.HandleExecution(context.Background(), task)
		assert.EqualError(t, err, "reconciliation still pending: notify")
	})

	t.Run("not paid", func(t *testing.T) {
		rec := &fakeReconciler{result: &services.VerificationResult{Paid: false, Status: "unpaid"}}
		def := &ReconcileCheckoutTaskDef{Reconciler: rec, Log: quietLogger()}

		out, err := def.HandleExecution(context.Background(), task)
		require.NoError(t, err)
		assert.Equal(t, "skipped", out["status"])
	})

	t.Run("missing session", func(t *testing.T) {
		rec := &fakeReconciler{}
		def := &ReconcileCheckoutTaskDef{Reconciler: rec, Log: quietLogger()}

		_, err := def.HandleExecution(context.Background(), models.ScheduledTask{})
		assert.Error(t, err)
		assert.Empty(t, rec.calls)
	})
}

func TestLogInfoTask(t *testing.T) {
	def := &LogInfoTaskDef{Log: quietLogger()}
	out, err := def.HandleExecution(context.Background(), models.ScheduledTask{MaxAttempt: 2})
	require.NoError(t, err)
	assert.Equal(t, "No message provided", out["message"])
	assert.Equal(t, 2, out["max_attempts_info"])
}

func TestNextState(t *testing.T) {
	ranAt := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	failed := errors.New("boom")

	tests := []struct {
		name       string
		task       models.ScheduledTask
		err        error
		wantStatus models.ScheduledTaskStatus
		wantDue    time.Time
	}{
		{
			name:       "one-time success",
			task:       models.ScheduledTask{TaskType: models.ScheduledTaskTypeOneTime, MaxAttempt: 3},
			wantStatus: models.ScheduledTaskStatusDone,
		},
		{
			name:       "first failure retries after a minute",
			task:       models.ScheduledTask{TaskType: models.ScheduledTaskTypeOneTime, MaxAttempt: 3},
			err:        failed,
			wantStatus: models.ScheduledTaskStatusActive,
			wantDue:    ranAt.Add(time.Minute),
		},
		{
			name:       "second failure backs off",
			task:       models.ScheduledTask{TaskType: models.ScheduledTaskTypeOneTime, MaxAttempt: 3, AttemptCount: 1},
			err:        failed,
			wantStatus: models.ScheduledTaskStatusActive,
			wantDue:    ranAt.Add(2 * time.Minute),
		},
		{
			name:       "attempts exhausted",
			task:       models.ScheduledTask{TaskType: models.ScheduledTaskTypeOneTime, MaxAttempt: 3, AttemptCount: 2},
			err:        failed,
			wantStatus: models.ScheduledTaskStatusFailure,
		},
		{
			name:       "untyped task is treated as one-time",
			task:       models.ScheduledTask{MaxAttempt: 1},
			err:        failed,
			wantStatus: models.ScheduledTaskStatusFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextState(tt.task, tt.err, ranAt)
			assert.Equal(t, tt.wantStatus, got["status"])
			assert.Equal(t, tt.task.AttemptCount+1, got["attempt_count"])
			if tt.wantDue.IsZero() {
				assert.NotContains(t, got, "due")
			} else {
				assert.Equal(t, tt.wantDue, got["due"])
			}
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), got["last_error"])
			}
		})
	}
}

func TestNextStateRecurring(t *testing.T) {
	rule := "FREQ=DAILY;INTERVAL=1"
	due := time.Now().Add(-time.Hour).Truncate(time.Second)
	task := models.ScheduledTask{
		TaskType:          models.ScheduledTaskTypeRecurring,
		RecurringInterval: &rule,
		Due:               due,
		AttemptCount:      2,
	}

	got := nextState(task, nil, time.Now())
	assert.Equal(t, models.ScheduledTaskStatusActive, got["status"])
	assert.Equal(t, 0, got["attempt_count"])
	next, ok := got["due"].(time.Time)
	require.True(t, ok)
	assert.True(t, next.After(due))
}
