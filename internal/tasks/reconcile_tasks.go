package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/services"
)

// CheckoutReconciler replays a reconciliation without enqueueing further retries
type CheckoutReconciler interface {
	RetryReconcile(ctx context.Context, gatewaySessionID, checkoutID string) (*services.VerificationResult, error)
}

// ReconcileArgs are the arguments of a reconcile_checkout task
type ReconcileArgs struct {
	GatewaySessionID  string `json:"gatewaySessionId"`
	CheckoutSessionID string `json:"checkoutSessionId"`
	Reason            string `json:"reason,omitempty"`
}

// ReconcileCheckoutTaskDef finishes reconciliations whose store writes or admin
// notification failed during the request
type ReconcileCheckoutTaskDef struct {
	Reconciler CheckoutReconciler
	Log        *logrus.Logger
}

// TaskID returns the unique identifier for this task
func (t *ReconcileCheckoutTaskDef) TaskID() string {
	return services.TaskReconcileCheckout
}

// CreateTask builds a ScheduledTask record for this task
func (t *ReconcileCheckoutTaskDef) CreateTask(args ReconcileArgs, due time.Time, maxAttempt int) (*models.ScheduledTask, error) {
	if args.GatewaySessionID == "" {
		return nil, fmt.Errorf("gatewaySessionId is required")
	}
	return BuildScheduledTask(t.TaskID(), args, due, nil, models.ScheduledTaskTypeOneTime, maxAttempt)
}

// HandleExecution re-runs the reconciliation. It is safe to repeat: completed
// checkouts and sent notifications are skipped.
func (t *ReconcileCheckoutTaskDef) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
	args := ReconcileArgs{
		GatewaySessionID:  task.StringArg("gatewaySessionId"),
		CheckoutSessionID: task.StringArg("checkoutSessionId"),
		Reason:            task.StringArg("reason"),
	}
	if args.GatewaySessionID == "" {
		return nil, fmt.Errorf("gatewaySessionId not provided")
	}

	logger := t.Log.WithFields(logrus.Fields{
		"task":              t.TaskID(),
		"taskId":            task.ID,
		"attempt":           task.AttemptCount + 1,
		"gatewaySessionId":  args.GatewaySessionID,
		"checkoutSessionId": args.CheckoutSessionID,
		"reason":            args.Reason,
	})

	res, err := t.Reconciler.RetryReconcile(ctx, args.GatewaySessionID, args.CheckoutSessionID)
	if err != nil {
		logger.WithError(err).Warn("reconciliation retry did not finish")
		return nil, err
	}
	if !res.Paid {
		// nothing to reconcile until the gateway reports payment
		logger.WithField("status", res.Status).Info("gateway session not paid")
		return map[string]interface{}{"status": "skipped", "paymentStatus": res.Status}, nil
	}

	logger.WithField("bookingId", res.BookingID).Info("reconciliation retry finished")
	return map[string]interface{}{
		"status":            "success",
		"bookingId":         res.BookingID,
		"firebaseProcessed": res.StoreProcessed,
		"adminNotified":     res.AdminNotified,
	}, nil
}
