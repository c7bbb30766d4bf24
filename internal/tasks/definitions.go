package tasks

import "github.com/sirupsen/logrus"

// DefineTasks registers all available tasks
func DefineTasks(r *Registry, reconciler CheckoutReconciler, log *logrus.Logger) {
	logInfo := &LogInfoTaskDef{Log: log}
	r.Register(logInfo.TaskID(), logInfo.HandleExecution)

	reconcile := &ReconcileCheckoutTaskDef{Reconciler: reconciler, Log: log}
	r.Register(reconcile.TaskID(), reconcile.HandleExecution)
}
