package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"upgrade_checkout_echo/internal/app"
	"upgrade_checkout_echo/internal/config"
	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/services"
	"upgrade_checkout_echo/internal/tasks"
)

func main() {
	// defined flags
	taskName := flag.String("task_name", "", "Name of the task (mandatory unless -session is given)")
	argsStr := flag.String("arguments", "{}", "JSON arguments for the task")
	dueStr := flag.String("due", "", "Due date (format: 2006-01-02 15:04 or RFC3339, default: now)")
	taskType := flag.String("tasktype", string(models.ScheduledTaskTypeOneTime), "Task type (onetime or recurring)")
	recurring := flag.String("recurring", "", "Recurring interval rule, e.g. FREQ=DAILY (optional)")
	maxAttempt := flag.Int("max_attempt", 3, "Max attempts")
	session := flag.String("session", "", "Gateway session id to reconcile (shortcut for reconcile_checkout)")
	checkout := flag.String("checkout", "", "Checkout session id, used with -session")

	flag.Parse()

	if *taskName == "" && *session == "" {
		fmt.Println("Usage: schedule_task -task_name <name> [-arguments <json_args>] [-due <YYYY-MM-DD HH:MM>] [options]")
		fmt.Println("       schedule_task -session <gateway_session_id> [-checkout <checkout_session_id>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Load env
	envErr := godotenv.Load()

	cfg := config.FromEnv()
	log := app.NewLogger(cfg.LogLevel)
	if envErr != nil {
		log.Info("No .env file found, using system environment")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	// Init DB
	db, err := services.InitDB(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect DB")
	}
	if err := services.AutoMigrate(db, log); err != nil {
		log.WithError(err).Fatal("Failed to run database migrations")
	}

	due := time.Now()
	if *dueStr != "" {
		due, err = parseDue(*dueStr)
		if err != nil {
			log.WithError(err).Fatal("Invalid due date format. Use '2006-01-02 15:04' (Local) or RFC3339")
		}
	}

	var task *models.ScheduledTask
	if *session != "" {
		def := &tasks.ReconcileCheckoutTaskDef{Log: log}
		task, err = def.CreateTask(tasks.ReconcileArgs{
			GatewaySessionID:  *session,
			CheckoutSessionID: *checkout,
			Reason:            "manual",
		}, due, *maxAttempt)
	} else {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(*argsStr), &args); err != nil {
			log.WithError(err).Fatal("Invalid JSON arguments")
		}

		var recurringPtr *string
		if *recurring != "" {
			recurringPtr = recurring
		}
		task, err = tasks.BuildScheduledTask(*taskName, args, due, recurringPtr, models.ScheduledTaskType(*taskType), *maxAttempt)
	}
	if err != nil {
		log.WithError(err).Fatal("Failed to build task")
	}

	if err := db.Create(task).Error; err != nil {
		log.WithError(err).Fatal("Failed to create task")
	}

	fmt.Printf("Successfully created task ID: %d\n", task.ID)
	fmt.Printf("Task: %s\nDue: %s\nType: %s\n", task.TaskName, task.Due, task.TaskType)
}

// parseDue accepts RFC3339, or a local "2006-01-02 15:04"
func parseDue(s string) (time.Time, error) {
	if due, err := time.Parse(time.RFC3339, s); err == nil {
		return due, nil
	}
	return time.ParseInLocation("2006-01-02 15:04", s, time.Local)
}
