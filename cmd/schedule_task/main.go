package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"hostel_app/internal/config"
	"hostel_app/internal/models"
	"hostel_app/internal/services"
	"hostel_app/internal/tasks"
)

func main() {
	taskName := pflag.String("task-name", "", "Name of the task (mandatory)")
	argsStr := pflag.String("arguments", "{}", "JSON arguments for the task")
	dueStr := pflag.String("due", "", "Due date (mandatory, format: 2006-01-02 15:04 or RFC3339)")
	taskType := pflag.String("type", string(models.ScheduledTaskTypeOneTime), "Task type: onetime or recurring")
	recurring := pflag.String("recurring", "", "RRULE for recurring tasks, e.g. FREQ=MONTHLY;BYMONTHDAY=1")
	maxAttempt := pflag.Int("max-attempt", 3, "Max attempts per run")
	pflag.Parse()

	tasks.DefineTasks(tasks.GlobalRegistry, tasks.Deps{})
	known := tasks.GlobalRegistry.Names()

	if *taskName == "" || *dueStr == "" {
		fmt.Println("Usage: schedule_task --task-name <name> --due <YYYY-MM-DD HH:MM> [--arguments <json>] [options]")
		fmt.Printf("Known tasks: %s\n", strings.Join(known, ", "))
		pflag.PrintDefaults()
		os.Exit(1)
	}
	if _, ok := tasks.GetHandler(*taskName); !ok {
		log.Fatalf("Unknown task %q. Known tasks: %s", *taskName, strings.Join(known, ", "))
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(*argsStr), &args); err != nil {
		log.Fatalf("Invalid JSON arguments: %v", err)
	}

	due, err := time.Parse(time.RFC3339, *dueStr)
	if err != nil {
		due, err = time.ParseInLocation("2006-01-02 15:04", *dueStr, time.Local)
		if err != nil {
			log.Fatalf("Invalid due date format. Use '2006-01-02 15:04' (Local) or RFC3339: %v", err)
		}
	}

	kind := models.ScheduledTaskType(*taskType)
	var recurringPtr *string
	switch kind {
	case models.ScheduledTaskTypeOneTime:
	case models.ScheduledTaskTypeRecurring:
		if *recurring == "" {
			log.Fatal("--recurring is required for recurring tasks")
		}
		recurringPtr = recurring
	default:
		log.Fatalf("Invalid task type %q", *taskType)
	}

	task, err := tasks.BuildScheduledTask(*taskName, args, due, recurringPtr, kind, *maxAttempt)
	if err != nil {
		log.Fatalf("Invalid task: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Fatal(err)
	}
	logger, err := services.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	db, err := services.InitDB(cfg.DatabaseURL, cfg.IsProduction(), logger)
	if err != nil {
		log.Fatalf("Failed to connect DB: %v", err)
	}

	if err := db.Create(task).Error; err != nil {
		log.Fatalf("Failed to create task: %v", err)
	}

	fmt.Printf("Successfully created task ID: %d\n", task.ID)
	fmt.Printf("Task: %s\nDue: %s\nType: %s\n", task.TaskName, task.Due, task.TaskType)
}
