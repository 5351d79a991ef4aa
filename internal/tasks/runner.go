package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
)

// Runner picks up due scheduled tasks and executes them through a Registry
type Runner struct {
	db       *gorm.DB
	registry *Registry
	logger   *zap.Logger
	now      func() time.Time
}

func NewRunner(db *gorm.DB, registry *Registry, logger *zap.Logger) *Runner {
	return &Runner{db: db, registry: registry, logger: logger, now: time.Now}
}

// RunDue executes every active task whose due time has passed and returns how many ran
func (r *Runner) RunDue(ctx context.Context) int {
	r.logger.Debug("Checking for pending tasks...")

	var pendingTasks []models.ScheduledTask
	if err := r.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, r.now()).
		Order("due").
		Find(&pendingTasks).Error; err != nil {
		r.logger.Error("Error fetching pending tasks", zap.Error(err))
		return 0
	}

	if len(pendingTasks) == 0 {
		return 0
	}
	r.logger.Info("Found pending tasks", zap.Int("count", len(pendingTasks)))

	ran := 0
	for _, task := range pendingTasks {
		if ctx.Err() != nil {
			return ran
		}
		r.Execute(ctx, task)
		ran++
	}
	return ran
}

// Execute runs one task, retrying immediately up to MaxAttempt times, and
// records every attempt in the task history
func (r *Runner) Execute(ctx context.Context, task models.ScheduledTask) {
	log := r.logger.With(zap.String("task", task.TaskName), zap.Uint("task_id", task.ID))

	if task.Arguments == nil {
		task.Arguments = make(map[string]interface{})
	}

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		log.Warn("Task handler not found, marking as failure")
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
			AttemptNumber:   1,
			Arguments:       task.Arguments,
			Result:          map[string]interface{}{"error": "Handler not found"},
		})
		return
	}

	maxAttempt := task.MaxAttempt
	if maxAttempt < 1 {
		maxAttempt = 1
	}

	var (
		startTime time.Time
		lastErr   error
	)
	for attempt := 1; attempt <= maxAttempt; attempt++ {
		startTime = r.now()
		result, err := handler(ctx, r.db, task)
		runtimeMs := int(time.Since(startTime).Milliseconds())

		status := "success"
		resultData := result
		if err != nil {
			status = "failure"
			resultData = map[string]interface{}{"error": err.Error()}
			log.Warn("Task attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}

		r.db.WithContext(ctx).Create(&models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           startTime,
			Runtime:         runtimeMs,
			Status:          status,
			AttemptNumber:   attempt,
			Arguments:       task.Arguments,
			Result:          resultData,
		})

		lastErr = err
		if err == nil || ctx.Err() != nil {
			break
		}
	}

	taskUpdates := map[string]interface{}{
		"last_run":   &startTime,
		"last_error": "",
	}
	if lastErr != nil {
		taskUpdates["last_error"] = lastErr.Error()
	}

	switch {
	case task.TaskType == models.ScheduledTaskTypeRecurring:
		// A failed run of a recurring task still moves on to the next occurrence.
		nextDue := task.NextDue(r.now())
		if nextDue.After(task.Due) {
			taskUpdates["status"] = models.ScheduledTaskStatusActive
			taskUpdates["due"] = nextDue
		} else {
			taskUpdates["status"] = models.ScheduledTaskStatusDone
		}
	case lastErr != nil:
		taskUpdates["status"] = models.ScheduledTaskStatusFailure
	default:
		taskUpdates["status"] = models.ScheduledTaskStatusDone
	}

	if err := r.db.WithContext(ctx).Model(&task).Updates(taskUpdates).Error; err != nil {
		log.Error("Failed to update task", zap.Error(err))
		return
	}
	if lastErr == nil {
		log.Info("Task completed successfully")
	} else {
		log.Error("Task failed", zap.Error(lastErr))
	}
}

// Run processes due tasks immediately and then on every tick until ctx is cancelled
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.RunDue(ctx)
	for {
		select {
		case <-ticker.C:
			r.RunDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}
