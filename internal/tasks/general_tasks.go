package tasks

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
)

// LogInfoArgs is the payload of the log_info task
type LogInfoArgs struct {
	Message string `json:"message"`
}

// LogInfoTaskDef writes a message to the worker log together with the size of the task queue.
// Scheduled as a recurring task it doubles as a worker heartbeat.
type LogInfoTaskDef struct {
	logger *zap.Logger
}

func (t *LogInfoTaskDef) TaskID() string {
	return "log_info"
}

func (t *LogInfoTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	var args LogInfoArgs
	if err := parseArgs(task, &args); err != nil {
		return nil, err
	}
	if args.Message == "" {
		args.Message = "No message provided"
	}

	var active int64
	if err := db.WithContext(ctx).Model(&models.ScheduledTask{}).
		Where("status = ?", models.ScheduledTaskStatusActive).
		Count(&active).Error; err != nil {
		return nil, err
	}

	t.logger.Info("log_info task",
		zap.String("message", args.Message),
		zap.Uint("task_id", task.ID),
		zap.Int64("active_tasks", active))

	return map[string]interface{}{
		"message":      args.Message,
		"active_tasks": active,
	}, nil
}
