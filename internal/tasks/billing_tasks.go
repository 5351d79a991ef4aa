package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
	"hostel_app/internal/services"
)

// MonthlyRecurrence runs a task at the start of every month
const MonthlyRecurrence = "FREQ=MONTHLY;BYMONTHDAY=1"

// GenerateMonthlyFeesArgs defines the arguments for the monthly billing run
type GenerateMonthlyFeesArgs struct {
	Month   string `json:"month"` // YYYY-MM, defaults to the month the task runs in
	Amount  string `json:"amount"`
	FeeType string `json:"fee_type"`
}

// GenerateMonthlyFeesTaskDef creates one pending fee per housed student for a billing month
type GenerateMonthlyFeesTaskDef struct {
	logger *zap.Logger
	events services.EventPublisher
	now    func() time.Time
}

// TaskID returns the unique identifier for this task
func (t *GenerateMonthlyFeesTaskDef) TaskID() string {
	return "generate_monthly_fees"
}

// CreateTask builds a recurring ScheduledTask that bills every month from start
func (t *GenerateMonthlyFeesTaskDef) CreateTask(args GenerateMonthlyFeesArgs, start time.Time) (*models.ScheduledTask, error) {
	if _, err := decimal.NewFromString(args.Amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", args.Amount, err)
	}
	rule := MonthlyRecurrence
	return BuildScheduledTask(t.TaskID(), args, start, &rule, models.ScheduledTaskTypeRecurring, 3)
}

// HandleExecution creates the month's fees. Students that already have a fee of
// the same type due the same day are skipped, so a rerun is harmless.
func (t *GenerateMonthlyFeesTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	var args GenerateMonthlyFeesArgs
	if err := parseArgs(task, &args); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(args.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be a positive number, got %q", args.Amount)
	}
	feeType := args.FeeType
	if feeType == "" {
		feeType = "Monthly Rent"
	}
	month := args.Month
	if month == "" {
		month = t.now().Format("2006-01")
	}
	dueDate, err := models.FirstOfMonth(month)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: %w", month, err)
	}

	var students []models.Student
	if err := db.WithContext(ctx).Where("room_number IS NOT NULL").Order("name").Find(&students).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch students: %w", err)
	}

	created, skipped := 0, 0
	for _, student := range students {
		var count int64
		err := db.WithContext(ctx).Model(&models.Fee{}).
			Where("student_id = ? AND fee_type = ? AND due_date = ?", student.ID, feeType, dueDate).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check existing fee for %s: %w", student.Email, err)
		}
		if count > 0 {
			skipped++
			continue
		}

		fee := models.Fee{
			StudentID: student.ID,
			Amount:    amount.Round(2),
			FeeType:   feeType,
			DueDate:   dueDate,
			Status:    models.FeeStatusPending,
		}
		if err := db.WithContext(ctx).Create(&fee).Error; err != nil {
			t.logger.Error("Failed to create monthly fee", zap.String("student_id", student.ID.String()), zap.Error(err))
			continue
		}
		created++
	}

	t.logger.Info("Monthly fees generated",
		zap.String("month", month),
		zap.String("fee_type", feeType),
		zap.Int("created", created),
		zap.Int("skipped", skipped))

	if created > 0 && t.events != nil {
		_ = t.events.Publish(ctx, services.NewChangeEvent(services.ResourceFees, services.ActionCreated, ""))
	}

	return map[string]interface{}{
		"status":   "success",
		"month":    month,
		"created":  created,
		"skipped":  skipped,
		"students": len(students),
	}, nil
}

// GenerateMonthlyFeesTask is the singleton instance of GenerateMonthlyFeesTaskDef
var GenerateMonthlyFeesTask = &GenerateMonthlyFeesTaskDef{}

// MarkOverdueFeesTaskDef flips pending fees past their due date to overdue
type MarkOverdueFeesTaskDef struct {
	logger *zap.Logger
	events services.EventPublisher
	now    func() time.Time
}

// TaskID returns the unique identifier for this task
func (t *MarkOverdueFeesTaskDef) TaskID() string {
	return "mark_overdue_fees"
}

// CreateTask builds a daily recurring ScheduledTask
func (t *MarkOverdueFeesTaskDef) CreateTask(start time.Time) (*models.ScheduledTask, error) {
	rule := "FREQ=DAILY"
	return BuildScheduledTask(t.TaskID(), map[string]interface{}{}, start, &rule, models.ScheduledTaskTypeRecurring, 3)
}

// HandleExecution updates every pending fee due before today
func (t *MarkOverdueFeesTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	today := models.DateOf(t.now())

	res := db.WithContext(ctx).Model(&models.Fee{}).
		Where("status = ? AND due_date < ?", models.FeeStatusPending, today).
		Update("status", models.FeeStatusOverdue)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to mark overdue fees: %w", res.Error)
	}

	t.logger.Info("Overdue fees marked", zap.Int64("count", res.RowsAffected))
	if res.RowsAffected > 0 && t.events != nil {
		_ = t.events.Publish(ctx, services.NewChangeEvent(services.ResourceFees, services.ActionUpdated, ""))
	}

	return map[string]interface{}{
		"status":  "success",
		"updated": res.RowsAffected,
	}, nil
}

// MarkOverdueFeesTask is the singleton instance of MarkOverdueFeesTaskDef
var MarkOverdueFeesTask = &MarkOverdueFeesTaskDef{}
