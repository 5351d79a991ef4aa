package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
)

// EmailSender delivers plain text mail
type EmailSender interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

// WhatsappSender delivers WhatsApp messages
type WhatsappSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// NotificationRecipient represents one addressee of a notification
type NotificationRecipient struct {
	StudentID string `json:"student_id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// SendNotificationArgs defines the arguments for a notification task
type SendNotificationArgs struct {
	Recipients []NotificationRecipient `json:"recipients"`
	Template   string                  `json:"template"`
	Subject    string                  `json:"subject"`
	FeeType    string                  `json:"fee_type,omitempty"`
	Amount     string                  `json:"amount,omitempty"`
	DueDate    string                  `json:"due_date,omitempty"`
	OTP        string                  `json:"otp,omitempty"`
	// ForceChannel bypasses the stored preference, e.g. parents always get email
	ForceChannel models.NotificationChannel `json:"force_channel,omitempty"`
	AttemptCount int                        `json:"attempt_count"`
}

const (
	ReceiptSubject  = "Payment received"
	ReceiptTemplate = "Hi $name, we received your payment of $amount for $fee_type (due $due_date). Thank you."

	ParentOTPSubject  = "Leave request verification code"
	ParentOTPTemplate = "$name has requested leave from the hostel. Share this verification code with them to confirm: $otp. It expires in 15 minutes."
)

// SendNotificationTaskDef encapsulates the notification task logic
type SendNotificationTaskDef struct {
	email      EmailSender
	whatsapp   WhatsappSender
	logger     *zap.Logger
	retryDelay time.Duration
	now        func() time.Time
}

// TaskID returns the unique identifier for this task
func (t *SendNotificationTaskDef) TaskID() string {
	return "send_notification"
}

// CreateTask builds a ScheduledTask record for this task
func (t *SendNotificationTaskDef) CreateTask(args SendNotificationArgs) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), args, time.Now(), nil, models.ScheduledTaskTypeOneTime, 3)
}

// HandleExecution handles sending notifications based on student preference
func (t *SendNotificationTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	var parsedArgs SendNotificationArgs
	if err := parseArgs(task, &parsedArgs); err != nil {
		return nil, err
	}
	if parsedArgs.Template == "" {
		return nil, fmt.Errorf("template is missing")
	}

	total := len(parsedArgs.Recipients)
	successCount := 0
	skippedCount := 0
	failureCount := 0
	var failures []string
	var failedRecipients []NotificationRecipient

	for _, recipient := range parsedArgs.Recipients {
		pref, err := t.preferenceFor(ctx, db, recipient, parsedArgs.ForceChannel)
		if err != nil {
			t.logger.Error("Error fetching preference", zap.String("recipient", recipient.Email), zap.Error(err))
			failureCount++
			failures = append(failures, fmt.Sprintf("%s: db error", recipient.Email))
			failedRecipients = append(failedRecipients, recipient)
			continue
		}

		var sendErr error
		switch pref.Channel {
		case models.NotificationChannelEmail:
			sendErr = t.sendEmailNotif(ctx, recipient, parsedArgs)
		case models.NotificationChannelWhatsapp:
			sendErr = t.sendWhatsappNotif(ctx, recipient, parsedArgs, pref)
		case models.NotificationChannelNone:
			t.logger.Debug("Notification disabled for recipient", zap.String("recipient", recipient.Email))
			skippedCount++
			continue
		default:
			t.logger.Warn("Unsupported notification channel",
				zap.String("channel", string(pref.Channel)),
				zap.String("recipient", recipient.Email))
			skippedCount++
			continue
		}

		if sendErr != nil {
			t.logger.Warn("Failed to send notification",
				zap.String("recipient", recipient.Email),
				zap.String("channel", string(pref.Channel)),
				zap.Error(sendErr))
			failureCount++
			failures = append(failures, fmt.Sprintf("%s: %v", recipient.Email, sendErr))
			failedRecipients = append(failedRecipients, recipient)
		} else {
			successCount++
		}
	}

	result := map[string]interface{}{
		"total":   total,
		"success": successCount,
		"skipped": skippedCount,
		"failure": failureCount,
	}

	if failureCount > 0 {
		result["errors"] = failures

		attempt := parsedArgs.AttemptCount
		maxRetries := task.MaxAttempt

		if attempt < maxRetries {
			t.logger.Info("Partial failure, rescheduling failed recipients",
				zap.Int("failed", len(failedRecipients)),
				zap.Int("next_attempt", attempt+1))

			newArgs := parsedArgs
			newArgs.Recipients = failedRecipients
			newArgs.AttemptCount = attempt + 1

			nextRun := t.now().Add(t.retryDelay)
			newTask, err := BuildScheduledTask(t.TaskID(), newArgs, nextRun, nil, models.ScheduledTaskTypeOneTime, maxRetries)
			if err == nil {
				err = db.WithContext(ctx).Create(newTask).Error
			}
			if err != nil {
				t.logger.Error("Failed to create retry task", zap.Error(err))
			}
			result["retry_scheduled"] = err == nil
		} else {
			return result, fmt.Errorf("max attempts reached, failed to deliver to %d recipients", len(failedRecipients))
		}
	}

	return result, nil
}

func (t *SendNotificationTaskDef) preferenceFor(ctx context.Context, db *gorm.DB, recipient NotificationRecipient, force models.NotificationChannel) (models.StudentNotifPreference, error) {
	studentID, parseErr := uuid.Parse(recipient.StudentID)
	if force != "" || parseErr != nil {
		pref := models.DefaultNotifPreference(studentID)
		if force != "" {
			pref.Channel = force
		}
		return pref, nil
	}

	var pref models.StudentNotifPreference
	err := db.WithContext(ctx).Where("student_id = ?", studentID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultNotifPreference(studentID), nil
	}
	return pref, err
}

// sendWhatsappNotif handles sending WhatsApp notifications
func (t *SendNotificationTaskDef) sendWhatsappNotif(ctx context.Context, recipient NotificationRecipient, args SendNotificationArgs, pref models.StudentNotifPreference) error {
	if t.whatsapp == nil {
		return fmt.Errorf("whatsapp delivery not configured")
	}

	msg := replacePlaceholders(args.Template, recipient, args)

	var chatId string
	if pref.WhatsappTargetType == models.WhatsappTargetTypeGroup {
		chatId = pref.WhatsappGroupID
		if chatId == "" {
			return fmt.Errorf("group ID is empty")
		}
		if !strings.HasSuffix(chatId, "@g.us") {
			chatId = chatId + "@g.us"
		}
	} else {
		chatId = recipient.Phone
		if chatId == "" {
			return fmt.Errorf("no phone number on record")
		}
	}

	return t.whatsapp.SendMessage(ctx, chatId, msg)
}

// sendEmailNotif handles sending Email notifications
func (t *SendNotificationTaskDef) sendEmailNotif(ctx context.Context, recipient NotificationRecipient, args SendNotificationArgs) error {
	if t.email == nil {
		return fmt.Errorf("email delivery not configured")
	}
	if recipient.Email == "" {
		return fmt.Errorf("no email address on record")
	}

	subject := "Notification"
	if args.Subject != "" {
		subject = args.Subject
	}

	msg := replacePlaceholders(args.Template, recipient, args)

	return t.email.SendEmail(ctx, []string{recipient.Email}, subject, msg)
}

func replacePlaceholders(template string, recipient NotificationRecipient, args SendNotificationArgs) string {
	return strings.NewReplacer(
		"$name", recipient.Name,
		"$email", recipient.Email,
		"$subject", args.Subject,
		"$fee_type", args.FeeType,
		"$amount", args.Amount,
		"$due_date", args.DueDate,
		"$otp", args.OTP,
	).Replace(template)
}

// SendNotificationTask is the singleton instance of SendNotificationTaskDef
var SendNotificationTask = &SendNotificationTaskDef{}

// ReceiptScheduler queues a payment receipt for every newly recorded fee
type ReceiptScheduler struct {
	db *gorm.DB
}

func NewReceiptScheduler(db *gorm.DB) *ReceiptScheduler {
	return &ReceiptScheduler{db: db}
}

// PaymentRecorded schedules the receipt notification
func (r *ReceiptScheduler) PaymentRecorded(ctx context.Context, fee *models.Fee, student *models.Student) error {
	recipient := NotificationRecipient{
		StudentID: student.ID.String(),
		Name:      student.Name,
		Email:     student.Email,
	}
	if student.Phone != nil {
		recipient.Phone = *student.Phone
	}

	task, err := SendNotificationTask.CreateTask(SendNotificationArgs{
		Recipients: []NotificationRecipient{recipient},
		Template:   ReceiptTemplate,
		Subject:    ReceiptSubject,
		FeeType:    fee.FeeType,
		Amount:     fee.Amount.String(),
		DueDate:    models.FormatDate(fee.DueDate),
	})
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(task).Error
}

// ScheduleParentOTP queues the mail carrying a leave request's verification code to the parent
func ScheduleParentOTP(ctx context.Context, db *gorm.DB, leave *models.LeaveRequest, code string) error {
	task, err := SendNotificationTask.CreateTask(SendNotificationArgs{
		Recipients: []NotificationRecipient{{
			Name:  leave.StudentName,
			Email: leave.ParentEmail,
		}},
		Template:     ParentOTPTemplate,
		Subject:      ParentOTPSubject,
		OTP:          code,
		ForceChannel: models.NotificationChannelEmail,
	})
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Create(task).Error
}
