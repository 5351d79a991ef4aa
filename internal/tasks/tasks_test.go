package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
	"hostel_app/internal/services"
	"hostel_app/internal/testutil"
)

type sentMessage struct {
	to   string
	body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]error
}

func (f *fakeSender) SendEmail(_ context.Context, to []string, _ string, body string) error {
	return f.record(to[0], body)
}

func (f *fakeSender) SendMessage(_ context.Context, chatID, text string) error {
	return f.record(chatID, text)
}

func (f *fakeSender) record(to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return nil
}

func TestBuildScheduledTask(t *testing.T) {
	c := qt.New(t)
	due := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	task, err := GenerateMonthlyFeesTask.CreateTask(GenerateMonthlyFeesArgs{Amount: "4500", FeeType: "Monthly Rent"}, due)
	c.Assert(err, qt.IsNil)
	c.Assert(task.TaskName, qt.Equals, "generate_monthly_fees")
	c.Assert(task.TaskType, qt.Equals, models.ScheduledTaskTypeRecurring)
	c.Assert(*task.RecurringInterval, qt.Equals, MonthlyRecurrence)
	c.Assert(task.Arguments["amount"], qt.Equals, "4500")
	c.Assert(task.Status, qt.Equals, models.ScheduledTaskStatusActive)

	_, err = GenerateMonthlyFeesTask.CreateTask(GenerateMonthlyFeesArgs{Amount: "lots"}, due)
	c.Assert(err, qt.ErrorMatches, `invalid amount "lots".*`)

	bad := "FREQ=SOMETIMES"
	_, err = BuildScheduledTask("log_info", nil, due, &bad, models.ScheduledTaskTypeRecurring, 1)
	c.Assert(err, qt.ErrorMatches, `invalid recurring interval.*`)
}

func TestReplacePlaceholders(t *testing.T) {
	c := qt.New(t)

	msg := replacePlaceholders(ReceiptTemplate, NotificationRecipient{Name: "Asha"}, SendNotificationArgs{
		FeeType: "Monthly Rent",
		Amount:  "4500",
		DueDate: "2024-03-01",
	})
	c.Assert(msg, qt.Equals, "Hi Asha, we received your payment of 4500 for Monthly Rent (due 2024-03-01). Thank you.")

	msg = replacePlaceholders(ParentOTPTemplate, NotificationRecipient{Name: "Asha"}, SendNotificationArgs{OTP: "123456"})
	c.Assert(msg, qt.Contains, "123456")
}

func TestRegistryDefinesTasks(t *testing.T) {
	c := qt.New(t)
	reg := NewRegistry()
	DefineTasks(reg, Deps{})

	c.Assert(reg.Names(), qt.DeepEquals, []string{
		"generate_monthly_fees",
		"log_info",
		"mark_overdue_fees",
		"send_notification",
	})
}

type taskFixture struct {
	db     *gorm.DB
	reg    *Registry
	runner *Runner
	email  *fakeSender
	wa     *fakeSender
	now    time.Time
}

func newTaskFixture(t *testing.T) *taskFixture {
	c := qt.New(t)
	dsn := testutil.Postgres(t)
	db, err := services.InitDB(dsn, true, zap.NewNop())
	c.Assert(err, qt.IsNil)
	c.Assert(services.AutoMigrate(db, zap.NewNop()), qt.IsNil)

	f := &taskFixture{
		db:    db,
		reg:   NewRegistry(),
		email: &fakeSender{fail: map[string]error{}},
		wa:    &fakeSender{fail: map[string]error{}},
		now:   time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.now }
	DefineTasks(f.reg, Deps{Logger: zap.NewNop(), Email: f.email, Whatsapp: f.wa, Now: now})
	f.runner = NewRunner(db, f.reg, zap.NewNop())
	f.runner.now = now
	return f
}

func (f *taskFixture) student(c *qt.C, name, email string, room *int) models.Student {
	s := models.Student{Name: name, Email: email, RoomNumber: room, Course: "B.Sc", Year: 1}
	c.Assert(f.db.Create(&s).Error, qt.IsNil)
	return s
}

func TestGenerateMonthlyFees(t *testing.T) {
	c := qt.New(t)
	f := newTaskFixture(t)

	room := 101
	housed := f.student(c, "Housed", "housed@example.com", &room)
	f.student(c, "Day Scholar", "day@example.com", nil)

	task, err := GenerateMonthlyFeesTask.CreateTask(GenerateMonthlyFeesArgs{Amount: "4500"}, f.now.Add(-time.Hour))
	c.Assert(err, qt.IsNil)
	c.Assert(f.db.Create(task).Error, qt.IsNil)

	c.Assert(f.runner.RunDue(context.Background()), qt.Equals, 1)

	var fees []models.Fee
	c.Assert(f.db.Find(&fees).Error, qt.IsNil)
	c.Assert(fees, qt.HasLen, 1)
	c.Assert(fees[0].StudentID, qt.Equals, housed.ID)
	c.Assert(fees[0].Status, qt.Equals, models.FeeStatusPending)
	c.Assert(fees[0].FeeType, qt.Equals, "Monthly Rent")
	c.Assert(models.FormatDate(fees[0].DueDate), qt.Equals, "2024-03-01")
	c.Assert(fees[0].Amount.Equal(decimal.NewFromInt(4500)), qt.IsTrue)

	var reloaded models.ScheduledTask
	c.Assert(f.db.First(&reloaded, task.ID).Error, qt.IsNil)
	c.Assert(reloaded.Status, qt.Equals, models.ScheduledTaskStatusActive)
	c.Assert(reloaded.Due.Equal(time.Date(2024, 4, 1, 7, 0, 0, 0, time.UTC)), qt.IsTrue, qt.Commentf("due %v", reloaded.Due))

	// Running the same month again creates nothing new.
	handler, _ := f.reg.Get("generate_monthly_fees")
	res, err := handler(context.Background(), f.db, *task)
	c.Assert(err, qt.IsNil)
	c.Assert(res["created"], qt.Equals, 0)
	c.Assert(res["skipped"], qt.Equals, 1)
}

func TestMarkOverdueFees(t *testing.T) {
	c := qt.New(t)
	f := newTaskFixture(t)
	s := f.student(c, "Late", "late@example.com", nil)

	march, _ := models.FirstOfMonth("2024-03")
	april, _ := models.FirstOfMonth("2024-04")
	for _, fee := range []models.Fee{
		{StudentID: s.ID, Amount: decimal.NewFromInt(100), FeeType: "Monthly Rent", DueDate: march, Status: models.FeeStatusPending},
		{StudentID: s.ID, Amount: decimal.NewFromInt(100), FeeType: "Monthly Rent", DueDate: april, Status: models.FeeStatusPending},
		{StudentID: s.ID, Amount: decimal.NewFromInt(100), FeeType: "Mess Fee", DueDate: march, Status: models.FeeStatusPaid},
	} {
		fee := fee
		c.Assert(f.db.Create(&fee).Error, qt.IsNil)
	}

	handler, _ := f.reg.Get("mark_overdue_fees")
	res, err := handler(context.Background(), f.db, models.ScheduledTask{})
	c.Assert(err, qt.IsNil)
	c.Assert(res["updated"], qt.Equals, int64(1))

	var overdue int64
	c.Assert(f.db.Model(&models.Fee{}).Where("status = ?", models.FeeStatusOverdue).Count(&overdue).Error, qt.IsNil)
	c.Assert(overdue, qt.Equals, int64(1))
}

func TestSendNotificationByPreference(t *testing.T) {
	c := qt.New(t)
	f := newTaskFixture(t)

	phone := "09876543210"
	byEmail := f.student(c, "Mail", "mail@example.com", nil)
	byWhatsapp := models.Student{Name: "Chat", Email: "chat@example.com", Phone: &phone, Course: "B.Sc", Year: 1}
	c.Assert(f.db.Create(&byWhatsapp).Error, qt.IsNil)
	silent := f.student(c, "Quiet", "quiet@example.com", nil)

	c.Assert(f.db.Create(&models.StudentNotifPreference{StudentID: byWhatsapp.ID, Channel: models.NotificationChannelWhatsapp, WhatsappTargetType: models.WhatsappTargetTypePersonal}).Error, qt.IsNil)
	c.Assert(f.db.Create(&models.StudentNotifPreference{StudentID: silent.ID, Channel: models.NotificationChannelNone}).Error, qt.IsNil)

	task, err := SendNotificationTask.CreateTask(SendNotificationArgs{
		Recipients: []NotificationRecipient{
			{StudentID: byEmail.ID.String(), Name: byEmail.Name, Email: byEmail.Email},
			{StudentID: byWhatsapp.ID.String(), Name: byWhatsapp.Name, Email: byWhatsapp.Email, Phone: phone},
			{StudentID: silent.ID.String(), Name: silent.Name, Email: silent.Email},
		},
		Template: "Hello $name",
		Subject:  "Hi",
	})
	c.Assert(err, qt.IsNil)

	handler, _ := f.reg.Get("send_notification")
	res, err := handler(context.Background(), f.db, *task)
	c.Assert(err, qt.IsNil)
	c.Assert(res["success"], qt.Equals, 2)
	c.Assert(res["skipped"], qt.Equals, 1)
	c.Assert(f.email.sent, qt.DeepEquals, []sentMessage{{to: "mail@example.com", body: "Hello Mail"}})
	c.Assert(f.wa.sent, qt.DeepEquals, []sentMessage{{to: phone, body: "Hello Chat"}})
}

func TestSendNotificationReschedulesFailures(t *testing.T) {
	c := qt.New(t)
	f := newTaskFixture(t)
	f.email.fail["bounce@example.com"] = errors.New("mailbox unavailable")

	task, err := SendNotificationTask.CreateTask(SendNotificationArgs{
		Recipients: []NotificationRecipient{
			{Name: "Ok", Email: "ok@example.com"},
			{Name: "Bounce", Email: "bounce@example.com"},
		},
		Template: "Hello $name",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(f.db.Create(task).Error, qt.IsNil)

	handler, _ := f.reg.Get("send_notification")
	res, err := handler(context.Background(), f.db, *task)
	c.Assert(err, qt.IsNil)
	c.Assert(res["failure"], qt.Equals, 1)
	c.Assert(res["retry_scheduled"], qt.Equals, true)

	var retry models.ScheduledTask
	c.Assert(f.db.Where("id <> ?", task.ID).First(&retry).Error, qt.IsNil)
	c.Assert(retry.Due.Equal(f.now.Add(5*time.Minute)), qt.IsTrue)
	c.Assert(retry.Arguments["attempt_count"], qt.Equals, float64(1))
	recipients := retry.Arguments["recipients"].([]interface{})
	c.Assert(recipients, qt.HasLen, 1)
}

func TestReceiptSchedulerAndParentOTP(t *testing.T) {
	c := qt.New(t)
	f := newTaskFixture(t)
	ctx := context.Background()

	s := f.student(c, "Asha", "asha@example.com", nil)
	due, _ := models.FirstOfMonth("2024-03")
	fee := &models.Fee{ID: uuid.New(), StudentID: s.ID, Amount: decimal.NewFromInt(500), FeeType: "Monthly Rent", DueDate: due}

	c.Assert(NewReceiptScheduler(f.db).PaymentRecorded(ctx, fee, &s), qt.IsNil)
	leave := &models.LeaveRequest{StudentName: "Asha", ParentEmail: "parent@example.com"}
	c.Assert(ScheduleParentOTP(ctx, f.db, leave, "654321"), qt.IsNil)

	// The worker delivers both through email.
	f.now = time.Now().Add(time.Minute)
	c.Assert(f.runner.RunDue(ctx), qt.Equals, 2)

	c.Assert(f.email.sent, qt.HasLen, 2)
	bodies := map[string]string{}
	for _, m := range f.email.sent {
		bodies[m.to] = m.body
	}
	c.Assert(bodies["asha@example.com"], qt.Contains, "500")
	c.Assert(bodies["parent@example.com"], qt.Contains, "654321")

	var done int64
	c.Assert(f.db.Model(&models.ScheduledTask{}).Where("status = ?", models.ScheduledTaskStatusDone).Count(&done).Error, qt.IsNil)
	c.Assert(done, qt.Equals, int64(2))
}

func TestRunnerRetriesAndMarksFailure(t *testing.T) {
	c := qt.New(t)
	f := newTaskFixture(t)

	calls := 0
	f.reg.Register("flaky", func(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
		calls++
		return nil, errors.New("still broken")
	})

	task, err := BuildScheduledTask("flaky", map[string]string{}, f.now.Add(-time.Minute), nil, models.ScheduledTaskTypeOneTime, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(f.db.Create(task).Error, qt.IsNil)
	missing, err := BuildScheduledTask("no_such_task", map[string]string{}, f.now.Add(-time.Minute), nil, models.ScheduledTaskTypeOneTime, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(f.db.Create(missing).Error, qt.IsNil)

	c.Assert(f.runner.RunDue(context.Background()), qt.Equals, 2)
	c.Assert(calls, qt.Equals, 3)

	var reloaded models.ScheduledTask
	c.Assert(f.db.First(&reloaded, task.ID).Error, qt.IsNil)
	c.Assert(reloaded.Status, qt.Equals, models.ScheduledTaskStatusFailure)
	c.Assert(reloaded.LastError, qt.Equals, "still broken")

	var history int64
	c.Assert(f.db.Model(&models.ScheduledTaskHistory{}).Where("scheduled_task_id = ?", task.ID).Count(&history).Error, qt.IsNil)
	c.Assert(history, qt.Equals, int64(3))

	c.Assert(f.db.First(&reloaded, missing.ID).Error, qt.IsNil)
	c.Assert(reloaded.Status, qt.Equals, models.ScheduledTaskStatusFailure)
}

func TestLogInfoReportsQueueSize(t *testing.T) {
	c := qt.New(t)
	f := newTaskFixture(t)

	rule := "FREQ=HOURLY"
	heartbeat, err := BuildScheduledTask("log_info", LogInfoArgs{Message: "worker alive"}, f.now.Add(-time.Minute), &rule, models.ScheduledTaskTypeRecurring, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(f.db.Create(heartbeat).Error, qt.IsNil)
	later, err := BuildScheduledTask("log_info", LogInfoArgs{}, f.now.Add(time.Hour), nil, models.ScheduledTaskTypeOneTime, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(f.db.Create(later).Error, qt.IsNil)

	c.Assert(f.runner.RunDue(context.Background()), qt.Equals, 1)

	var history models.ScheduledTaskHistory
	c.Assert(f.db.Where("scheduled_task_id = ?", heartbeat.ID).First(&history).Error, qt.IsNil)
	c.Assert(history.Status, qt.Equals, "success")
	c.Assert(history.Result["message"], qt.Equals, "worker alive")
	c.Assert(history.Result["active_tasks"], qt.Equals, 2.0)

	var reloaded models.ScheduledTask
	c.Assert(f.db.First(&reloaded, heartbeat.ID).Error, qt.IsNil)
	c.Assert(reloaded.Status, qt.Equals, models.ScheduledTaskStatusActive)
	c.Assert(reloaded.Due.After(f.now), qt.IsTrue)
}
