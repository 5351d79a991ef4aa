package tasks

import (
	"time"

	"go.uber.org/zap"

	"hostel_app/internal/services"
)

// Deps are the collaborators task handlers need. Email, Whatsapp and Events may be nil.
type Deps struct {
	Logger   *zap.Logger
	Email    EmailSender
	Whatsapp WhatsappSender
	Events   services.EventPublisher
	Now      func() time.Time
}

// DefineTasks registers all available tasks on reg
func DefineTasks(reg *Registry, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	// Register general tasks
	logInfo := &LogInfoTaskDef{logger: deps.Logger}
	reg.Register(logInfo.TaskID(), logInfo.HandleExecution)

	// Register billing tasks
	monthly := &GenerateMonthlyFeesTaskDef{logger: deps.Logger, events: deps.Events, now: deps.Now}
	reg.Register(monthly.TaskID(), monthly.HandleExecution)

	overdue := &MarkOverdueFeesTaskDef{logger: deps.Logger, events: deps.Events, now: deps.Now}
	reg.Register(overdue.TaskID(), overdue.HandleExecution)

	// Register notification tasks
	notify := &SendNotificationTaskDef{
		email:      deps.Email,
		whatsapp:   deps.Whatsapp,
		logger:     deps.Logger,
		retryDelay: 5 * time.Minute,
		now:        deps.Now,
	}
	reg.Register(notify.TaskID(), notify.HandleExecution)
}
