package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationChannel string

const (
	NotificationChannelEmail    NotificationChannel = "email"
	NotificationChannelWhatsapp NotificationChannel = "whatsapp"
	NotificationChannelNone     NotificationChannel = "none"
)

const (
	WhatsappTargetTypePersonal = "personal"
	WhatsappTargetTypeGroup    = "group"
)

// StudentNotifPreference selects how a student receives receipts and reminders
type StudentNotifPreference struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentID uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"student_id"`

	Channel NotificationChannel `gorm:"type:varchar(20);default:'email'" json:"channel"`

	// WhatsApp specific options
	WhatsappTargetType string `gorm:"type:varchar(20);default:'personal'" json:"whatsapp_target_type"` // 'personal' or 'group'
	WhatsappGroupID    string `gorm:"type:varchar(100)" json:"whatsapp_group_id"`                      // Group ID if target type is group
}

// DefaultNotifPreference is used for students that never chose a channel
func DefaultNotifPreference(studentID uuid.UUID) StudentNotifPreference {
	return StudentNotifPreference{
		StudentID:          studentID,
		Channel:            NotificationChannelEmail,
		WhatsappTargetType: WhatsappTargetTypePersonal,
	}
}
