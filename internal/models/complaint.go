package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ComplaintStatus is the lifecycle of a maintenance ticket
type ComplaintStatus string

const (
	ComplaintStatusPending    ComplaintStatus = "pending"
	ComplaintStatusInProgress ComplaintStatus = "in_progress"
	ComplaintStatusResolved   ComplaintStatus = "resolved"
)

// Complaint is a resident-raised complaint or maintenance ticket
type Complaint struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentID   *uuid.UUID      `gorm:"type:uuid;index" json:"student_id"`
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Priority    string          `gorm:"type:varchar(20);default:'medium'" json:"priority"`
	Status      ComplaintStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ResolvedAt  *time.Time      `json:"resolved_at"`

	Student *Student `gorm:"foreignKey:StudentID;constraint:OnDelete:SET NULL" json:"student,omitempty"`
}

// BeforeCreate assigns the primary key when the caller did not
func (c *Complaint) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// SetStatus moves the complaint and stamps or clears the resolution time
func (c *Complaint) SetStatus(status ComplaintStatus, now time.Time) {
	c.Status = status
	if status == ComplaintStatusResolved {
		c.ResolvedAt = &now
	} else {
		c.ResolvedAt = nil
	}
}
