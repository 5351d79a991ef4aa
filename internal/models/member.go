package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MemberRole represents the role of a staff member
type MemberRole string

const (
	MemberRoleAdmin   MemberRole = "admin"
	MemberRoleStaff   MemberRole = "staff"
	MemberRoleManager MemberRole = "manager"
	MemberRoleWarden  MemberRole = "warden"
)

// Member is a hostel staff member
type Member struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name  string     `gorm:"type:varchar(255);not null" json:"name"`
	Email *string    `gorm:"type:varchar(255)" json:"email"`
	Role  MemberRole `gorm:"type:varchar(20);not null;default:'staff'" json:"role"`
}

// BeforeCreate assigns the primary key when the caller did not
func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
