package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlaceholderCourse is stored for students created from a payment before they were registered
const PlaceholderCourse = "Not Specified"

// Student represents a hostel resident. Email is the identity key.
type Student struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name       string  `gorm:"type:varchar(255);not null" json:"name"`
	Email      string  `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Phone      *string `gorm:"type:varchar(50)" json:"phone"`
	RoomNumber *int    `gorm:"index" json:"room_number"`
	Course     string  `gorm:"type:varchar(255);not null;default:'Not Specified'" json:"course"`
	Year       int     `gorm:"not null;default:1" json:"year"`

	// Relationships
	Fees []Fee `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE" json:"fees,omitempty"`
}

// BeforeCreate assigns the primary key when the caller did not
func (s *Student) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
