package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LeaveStatus tracks a leave request through parent and warden approval
type LeaveStatus string

const (
	LeaveStatusPendingParent LeaveStatus = "pending_parent"
	LeaveStatusPendingWarden LeaveStatus = "pending_warden"
	LeaveStatusApproved      LeaveStatus = "approved"
	LeaveStatusRejected      LeaveStatus = "rejected"
)

// LeaveRequest is a resident's request to leave the hostel for a date range
type LeaveRequest struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentID    *uuid.UUID     `gorm:"type:uuid;index" json:"student_id"`
	StudentName  string         `gorm:"type:varchar(255);not null" json:"student_name"`
	StudentEmail string         `gorm:"type:varchar(255);not null" json:"student_email"`
	StudentRoom  string         `gorm:"type:varchar(50);not null" json:"student_room"`
	ParentEmail  string         `gorm:"type:varchar(255);not null" json:"parent_email"`
	FromDate     datatypes.Date `gorm:"not null" json:"from_date"`
	ToDate       datatypes.Date `gorm:"not null" json:"to_date"`
	Reason       string         `gorm:"type:text;not null" json:"reason"`

	Status         LeaveStatus `gorm:"type:varchar(20);not null;default:'pending_parent';index" json:"status"`
	ApprovedBy     *string     `gorm:"type:varchar(255)" json:"approved_by"`
	RejectedReason *string     `gorm:"type:text" json:"rejected_reason"`
	QRCode         *string     `gorm:"type:varchar(100)" json:"qr_code"`
}

// BeforeCreate assigns the primary key when the caller did not
func (l *LeaveRequest) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// CanBeDecided reports whether the warden may approve or reject the request
func (l LeaveRequest) CanBeDecided() bool {
	return l.Status == LeaveStatusPendingParent || l.Status == LeaveStatusPendingWarden
}

// OTPVerification holds the code mailed to a parent to confirm a leave request
type OTPVerification struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	LeaveRequestID uuid.UUID  `gorm:"type:uuid;not null;index" json:"leave_request_id"`
	ParentEmail    string     `gorm:"type:varchar(255);not null" json:"parent_email"`
	OTPCode        string     `gorm:"type:varchar(10);not null" json:"-"`
	ExpiresAt      time.Time  `gorm:"not null" json:"expires_at"`
	VerifiedAt     *time.Time `json:"verified_at"`
}

// BeforeCreate assigns the primary key when the caller did not
func (o *OTPVerification) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Usable reports whether the code can still be verified at now
func (o OTPVerification) Usable(now time.Time) bool {
	return o.VerifiedAt == nil && now.Before(o.ExpiresAt)
}
