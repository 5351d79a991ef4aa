package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FeeStatus is the payment state of a fee record
type FeeStatus string

const (
	FeeStatusPending FeeStatus = "pending"
	FeeStatusPaid    FeeStatus = "paid"
	FeeStatusOverdue FeeStatus = "overdue"
)

// MessFeeType is the fee category used for mess bills
const MessFeeType = "Mess Fee"

// DateLayout is the wire and storage format of calendar dates
const DateLayout = "2006-01-02"

// Fee represents one billed or paid obligation of a student
type Fee struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentID uuid.UUID       `gorm:"type:uuid;not null;index" json:"student_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	FeeType   string          `gorm:"type:varchar(100);not null" json:"fee_type"`
	DueDate   datatypes.Date  `gorm:"not null;index" json:"due_date"`
	Status    FeeStatus       `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaidDate  *datatypes.Date `json:"paid_date"`

	// PaymentSessionID is the checkout session that settled this fee. It is
	// unique so a session can never produce two fee records.
	PaymentSessionID *string `gorm:"type:varchar(255);uniqueIndex" json:"payment_session_id,omitempty"`

	// Relationships
	Student *Student `gorm:"foreignKey:StudentID" json:"student,omitempty"`
}

// BeforeCreate assigns the primary key when the caller did not
func (f *Fee) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// MarkPaid flips the fee to paid on the given day
func (f *Fee) MarkPaid(on time.Time) {
	paid := DateOf(on)
	f.Status = FeeStatusPaid
	f.PaidDate = &paid
}

// IsOverdue reports whether a pending fee is past its due date
func (f Fee) IsOverdue(now time.Time) bool {
	if f.Status != FeeStatusPending {
		return false
	}
	return time.Time(f.DueDate).Before(time.Time(DateOf(now)))
}

// DateOf truncates t to its calendar day in UTC
func DateOf(t time.Time) datatypes.Date {
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// FormatDate renders a date column in DateLayout
func FormatDate(d datatypes.Date) string {
	return time.Time(d).Format(DateLayout)
}

// FirstOfMonth parses a billing month "YYYY-MM" into the first day of that month
func FirstOfMonth(month string) (datatypes.Date, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return datatypes.Date{}, err
	}
	return datatypes.Date(t), nil
}
