package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentGateway string

const (
	PaymentGatewayStripe PaymentGateway = "stripe"
	PaymentGatewayManual PaymentGateway = "manual"
)

// PaymentCallbackHistory stores processor webhook deliveries, unique per event,
// so a redelivered event is only processed once
type PaymentCallbackHistory struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	PaymentGateway  PaymentGateway `gorm:"type:varchar(50);not null;uniqueIndex:ux_callback_gateway_event,priority:1" json:"payment_gateway"`
	EventID         string         `gorm:"type:varchar(191);not null;uniqueIndex:ux_callback_gateway_event,priority:2" json:"event_id"`
	EventType       string         `gorm:"type:varchar(100);not null;index" json:"event_type"`
	SessionID       string         `gorm:"type:varchar(255);index" json:"session_id"`
	Metadata        datatypes.JSON `gorm:"type:jsonb" json:"metadata"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
