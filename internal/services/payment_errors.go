package services

import (
	"errors"
	"fmt"
)

// Payment error codes
const (
	CodeInvalidRequest      = "invalid_request"
	CodePaymentNotCompleted = "payment_not_completed"
	CodeMissingEmail        = "missing_email"
	CodeInvalidMetadata     = "invalid_metadata"
	CodeStudentUnresolvable = "student_unresolvable"
	CodeAPICallFailed       = "api_call_failed"
	CodeStoreFailed         = "store_failed"
	CodeWebhookValidation   = "webhook_validation"
)

// PaymentError is returned by the settlement operations. Code tells the
// transport layer how to answer, Message is safe to show to the payer.
type PaymentError struct {
	Code    string
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment error [%s]: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("payment error [%s]: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given code, message, and underlying error
func NewPaymentError(code, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// PaymentErrorCode returns the code of a PaymentError anywhere in err's chain, or ""
func PaymentErrorCode(err error) string {
	var perr *PaymentError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}

// IsClientError reports whether the failure was caused by the request rather than by a dependency
func IsClientError(err error) bool {
	switch PaymentErrorCode(err) {
	case CodeInvalidRequest, CodePaymentNotCompleted, CodeWebhookValidation:
		return true
	default:
		return false
	}
}
