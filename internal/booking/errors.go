package booking

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("appointment not found")
	ErrAlreadyCancelled     = errors.New("appointment already cancelled")
	ErrSlotUnavailable      = errors.New("slot unavailable")
	ErrSlotBlocked          = errors.New("slot blocked by the barber")
	ErrOutsideBusinessHours = errors.New("time is outside business hours")
	ErrOwnershipMismatch    = errors.New("appointment belongs to another customer")
	ErrPaymentCaptured      = errors.New("payment already captured; cancellation requires the barber")
	ErrNotCancellable       = errors.New("appointment is in the past or can no longer be changed")
)

// ValidationError reports malformed input the caller can correct.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
