package model

import "time"

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

type CancelRole string

const (
	RoleBarber   CancelRole = "BARBER"
	RoleCustomer CancelRole = "CUSTOMER"
)

type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentPix  PaymentMethod = "pix"
	PaymentCash PaymentMethod = "cash"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Appointment is a booked span of slots. StartTime is a UTC instant aligned to
// the business slot grid; DurationMinutes is copied from the service catalog at
// booking time so later catalog edits do not rewrite history.
type Appointment struct {
	ID                string
	CustomerName      string
	CustomerPhone     string
	HaircutID         string
	Notes             string
	StartTime         time.Time
	DurationMinutes   int
	Status            AppointmentStatus
	CancelledAt       *time.Time
	CancelledByRole   CancelRole
	CancelReason      string
	RescheduledFromID string
	RescheduledToID   string
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	MPPaymentID       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Active reports whether the appointment still occupies its slot span.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}
