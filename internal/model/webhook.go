package model

import "time"

type ProcessingStatus string

const (
	ProcessingSuccess ProcessingStatus = "SUCCESS"
	ProcessingFailed  ProcessingStatus = "FAILED"
	ProcessingIgnored ProcessingStatus = "IGNORED"
)

// WebhookEvent is an immutable audit record of one inbound provider
// notification. (Provider, MPPaymentID, EventAction) is unique so that
// redelivery of the identical event collapses into a single row.
type WebhookEvent struct {
	ID               string
	Provider         string
	RequestID        string
	Method           string
	Path             string
	Query            map[string]string
	Headers          map[string]string
	Body             []byte
	EventType        string
	EventAction      string
	MPPaymentID      string
	ProcessingStatus ProcessingStatus
	ErrorMessage     string
	ProcessedAt      time.Time
	CreatedAt        time.Time
}
