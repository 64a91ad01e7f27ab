package sms

import "context"

// SMSGateway defines the interface for sending SMS messages
type SMSGateway interface {
	// SendMessage delivers a text to one recipient.
	// Returns a transaction ID and an error if the send failed.
	SendMessage(ctx context.Context, phone, message string) (int64, error)

	// GetName returns the name of the SMS gateway implementation
	GetName() string
}
