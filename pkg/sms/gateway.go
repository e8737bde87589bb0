package sms

// Gateway defines the interface for sending SMS messages
type Gateway interface {
	// Send delivers message to phone and returns the provider's message reference
	Send(phone, message string) (string, error)

	// GetName returns the name of the SMS gateway implementation
	GetName() string
}
