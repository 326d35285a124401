package models

// DispatchStatus is the classified outcome of an SMS send attempt.
// The zero value is DispatchUnknown, so a result whose status was never
// set does not read as a delivery.
type DispatchStatus int

const (
	DispatchUnknown DispatchStatus = iota
	DispatchDelivered
	DispatchUnverifiedNumber
	DispatchInvalidNumber
	DispatchOptedOut
	DispatchProviderError
)

// Reason returns the wire-level reason code used in error responses and logs.
func (s DispatchStatus) Reason() string {
	switch s {
	case DispatchDelivered:
		return "delivered"
	case DispatchUnverifiedNumber:
		return "unverified_number"
	case DispatchInvalidNumber:
		return "invalid_number"
	case DispatchOptedOut:
		return "opted_out"
	default:
		return "aws_error"
	}
}

type DispatchResult struct {
	Status    DispatchStatus
	MessageID string
	Err       error
}
