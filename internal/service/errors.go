package service

import "errors"

var (
	ErrOTPNotFound             = errors.New("OTP expired or not found")
	ErrOTPMismatch             = errors.New("invalid OTP")
	ErrNotVerified             = errors.New("phone number not verified")
	ErrInvalidVerificationCode = errors.New("invalid verification code")
)

// DispatchError is returned when the SMS provider rejects a send.
// Reason is one of the fixed dispatch reason codes.
type DispatchError struct {
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return "dispatch failed (" + e.Reason + "): " + e.Err.Error()
	}
	return "dispatch failed (" + e.Reason + ")"
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// UserCorrectable reports whether the failure is something the caller
// can fix, as opposed to a systemic provider error.
func (e *DispatchError) UserCorrectable() bool {
	return e.Reason == "invalid_number" || e.Reason == "opted_out"
}
