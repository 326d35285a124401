package models

// ConsumeOutcome is the result of an atomic compare-and-delete on an
// active OTP key. An expired key reads the same as one never issued.
type ConsumeOutcome int

const (
	ConsumeMatched ConsumeOutcome = iota
	ConsumeMismatch
	ConsumeAbsent
)
