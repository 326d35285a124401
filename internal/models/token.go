package models

// VerificationToken is the signed proof returned after a successful
// OTP verification.
type VerificationToken struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}
