package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// NormalizePhone turns raw input into the canonical dialable address
// used as the store key. Input already bearing the country code passes
// through unchanged; otherwise one leading "0" is stripped and the
// country code prepended. No further validation is performed.
func NormalizePhone(raw, countryCode string) string {
	if strings.HasPrefix(raw, countryCode) {
		return raw
	}
	return countryCode + strings.TrimPrefix(raw, "0")
}

// GenerateOTP returns a uniformly random six-digit code in
// [100000, 999999], so the leading digit is never zero.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
