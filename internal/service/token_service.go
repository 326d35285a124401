package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/otpgw/otpgw/internal/config"
	"github.com/otpgw/otpgw/internal/models"
	"github.com/sirupsen/logrus"
)

// TokenService mints the proof-of-verification token returned once an
// OTP has been consumed. Downstream systems verify the signature to
// accept the phone number as proven.
type TokenService struct {
	secretKey []byte
	expiry    time.Duration
	logger    *logrus.Logger
}

func NewTokenService(cfg *config.TokenConfig, logger *logrus.Logger) (*TokenService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &TokenService{
		secretKey: secretKey,
		expiry:    cfg.Expiry,
		logger:    logger,
	}, nil
}

type Claims struct {
	Phone string `json:"phone"`
	jwt.RegisteredClaims
}

func (s *TokenService) Issue(phoneNumber string) (*models.VerificationToken, error) {
	now := time.Now()
	claims := &Claims{
		Phone: phoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   phoneNumber,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign verification token")
		return nil, fmt.Errorf("failed to sign verification token: %w", err)
	}

	return &models.VerificationToken{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int64(s.expiry.Seconds()),
	}, nil
}

func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
