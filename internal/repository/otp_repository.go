package repository

import (
	"context"
	"fmt"

	"github.com/otpgw/otpgw/internal/config"
	"github.com/otpgw/otpgw/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const verifiedSetKey = "verified_numbers"

// consumeScript compares the submitted code against the stored OTP and
// deletes the key only on a match, in a single round trip.
// Returns -1 when the key is absent, 0 on mismatch, 1 when consumed.
var consumeScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if not stored then
	return -1
end
if stored == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

type OTPRepository struct {
	client *redis.Client
	cfg    *config.OTPConfig
	logger *logrus.Logger
}

func NewOTPRepository(client *redis.Client, cfg *config.OTPConfig, logger *logrus.Logger) *OTPRepository {
	return &OTPRepository{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// StoreOTP stores an active OTP under otp:<phone>, overwriting any
// previous code and resetting the expiry.
func (r *OTPRepository) StoreOTP(ctx context.Context, phoneNumber, code string) error {
	key := otpKey(phoneNumber)
	if err := r.client.Set(ctx, key, code, r.cfg.Expiry).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in Redis")
		return fmt.Errorf("failed to store OTP: %w", err)
	}
	return nil
}

// ConsumeOTP atomically checks and deletes the active OTP for a phone
// number. An expired key is reported as absent.
func (r *OTPRepository) ConsumeOTP(ctx context.Context, phoneNumber, code string) (models.ConsumeOutcome, error) {
	res, err := consumeScript.Run(ctx, r.client, []string{otpKey(phoneNumber)}, code).Int()
	if err != nil {
		r.logger.WithError(err).Error("Failed to consume OTP in Redis")
		return models.ConsumeAbsent, fmt.Errorf("failed to consume OTP: %w", err)
	}

	switch res {
	case 1:
		return models.ConsumeMatched, nil
	case 0:
		return models.ConsumeMismatch, nil
	default:
		return models.ConsumeAbsent, nil
	}
}

// StorePendingOTP caches an OTP while the number awaits sandbox
// verification, under pending_otp:<phone> with the longer expiry.
func (r *OTPRepository) StorePendingOTP(ctx context.Context, phoneNumber, code string) error {
	key := pendingOTPKey(phoneNumber)
	if err := r.client.Set(ctx, key, code, r.cfg.PendingExpiry).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to store pending OTP in Redis")
		return fmt.Errorf("failed to store pending OTP: %w", err)
	}
	return nil
}

// GetPendingOTP returns the cached pending OTP, or an empty string when
// none exists or it has expired.
func (r *OTPRepository) GetPendingOTP(ctx context.Context, phoneNumber string) (string, error) {
	code, err := r.client.Get(ctx, pendingOTPKey(phoneNumber)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get pending OTP: %w", err)
	}
	return code, nil
}

func (r *OTPRepository) DeletePendingOTP(ctx context.Context, phoneNumber string) error {
	if err := r.client.Del(ctx, pendingOTPKey(phoneNumber)).Err(); err != nil {
		return fmt.Errorf("failed to delete pending OTP: %w", err)
	}
	return nil
}

// MarkVerified adds the phone number to the verified set. The set never
// expires.
func (r *OTPRepository) MarkVerified(ctx context.Context, phoneNumber string) error {
	if err := r.client.SAdd(ctx, verifiedSetKey, phoneNumber).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to mark number verified in Redis")
		return fmt.Errorf("failed to mark number verified: %w", err)
	}
	return nil
}

func (r *OTPRepository) IsVerified(ctx context.Context, phoneNumber string) (bool, error) {
	member, err := r.client.SIsMember(ctx, verifiedSetKey, phoneNumber).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check verified status: %w", err)
	}
	return member, nil
}

func otpKey(phoneNumber string) string {
	return fmt.Sprintf("otp:%s", phoneNumber)
}

func pendingOTPKey(phoneNumber string) string {
	return fmt.Sprintf("pending_otp:%s", phoneNumber)
}
