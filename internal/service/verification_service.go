package service

import (
	"context"
	"fmt"

	"github.com/otpgw/otpgw/internal/config"
	"github.com/otpgw/otpgw/internal/models"
	"github.com/sirupsen/logrus"
)

// OTPStore is the expiring key-value surface the workflow needs.
// Implemented by repository.OTPRepository; tests substitute an
// in-memory double.
type OTPStore interface {
	StoreOTP(ctx context.Context, phoneNumber, code string) error
	ConsumeOTP(ctx context.Context, phoneNumber, code string) (models.ConsumeOutcome, error)
	StorePendingOTP(ctx context.Context, phoneNumber, code string) error
	GetPendingOTP(ctx context.Context, phoneNumber string) (string, error)
	DeletePendingOTP(ctx context.Context, phoneNumber string) error
	MarkVerified(ctx context.Context, phoneNumber string) error
	IsVerified(ctx context.Context, phoneNumber string) (bool, error)
}

// Dispatcher is the SMS provider surface. Implemented by sms.Client.
type Dispatcher interface {
	SendSMS(ctx context.Context, phoneNumber, message string) models.DispatchResult
	RegisterSandboxNumber(ctx context.Context, phoneNumber string) error
	ConfirmSandboxNumber(ctx context.Context, phoneNumber, code string) (bool, error)
}

type VerificationService struct {
	store      OTPStore
	dispatcher Dispatcher
	tokens     *TokenService
	cfg        *config.OTPConfig
	logger     *logrus.Logger
}

func NewVerificationService(
	store OTPStore,
	dispatcher Dispatcher,
	tokens *TokenService,
	cfg *config.OTPConfig,
	logger *logrus.Logger,
) *VerificationService {
	return &VerificationService{
		store:      store,
		dispatcher: dispatcher,
		tokens:     tokens,
		cfg:        cfg,
		logger:     logger,
	}
}

type SendResult struct {
	PhoneNumber          string
	MessageID            string
	VerificationRequired bool
}

type ConfirmResult struct {
	PhoneNumber string
	OTPSent     bool
	MessageID   string
}

// RequestOTP generates and dispatches a fresh OTP. A number the SMS
// sandbox has not verified yet gets a sandbox registration instead: the
// OTP is parked under the pending key and the result carries
// VerificationRequired.
func (s *VerificationService) RequestOTP(ctx context.Context, rawPhone string) (*SendResult, error) {
	phone := NormalizePhone(rawPhone, s.cfg.CountryCode)

	otp, err := GenerateOTP()
	if err != nil {
		return nil, err
	}

	res := s.dispatcher.SendSMS(ctx, phone, otpMessage(otp))
	switch res.Status {
	case models.DispatchDelivered:
		if err := s.store.StoreOTP(ctx, phone, otp); err != nil {
			return nil, err
		}
		if err := s.store.MarkVerified(ctx, phone); err != nil {
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{
			"phone":      phone,
			"message_id": res.MessageID,
		}).Info("OTP dispatched")
		return &SendResult{PhoneNumber: phone, MessageID: res.MessageID}, nil

	case models.DispatchUnverifiedNumber:
		if err := s.dispatcher.RegisterSandboxNumber(ctx, phone); err != nil {
			return nil, &DispatchError{Reason: "aws_error", Err: err}
		}
		if err := s.store.StorePendingOTP(ctx, phone, otp); err != nil {
			return nil, err
		}
		s.logger.WithField("phone", phone).Info("Sandbox verification started, OTP parked as pending")
		return &SendResult{PhoneNumber: phone, VerificationRequired: true}, nil

	default:
		return nil, &DispatchError{Reason: res.Status.Reason(), Err: res.Err}
	}
}

// ConfirmNumber submits the carrier verification code. On success the
// number is marked verified and any pending OTP is dispatched and
// promoted to active. A dispatch failure at that point is logged and
// swallowed: the confirmation itself still succeeded, and the pending
// key is left to expire so a later resend can recover.
func (s *VerificationService) ConfirmNumber(ctx context.Context, rawPhone, code string) (*ConfirmResult, error) {
	phone := NormalizePhone(rawPhone, s.cfg.CountryCode)

	ok, err := s.dispatcher.ConfirmSandboxNumber(ctx, phone, code)
	if err != nil {
		return nil, &DispatchError{Reason: "aws_error", Err: err}
	}
	if !ok {
		return nil, ErrInvalidVerificationCode
	}

	if err := s.store.MarkVerified(ctx, phone); err != nil {
		return nil, err
	}

	result := &ConfirmResult{PhoneNumber: phone}

	pending, err := s.store.GetPendingOTP(ctx, phone)
	if err != nil {
		s.logger.WithError(err).WithField("phone", phone).Warn("Failed to read pending OTP after confirmation")
		return result, nil
	}
	if pending == "" {
		return result, nil
	}

	res := s.dispatcher.SendSMS(ctx, phone, otpMessage(pending))
	if res.Status != models.DispatchDelivered {
		s.logger.WithError(res.Err).WithFields(logrus.Fields{
			"phone":  phone,
			"reason": res.Status.Reason(),
		}).Warn("Pending OTP dispatch failed after confirmation")
		return result, nil
	}

	if err := s.store.DeletePendingOTP(ctx, phone); err != nil {
		s.logger.WithError(err).WithField("phone", phone).Warn("Failed to delete pending OTP after promotion")
	}
	if err := s.store.StoreOTP(ctx, phone, pending); err != nil {
		return nil, err
	}

	result.OTPSent = true
	result.MessageID = res.MessageID
	return result, nil
}

// VerifyOTP consumes the active OTP. The compare-and-delete runs inside
// the store, so a matched code can only be used once. On a mismatch the
// key is retained for a further attempt.
func (s *VerificationService) VerifyOTP(ctx context.Context, rawPhone, code string) (*models.VerificationToken, error) {
	phone := NormalizePhone(rawPhone, s.cfg.CountryCode)

	outcome, err := s.store.ConsumeOTP(ctx, phone, code)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case models.ConsumeAbsent:
		return nil, ErrOTPNotFound
	case models.ConsumeMismatch:
		return nil, ErrOTPMismatch
	}

	token, err := s.tokens.Issue(phone)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("phone", phone).Info("OTP verified")
	return token, nil
}

// ResendOTP dispatches a fresh OTP to an already-verified number,
// overwriting the active key. There is no sandbox fallback on this
// path.
func (s *VerificationService) ResendOTP(ctx context.Context, rawPhone string) (*SendResult, error) {
	phone := NormalizePhone(rawPhone, s.cfg.CountryCode)

	verified, err := s.store.IsVerified(ctx, phone)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, ErrNotVerified
	}

	otp, err := GenerateOTP()
	if err != nil {
		return nil, err
	}

	res := s.dispatcher.SendSMS(ctx, phone, otpMessage(otp))
	if res.Status != models.DispatchDelivered {
		return nil, &DispatchError{Reason: res.Status.Reason(), Err: res.Err}
	}

	if err := s.store.StoreOTP(ctx, phone, otp); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"phone":      phone,
		"message_id": res.MessageID,
	}).Info("OTP re-dispatched")
	return &SendResult{PhoneNumber: phone, MessageID: res.MessageID}, nil
}

func otpMessage(otp string) string {
	return fmt.Sprintf("Your verification code is: %s", otp)
}
