package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/otpgw/otpgw/internal/models"
	"github.com/sirupsen/logrus"
)

// Client wraps the SNS API for SMS dispatch and the SMS-sandbox
// destination verification calls.
type Client struct {
	sns    *sns.Client
	logger *logrus.Logger
}

func NewClient(snsClient *sns.Client, logger *logrus.Logger) *Client {
	return &Client{
		sns:    snsClient,
		logger: logger,
	}
}

// SendSMS publishes a message directly to a phone number and classifies
// the outcome. Callers switch on the result status instead of
// inspecting error text.
func (c *Client) SendSMS(ctx context.Context, phoneNumber, message string) models.DispatchResult {
	out, err := c.sns.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phoneNumber),
		Message:     aws.String(message),
	})
	if err != nil {
		result := classifyPublishError(err)
		c.logger.WithError(err).WithFields(logrus.Fields{
			"phone":  phoneNumber,
			"reason": result.Status.Reason(),
		}).Warn("SMS dispatch failed")
		return result
	}

	return models.DispatchResult{
		Status:    models.DispatchDelivered,
		MessageID: aws.ToString(out.MessageId),
	}
}

// RegisterSandboxNumber starts destination verification for a number the
// SMS sandbox has not seen before. SNS texts a one-time verification
// code to the number.
func (c *Client) RegisterSandboxNumber(ctx context.Context, phoneNumber string) error {
	_, err := c.sns.CreateSMSSandboxPhoneNumber(ctx, sandboxRegistrationInput(phoneNumber))
	if err != nil {
		c.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to register sandbox number")
		return fmt.Errorf("failed to register sandbox number: %w", err)
	}
	return nil
}

// ConfirmSandboxNumber submits the carrier verification code. A wrong
// code returns (false, nil); any other failure is an error.
func (c *Client) ConfirmSandboxNumber(ctx context.Context, phoneNumber, code string) (bool, error) {
	_, err := c.sns.VerifySMSSandboxPhoneNumber(ctx, &sns.VerifySMSSandboxPhoneNumberInput{
		PhoneNumber:     aws.String(phoneNumber),
		OneTimePassword: aws.String(code),
	})
	if err != nil {
		var verr *types.VerificationException
		if errors.As(err, &verr) {
			return false, nil
		}
		c.logger.WithError(err).WithField("phone", phoneNumber).Error("Sandbox confirmation call failed")
		return false, fmt.Errorf("failed to confirm sandbox number: %w", err)
	}
	return true, nil
}

func sandboxRegistrationInput(phoneNumber string) *sns.CreateSMSSandboxPhoneNumberInput {
	return &sns.CreateSMSSandboxPhoneNumberInput{
		PhoneNumber:  aws.String(phoneNumber),
		LanguageCode: types.LanguageCodeStringEnUs,
	}
}

func classifyPublishError(err error) models.DispatchResult {
	var authErr *types.AuthorizationErrorException
	if errors.As(err, &authErr) {
		msg := strings.ToLower(authErr.ErrorMessage())
		if strings.Contains(msg, "sandbox") || strings.Contains(msg, "unverified") {
			return models.DispatchResult{Status: models.DispatchUnverifiedNumber, Err: err}
		}
		return models.DispatchResult{Status: models.DispatchProviderError, Err: err}
	}

	var paramErr *types.InvalidParameterException
	if errors.As(err, &paramErr) {
		if strings.Contains(strings.ToLower(paramErr.ErrorMessage()), "opted out") {
			return models.DispatchResult{Status: models.DispatchOptedOut, Err: err}
		}
		return models.DispatchResult{Status: models.DispatchInvalidNumber, Err: err}
	}

	var valueErr *types.InvalidParameterValueException
	if errors.As(err, &valueErr) {
		return models.DispatchResult{Status: models.DispatchInvalidNumber, Err: err}
	}

	return models.DispatchResult{Status: models.DispatchProviderError, Err: err}
}
