package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/otpgw/otpgw/internal/models"
	"github.com/otpgw/otpgw/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	statusSuccess              = "success"
	statusError                = "error"
	statusVerificationRequired = "verification_required"
)

type OTPHandlers struct {
	verification *service.VerificationService
	logger       *logrus.Logger
}

func NewOTPHandlers(verification *service.VerificationService, logger *logrus.Logger) *OTPHandlers {
	return &OTPHandlers{
		verification: verification,
		logger:       logger,
	}
}

type SendOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type VerifyOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp"`
}

type VerifyNumberRequest struct {
	PhoneNumber      string `json:"phone_number"`
	VerificationCode string `json:"verification_code"`
}

type SendOTPResponse struct {
	Status    string `json:"status"`
	OTPSentTo string `json:"otp_sent_to,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

type VerifyOTPResponse struct {
	Status  string                    `json:"status"`
	Message string                    `json:"message"`
	Token   *models.VerificationToken `json:"verification,omitempty"`
}

type VerifyNumberResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	OTPSent   bool   `json:"otp_sent"`
	MessageID string `json:"message_id,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func (h *OTPHandlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	if strings.TrimSpace(req.PhoneNumber) == "" {
		h.respondWithError(w, http.StatusBadRequest, "Missing phone number", "")
		return
	}

	result, err := h.verification.RequestOTP(r.Context(), req.PhoneNumber)
	if err != nil {
		h.respondDispatchError(w, err, "Failed to send OTP")
		return
	}

	if result.VerificationRequired {
		h.respondWithJSON(w, http.StatusAccepted, SendOTPResponse{
			Status:    statusVerificationRequired,
			OTPSentTo: result.PhoneNumber,
			Message:   "Number verification required before SMS delivery",
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, SendOTPResponse{
		Status:    statusSuccess,
		OTPSentTo: result.PhoneNumber,
		MessageID: result.MessageID,
	})
}

func (h *OTPHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	if strings.TrimSpace(req.PhoneNumber) == "" || strings.TrimSpace(req.OTP) == "" {
		h.respondWithError(w, http.StatusBadRequest, "Missing phone number or OTP", "")
		return
	}

	token, err := h.verification.VerifyOTP(r.Context(), req.PhoneNumber, strings.TrimSpace(req.OTP))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOTPNotFound):
			h.respondWithError(w, http.StatusNotFound, "OTP expired or not found", "")
		case errors.Is(err, service.ErrOTPMismatch):
			h.respondWithError(w, http.StatusUnauthorized, "Invalid OTP", "")
		default:
			h.logger.WithError(err).Error("Failed to verify OTP")
			h.respondWithError(w, http.StatusInternalServerError, "Failed to verify OTP", "")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, VerifyOTPResponse{
		Status:  statusSuccess,
		Message: "OTP verified successfully",
		Token:   token,
	})
}

func (h *OTPHandlers) VerifyNumber(w http.ResponseWriter, r *http.Request) {
	var req VerifyNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	if strings.TrimSpace(req.PhoneNumber) == "" || strings.TrimSpace(req.VerificationCode) == "" {
		h.respondWithError(w, http.StatusBadRequest, "Missing phone number or verification code", "")
		return
	}

	result, err := h.verification.ConfirmNumber(r.Context(), req.PhoneNumber, strings.TrimSpace(req.VerificationCode))
	if err != nil {
		if errors.Is(err, service.ErrInvalidVerificationCode) {
			h.respondWithError(w, http.StatusBadRequest, "Invalid verification code", "")
			return
		}
		h.respondDispatchError(w, err, "Failed to verify number")
		return
	}

	message := "Phone number verified"
	if result.OTPSent {
		message = "Phone number verified, OTP sent"
	}

	h.respondWithJSON(w, http.StatusOK, VerifyNumberResponse{
		Status:    statusSuccess,
		Message:   message,
		OTPSent:   result.OTPSent,
		MessageID: result.MessageID,
	})
}

func (h *OTPHandlers) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	if strings.TrimSpace(req.PhoneNumber) == "" {
		h.respondWithError(w, http.StatusBadRequest, "Missing phone number", "")
		return
	}

	result, err := h.verification.ResendOTP(r.Context(), req.PhoneNumber)
	if err != nil {
		if errors.Is(err, service.ErrNotVerified) {
			h.respondWithError(w, http.StatusForbidden, "Phone number not verified", "")
			return
		}
		h.respondDispatchError(w, err, "Failed to resend OTP")
		return
	}

	h.respondWithJSON(w, http.StatusOK, SendOTPResponse{
		Status:    statusSuccess,
		OTPSentTo: result.PhoneNumber,
		MessageID: result.MessageID,
	})
}

func (h *OTPHandlers) respondDispatchError(w http.ResponseWriter, err error, fallback string) {
	var dispatchErr *service.DispatchError
	if errors.As(err, &dispatchErr) {
		status := http.StatusInternalServerError
		if dispatchErr.UserCorrectable() {
			status = http.StatusBadRequest
		}
		h.respondWithError(w, status, dispatchErr.Error(), dispatchErr.Reason)
		return
	}

	h.logger.WithError(err).Error(fallback)
	h.respondWithError(w, http.StatusInternalServerError, fallback, "")
}

func (h *OTPHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *OTPHandlers) respondWithError(w http.ResponseWriter, status int, message, reason string) {
	h.respondWithJSON(w, status, ErrorResponse{
		Status:  statusError,
		Message: message,
		Reason:  reason,
	})
}
