package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/otpgw/otpgw/internal/config"
	"github.com/otpgw/otpgw/internal/models"
	"github.com/otpgw/otpgw/internal/service"
	"github.com/sirupsen/logrus"
)

type fakeStore struct {
	otps     map[string]string
	pending  map[string]string
	verified map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		otps:     make(map[string]string),
		pending:  make(map[string]string),
		verified: make(map[string]bool),
	}
}

func (f *fakeStore) StoreOTP(_ context.Context, phone, code string) error {
	f.otps[phone] = code
	return nil
}

func (f *fakeStore) ConsumeOTP(_ context.Context, phone, code string) (models.ConsumeOutcome, error) {
	stored, ok := f.otps[phone]
	if !ok {
		return models.ConsumeAbsent, nil
	}
	if stored != code {
		return models.ConsumeMismatch, nil
	}
	delete(f.otps, phone)
	return models.ConsumeMatched, nil
}

func (f *fakeStore) StorePendingOTP(_ context.Context, phone, code string) error {
	f.pending[phone] = code
	return nil
}

func (f *fakeStore) GetPendingOTP(_ context.Context, phone string) (string, error) {
	return f.pending[phone], nil
}

func (f *fakeStore) DeletePendingOTP(_ context.Context, phone string) error {
	delete(f.pending, phone)
	return nil
}

func (f *fakeStore) MarkVerified(_ context.Context, phone string) error {
	f.verified[phone] = true
	return nil
}

func (f *fakeStore) IsVerified(_ context.Context, phone string) (bool, error) {
	return f.verified[phone], nil
}

type fakeDispatcher struct {
	sendFn    func(phone, message string) models.DispatchResult
	confirmFn func(phone, code string) (bool, error)
}

func (f *fakeDispatcher) SendSMS(_ context.Context, phone, message string) models.DispatchResult {
	if f.sendFn != nil {
		return f.sendFn(phone, message)
	}
	return models.DispatchResult{Status: models.DispatchDelivered, MessageID: "msg-1"}
}

func (f *fakeDispatcher) RegisterSandboxNumber(_ context.Context, phone string) error {
	return nil
}

func (f *fakeDispatcher) ConfirmSandboxNumber(_ context.Context, phone, code string) (bool, error) {
	if f.confirmFn != nil {
		return f.confirmFn(phone, code)
	}
	return true, nil
}

func newTestHandlers(t *testing.T, store service.OTPStore, dispatcher service.Dispatcher) *OTPHandlers {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tokens, err := service.NewTokenService(&config.TokenConfig{
		SecretKey: "0123456789abcdef0123456789abcdef",
		Expiry:    15 * time.Minute,
	}, logger)
	if err != nil {
		t.Fatalf("failed to build token service: %v", err)
	}

	cfg := &config.OTPConfig{
		Expiry:        5 * time.Minute,
		PendingExpiry: 10 * time.Minute,
		CountryCode:   "+91",
	}

	verification := service.NewVerificationService(store, dispatcher, tokens, cfg, logger)
	return NewOTPHandlers(verification, logger)
}

func doPost(t *testing.T, handler http.HandlerFunc, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler(rec, req)

	var decoded map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return rec, decoded
}

func TestSendOTP(t *testing.T) {
	t.Run("MissingPhoneNumber", func(t *testing.T) {
		h := newTestHandlers(t, newFakeStore(), &fakeDispatcher{})

		rec, body := doPost(t, h.SendOTP, map[string]string{})

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if body["status"] != "error" {
			t.Fatalf("expected error status, got %v", body["status"])
		}
	})

	t.Run("Success", func(t *testing.T) {
		store := newFakeStore()
		h := newTestHandlers(t, store, &fakeDispatcher{})

		rec, body := doPost(t, h.SendOTP, map[string]string{"phone_number": "9876543210"})

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if body["status"] != "success" {
			t.Fatalf("expected success status, got %v", body["status"])
		}
		if body["otp_sent_to"] != "+919876543210" {
			t.Fatalf("expected normalized phone in response, got %v", body["otp_sent_to"])
		}
		if store.otps["+919876543210"] == "" {
			t.Fatal("expected active OTP in store")
		}
	})

	t.Run("VerificationRequired", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			sendFn: func(phone, message string) models.DispatchResult {
				return models.DispatchResult{Status: models.DispatchUnverifiedNumber}
			},
		}
		h := newTestHandlers(t, newFakeStore(), dispatcher)

		rec, body := doPost(t, h.SendOTP, map[string]string{"phone_number": "9876543210"})

		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
		if body["status"] != "verification_required" {
			t.Fatalf("expected verification_required status, got %v", body["status"])
		}
	})

	t.Run("InvalidNumberMapsTo400", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			sendFn: func(phone, message string) models.DispatchResult {
				return models.DispatchResult{Status: models.DispatchInvalidNumber, Err: errors.New("bad number")}
			},
		}
		h := newTestHandlers(t, newFakeStore(), dispatcher)

		rec, body := doPost(t, h.SendOTP, map[string]string{"phone_number": "9876543210"})

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if body["reason"] != "invalid_number" {
			t.Fatalf("expected invalid_number reason, got %v", body["reason"])
		}
	})

	t.Run("ProviderErrorMapsTo500", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			sendFn: func(phone, message string) models.DispatchResult {
				return models.DispatchResult{Status: models.DispatchProviderError, Err: errors.New("internal")}
			},
		}
		h := newTestHandlers(t, newFakeStore(), dispatcher)

		rec, body := doPost(t, h.SendOTP, map[string]string{"phone_number": "9876543210"})

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		if body["reason"] != "aws_error" {
			t.Fatalf("expected aws_error reason, got %v", body["reason"])
		}
	})
}

func TestVerifyOTP(t *testing.T) {
	t.Run("MissingFields", func(t *testing.T) {
		h := newTestHandlers(t, newFakeStore(), &fakeDispatcher{})

		rec, _ := doPost(t, h.VerifyOTP, map[string]string{"phone_number": "9876543210"})

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		h := newTestHandlers(t, newFakeStore(), &fakeDispatcher{})

		rec, _ := doPost(t, h.VerifyOTP, map[string]string{"phone_number": "9876543210", "otp": "123456"})

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("Mismatch", func(t *testing.T) {
		store := newFakeStore()
		store.otps["+919876543210"] = "123456"
		h := newTestHandlers(t, store, &fakeDispatcher{})

		rec, _ := doPost(t, h.VerifyOTP, map[string]string{"phone_number": "9876543210", "otp": "654321"})

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if store.otps["+919876543210"] != "123456" {
			t.Fatal("mismatch must not consume the OTP")
		}
	})

	t.Run("Success", func(t *testing.T) {
		store := newFakeStore()
		store.otps["+919876543210"] = "123456"
		h := newTestHandlers(t, store, &fakeDispatcher{})

		rec, body := doPost(t, h.VerifyOTP, map[string]string{"phone_number": "9876543210", "otp": "123456"})

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		verification, ok := body["verification"].(map[string]interface{})
		if !ok || verification["token"] == "" {
			t.Fatalf("expected verification token in response, got %v", body)
		}
	})
}

func TestVerifyNumber(t *testing.T) {
	t.Run("MissingFields", func(t *testing.T) {
		h := newTestHandlers(t, newFakeStore(), &fakeDispatcher{})

		rec, _ := doPost(t, h.VerifyNumber, map[string]string{"phone_number": "9876543210"})

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("InvalidCode", func(t *testing.T) {
		dispatcher := &fakeDispatcher{
			confirmFn: func(phone, code string) (bool, error) { return false, nil },
		}
		h := newTestHandlers(t, newFakeStore(), dispatcher)

		rec, body := doPost(t, h.VerifyNumber, map[string]string{
			"phone_number":      "9876543210",
			"verification_code": "000000",
		})

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if body["status"] != "error" {
			t.Fatalf("expected error status, got %v", body["status"])
		}
	})

	t.Run("SuccessPromotesPendingOTP", func(t *testing.T) {
		store := newFakeStore()
		store.pending["+919876543210"] = "123456"
		h := newTestHandlers(t, store, &fakeDispatcher{})

		rec, body := doPost(t, h.VerifyNumber, map[string]string{
			"phone_number":      "9876543210",
			"verification_code": "424242",
		})

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if body["otp_sent"] != true {
			t.Fatalf("expected otp_sent true, got %v", body["otp_sent"])
		}
		if store.otps["+919876543210"] != "123456" {
			t.Fatal("expected pending OTP promoted to active")
		}
	})
}

func TestResendOTP(t *testing.T) {
	t.Run("NotVerified", func(t *testing.T) {
		h := newTestHandlers(t, newFakeStore(), &fakeDispatcher{})

		rec, _ := doPost(t, h.ResendOTP, map[string]string{"phone_number": "9876543210"})

		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("Success", func(t *testing.T) {
		store := newFakeStore()
		store.verified["+919876543210"] = true
		h := newTestHandlers(t, store, &fakeDispatcher{})

		rec, body := doPost(t, h.ResendOTP, map[string]string{"phone_number": "9876543210"})

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if body["status"] != "success" {
			t.Fatalf("expected success status, got %v", body["status"])
		}
		if store.otps["+919876543210"] == "" {
			t.Fatal("expected a fresh active OTP in store")
		}
	})
}
