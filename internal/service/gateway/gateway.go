// Package gateway describes payment providers behind one canonical status vocabulary.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/models"
)

type CreateRequest struct {
	OrderID  string
	UserID   uuid.UUID
	Amount   decimal.Decimal
	Currency string
}

// CreateResult is either successful with PaymentURL or carries provider diagnostic
type CreateResult struct {
	Success    bool
	PaymentURL string
	OrderID    string

	Error      string
	Diagnostic map[string]any
}

// Canonical status reported by provider callback
type WebhookEvent struct {
	OrderID        string
	Status         models.PaymentStatus
	ProviderStatus string
	Raw            map[string]any
}

type Provider interface {
	Name() string

	// Whether provider credentials are present
	Configured() bool

	// Whether CheckStatus asks the provider; webhook-only providers always report PENDING
	Pollable() bool

	CreatePayment(ctx context.Context, req CreateRequest) (CreateResult, error)
	CheckStatus(ctx context.Context, orderID string) (models.PaymentStatus, error)

	// Verify callback authenticity and map it to canonical status
	// Must return apperrors.ErrWebhookInvalid for payloads not sent by the provider
	ParseWebhook(ctx context.Context, header http.Header, body []byte) (WebhookEvent, error)
}

const (
	CodeRetryAfter = "retry-after"
	CodeNotFound   = "not-found"
	CodeUnknown    = "unknown"
)

// ProviderError is returned by provider calls that did not reach a definite answer
type ProviderError struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("code: %s, retry_after: %s, error: %v", e.Code, e.RetryAfter, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(code string, retryAfter time.Duration, err error) *ProviderError {
	return &ProviderError{Code: code, RetryAfter: retryAfter, Err: err}
}

// Sign returns hex encoded HMAC-SHA256 of the body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signatures in constant time
func VerifySignature(secret string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
