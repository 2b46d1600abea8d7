package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Canonical payment status every provider vocabulary maps onto
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// IsTerminal reports statuses that close the status stream
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentCancelled
}

// CanMoveTo reports whether the transition is forward
// A completed payment may only be refunded later by the provider
func (s PaymentStatus) CanMoveTo(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next != PaymentPending
	case PaymentCompleted:
		return next == PaymentRefunded
	default:
		return false
	}
}

// Metadata keys of payments
const (
	MetaProviderError  = "providerError"
	MetaNeedsReview    = "needsReview"
	MetaProviderStatus = "providerStatus"
	MetaPromotedTo     = "transactionId"
)

type Payment struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Amount          decimal.Decimal
	Currency        string
	Status          PaymentStatus
	ProviderOrderID string
	Provider        string
	PaymentURL      string
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
