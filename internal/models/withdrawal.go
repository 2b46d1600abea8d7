package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalApproved   WithdrawalStatus = "APPROVED"
	WithdrawalRejected   WithdrawalStatus = "REJECTED"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
)

// Statuses a request may be in before moving to the key status
var withdrawalSources = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalApproved:   {WithdrawalPending},
	WithdrawalRejected:   {WithdrawalPending},
	WithdrawalProcessing: {WithdrawalApproved},
	WithdrawalCompleted:  {WithdrawalApproved, WithdrawalProcessing},
	WithdrawalFailed:     {WithdrawalApproved, WithdrawalProcessing},
}

// WithdrawalSources returns statuses allowed to move to the target
// Nil means the target is not reachable by review
func WithdrawalSources(target WithdrawalStatus) []WithdrawalStatus {
	return withdrawalSources[target]
}

func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalRejected || s == WithdrawalCompleted || s == WithdrawalFailed
}

type WithdrawalRequest struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	WithdrawalMethodID string
	Amount             decimal.Decimal
	Currency           string
	Status             WithdrawalStatus
	AdminNotes         *string
	RejectionReason    *string
	ProcessedBy        *uuid.UUID
	ProcessedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
