package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTradeBuy   TransactionType = "TRADE_BUY"
	TransactionTradeSell  TransactionType = "TRADE_SELL"
	TransactionReward     TransactionType = "REWARD"
	TransactionRefund     TransactionType = "REFUND"
)

// Sign returns +1 for entries crediting the wallet and -1 for debiting ones
func (t TransactionType) Sign() decimal.Decimal {
	switch t {
	case TransactionWithdrawal, TransactionTradeBuy:
		return decimal.NewFromInt(-1)
	default:
		return decimal.NewFromInt(1)
	}
}

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "PENDING"
	TransactionProcessing TransactionStatus = "PROCESSING"
	TransactionCompleted  TransactionStatus = "COMPLETED"
	TransactionFailed     TransactionStatus = "FAILED"
	TransactionCancelled  TransactionStatus = "CANCELLED"
)

func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionCompleted || s == TransactionFailed || s == TransactionCancelled
}

type VerificationStatus string

const (
	VerificationNone    VerificationStatus = "NONE"
	VerificationPending VerificationStatus = "PENDING_VERIFICATION"
	VerificationOK      VerificationStatus = "VERIFIED"
	VerificationFailed  VerificationStatus = "REJECTED"
)

var utrPattern = regexp.MustCompile(`^\d{12}$`)

// ValidUTR reports whether s looks like bank UTR: exactly 12 digits
func ValidUTR(s string) bool {
	return utrPattern.MatchString(s)
}

// Verification window for manual deposits
const VerificationTTL = 7 * 24 * time.Hour

// Metadata keys shared by workflows
const (
	MetaIsRefund            = "isRefund"
	MetaKind                = "kind"
	MetaWithdrawalRequestID = "withdrawalRequestId"
	MetaVerificationHistory = "verificationHistory"
	MetaOrderID             = "orderId"
	MetaPaymentID           = "paymentId"
	MetaAdminID             = "adminId"
	MetaReason              = "reason"
	MetaPreviousBalance     = "previousBalance"
	MetaNewBalance          = "newBalance"
	MetaAdminNotes          = "adminNotes"
	MetaRejectionReason     = "rejectionReason"
	MetaReviewedBy          = "reviewedBy"
	MetaReviewedAt          = "reviewedAt"
)

// Ledger entry
type Transaction struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	WalletID           uuid.UUID
	Type               TransactionType
	Amount             decimal.Decimal
	Currency           string
	Status             TransactionStatus
	VerificationStatus VerificationStatus
	UTRNumber          *string
	ScreenshotURL      *string
	SubmittedAt        *time.Time
	ExpiresAt          *time.Time
	ReferenceID        *uuid.UUID

	// Informational entries record an event and never touch the balance
	Informational bool

	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Signed amount the entry contributes to the wallet balance once completed
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Informational {
		return decimal.Zero
	}
	return t.Amount.Mul(t.Type.Sign())
}

// VerificationExpired reports whether a pending submission is past its window
func (t Transaction) VerificationExpired(now time.Time) bool {
	return t.VerificationStatus == VerificationPending && t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
