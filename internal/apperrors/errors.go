package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrForbidden         = errors.New("action is not allowed")
	ErrTokenMissing      = errors.New("access token is missing")
	ErrTokenInvalid      = errors.New("access token is invalid")

	ErrWalletNotFound      = errors.New("wallet not found")
	ErrBalanceInsufficient = errors.New("insufficient balance")
	ErrSelfAdjustment      = errors.New("admin can't adjust own balance")

	ErrTransactionNotFound = errors.New("transaction not found")
	ErrReferenceTaken      = errors.New("reference already has a ledger entry")
	ErrTerminalState       = errors.New("record is in terminal state")
	ErrStateConflict       = errors.New("record state changed concurrently")

	ErrPaymentNotFound      = errors.New("payment not found")
	ErrOrderIDTaken         = errors.New("order id already exists")
	ErrProviderNotAvailable = errors.New("payment provider is not available")
	ErrPaymentCreation      = errors.New("payment could not be created")
	ErrWebhookInvalid       = errors.New("webhook payload is invalid")

	ErrUTRAlreadyUsed       = errors.New("utr number already used")
	ErrAlreadySubmitted     = errors.New("verification already submitted")
	ErrVerificationExpired  = errors.New("verification expired")
	ErrNotPendingReview     = errors.New("transaction is not pending verification")
	ErrNotVerifiable        = errors.New("transaction can't be verified")
	ErrReasonRequired       = errors.New("reason is required")
	ErrScreenshotInvalid    = errors.New("screenshot is invalid")
	ErrWithdrawalNotFound   = errors.New("withdrawal request not found")
	ErrTransitionNotAllowed = errors.New("status transition is not allowed")
)

// FieldError reports a single invalid input field
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func NewFieldError(field, message string) *FieldError {
	return &FieldError{Field: field, Message: message}
}
