package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/logger"
)

// renderError maps service errors onto status codes
// Unknown errors are logged and hidden behind 500
func renderError(w http.ResponseWriter, err error, l logger.Logger, op string) {
	var fieldErr *apperrors.FieldError
	if errors.As(err, &fieldErr) {
		render.FieldError(w, fieldErr)
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrForbidden):
		render.ServiceError(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrSelfAdjustment):
		render.ServiceError(w, "Admin can't adjust own balance", http.StatusForbidden)

	case errors.Is(err, apperrors.ErrUserNotFound),
		errors.Is(err, apperrors.ErrWalletNotFound),
		errors.Is(err, apperrors.ErrTransactionNotFound),
		errors.Is(err, apperrors.ErrPaymentNotFound),
		errors.Is(err, apperrors.ErrWithdrawalNotFound):
		render.ServiceError(w, capitalize(rootMessage(err)), http.StatusNotFound)

	case errors.Is(err, apperrors.ErrBalanceInsufficient):
		render.ServiceError(w, "Insufficient balance", http.StatusPaymentRequired)

	case errors.Is(err, apperrors.ErrReasonRequired):
		render.ServiceError(w, "Reason is required", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrProviderNotAvailable):
		render.ServiceError(w, "Payment provider is not available", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrTransitionNotAllowed):
		render.ServiceError(w, "Status transition is not allowed", http.StatusUnprocessableEntity)

	case errors.Is(err, apperrors.ErrUTRAlreadyUsed),
		errors.Is(err, apperrors.ErrAlreadySubmitted),
		errors.Is(err, apperrors.ErrVerificationExpired),
		errors.Is(err, apperrors.ErrNotPendingReview),
		errors.Is(err, apperrors.ErrNotVerifiable),
		errors.Is(err, apperrors.ErrTerminalState),
		errors.Is(err, apperrors.ErrStateConflict),
		errors.Is(err, apperrors.ErrReferenceTaken),
		errors.Is(err, apperrors.ErrOrderIDTaken):
		render.ServiceError(w, capitalize(rootMessage(err)), http.StatusConflict)

	case errors.Is(err, apperrors.ErrPaymentCreation):
		// Provider details stay in logs and payment metadata
		l.Warn(op+" failed", "error", err)
		render.ServiceError(w, "Payment provider is unavailable, try again later", http.StatusBadGateway)

	default:
		l.Error(op+" failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// rootMessage returns text of the innermost wrapped error
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
