package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/handlers/userctx"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
)

type transactionResponse struct {
	ID                 uuid.UUID                 `json:"id"`
	Type               models.TransactionType    `json:"type"`
	Amount             decimal.Decimal           `json:"amount"`
	Currency           string                    `json:"currency"`
	Status             models.TransactionStatus  `json:"status"`
	VerificationStatus models.VerificationStatus `json:"verificationStatus"`
	UTRNumber          *string                   `json:"utrNumber,omitempty"`
	ScreenshotURL      *string                   `json:"screenshotUrl,omitempty"`
	SubmittedAt        *time.Time                `json:"verificationSubmittedAt,omitempty"`
	ExpiresAt          *time.Time                `json:"verificationExpiresAt,omitempty"`
	ReferenceID        *uuid.UUID                `json:"referenceId,omitempty"`
	Informational      bool                      `json:"informational"`
	Metadata           map[string]any            `json:"metadata,omitempty"`
	CreatedAt          time.Time                 `json:"createdAt"`
	UpdatedAt          time.Time                 `json:"updatedAt"`
}

func newTransactionResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		ID:                 t.ID,
		Type:               t.Type,
		Amount:             t.Amount,
		Currency:           t.Currency,
		Status:             t.Status,
		VerificationStatus: t.VerificationStatus,
		UTRNumber:          t.UTRNumber,
		ScreenshotURL:      t.ScreenshotURL,
		SubmittedAt:        t.SubmittedAt,
		ExpiresAt:          t.ExpiresAt,
		ReferenceID:        t.ReferenceID,
		Informational:      t.Informational,
		Metadata:           t.Metadata,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func newTransactionsResponse(entries []models.Transaction) []transactionResponse {
	res := make([]transactionResponse, 0, len(entries))
	for _, t := range entries {
		res = append(res, newTransactionResponse(t))
	}
	return res
}

type walletResponse struct {
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func handleWalletBalance(wallets walletService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		wallet, err := wallets.Balance(r.Context(), user.ID)
		if err != nil {
			renderError(w, err, l, "get balance")
			return
		}

		render.JSON(w, walletResponse{Balance: wallet.Balance, Currency: wallet.Currency, UpdatedAt: wallet.UpdatedAt})
	}
}

func handleWalletTransactions(wallets walletService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		limit, okLimit := queryInt(r, "limit", 20)
		offset, okOffset := queryInt(r, "offset", 0)
		if !okLimit || !okOffset {
			render.ServiceError(w, "limit and offset must be non-negative numbers", http.StatusBadRequest)
			return
		}

		entries, err := wallets.Transactions(r.Context(), user.ID, limit, offset)
		if err != nil {
			renderError(w, err, l, "list transactions")
			return
		}

		render.JSON(w, newTransactionsResponse(entries))
	}
}

// handleWalletAudit compares stored balance with the ledger sum
func handleWalletAudit(wallets walletService, l logger.Logger) http.HandlerFunc {
	type response struct {
		UserID     uuid.UUID       `json:"userId"`
		Balance    decimal.Decimal `json:"balance"`
		LedgerSum  decimal.Decimal `json:"ledgerSum"`
		Consistent bool            `json:"consistent"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "userId"))
		if err != nil {
			render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
			return
		}

		audit, err := wallets.Audit(r.Context(), userID)
		if err != nil {
			renderError(w, err, l, "audit wallet")
			return
		}

		render.JSON(w, response{
			UserID:     userID,
			Balance:    audit.Wallet.Balance,
			LedgerSum:  audit.LedgerSum,
			Consistent: audit.Consistent(),
		})
	}
}

// queryInt reads optional non-negative integer query parameter
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
