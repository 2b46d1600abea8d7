package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/handlers/userctx"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
)

type withdrawalResponse struct {
	ID                 uuid.UUID               `json:"id"`
	UserID             uuid.UUID               `json:"userId"`
	WithdrawalMethodID string                  `json:"withdrawalMethodId"`
	Amount             decimal.Decimal         `json:"amount"`
	Currency           string                  `json:"currency"`
	Status             models.WithdrawalStatus `json:"status"`
	AdminNotes         *string                 `json:"adminNotes,omitempty"`
	RejectionReason    *string                 `json:"rejectionReason,omitempty"`
	ProcessedBy        *uuid.UUID              `json:"processedBy,omitempty"`
	ProcessedAt        *time.Time              `json:"processedAt,omitempty"`
	CreatedAt          time.Time               `json:"createdAt"`
}

func newWithdrawalResponse(req models.WithdrawalRequest) withdrawalResponse {
	return withdrawalResponse{
		ID:                 req.ID,
		UserID:             req.UserID,
		WithdrawalMethodID: req.WithdrawalMethodID,
		Amount:             req.Amount,
		Currency:           req.Currency,
		Status:             req.Status,
		AdminNotes:         req.AdminNotes,
		RejectionReason:    req.RejectionReason,
		ProcessedBy:        req.ProcessedBy,
		ProcessedAt:        req.ProcessedAt,
		CreatedAt:          req.CreatedAt,
	}
}

func newWithdrawalsResponse(reqs []models.WithdrawalRequest) []withdrawalResponse {
	res := make([]withdrawalResponse, 0, len(reqs))
	for _, req := range reqs {
		res = append(res, newWithdrawalResponse(req))
	}
	return res
}

func handleCreateWithdrawal(withdrawals withdrawalService, l logger.Logger) http.HandlerFunc {
	type request struct {
		WithdrawalMethodID string          `json:"withdrawalMethodId" validate:"required"`
		Amount             decimal.Decimal `json:"amount"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		req, err := withdrawals.Create(r.Context(), user, data.WithdrawalMethodID, data.Amount)
		if err != nil {
			renderError(w, err, l, "create withdrawal")
			return
		}

		render.JSONWithStatus(w, newWithdrawalResponse(req), http.StatusCreated)
	}
}

func handleListWithdrawals(withdrawals withdrawalService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		reqs, err := withdrawals.ListForUser(r.Context(), user.ID)
		if err != nil {
			renderError(w, err, l, "list withdrawals")
			return
		}

		render.JSON(w, newWithdrawalsResponse(reqs))
	}
}

func handleAdminListWithdrawals(withdrawals withdrawalService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := models.WithdrawalStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = models.WithdrawalPending
		}
		limit, ok := queryInt(r, "limit", 50)
		if !ok {
			render.ServiceError(w, "limit must be non-negative number", http.StatusBadRequest)
			return
		}

		reqs, err := withdrawals.ListByStatus(r.Context(), status, limit)
		if err != nil {
			renderError(w, err, l, "list withdrawals")
			return
		}

		render.JSON(w, newWithdrawalsResponse(reqs))
	}
}

func handleReviewWithdrawal(withdrawals withdrawalService, l logger.Logger) http.HandlerFunc {
	type request struct {
		Status          string `json:"status" validate:"required,oneof=APPROVED REJECTED PROCESSING COMPLETED FAILED"`
		AdminNotes      string `json:"adminNotes"`
		RejectionReason string `json:"rejectionReason"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		admin, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			render.ServiceError(w, "Withdrawal request not found", http.StatusNotFound)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		req, err := withdrawals.Review(r.Context(), admin, id, models.WithdrawalStatus(data.Status), data.AdminNotes, data.RejectionReason)
		if err != nil {
			renderError(w, err, l, "review withdrawal")
			return
		}

		render.JSON(w, newWithdrawalResponse(req))
	}
}
