package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/handlers/userctx"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
)

// Webhook payloads are small JSON documents
const maxWebhookBody = 64 << 10

type paymentResponse struct {
	ID         uuid.UUID            `json:"id"`
	OrderID    string               `json:"orderId"`
	Amount     decimal.Decimal      `json:"amount"`
	Currency   string               `json:"currency"`
	Status     models.PaymentStatus `json:"status"`
	Provider   string               `json:"provider"`
	PaymentURL string               `json:"paymentUrl,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

func newPaymentResponse(p models.Payment) paymentResponse {
	return paymentResponse{
		ID:         p.ID,
		OrderID:    p.ProviderOrderID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Status:     p.Status,
		Provider:   p.Provider,
		PaymentURL: p.PaymentURL,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func handleCreatePayment(payments paymentService, l logger.Logger) http.HandlerFunc {
	type request struct {
		Amount   decimal.Decimal `json:"amount"`
		Provider string          `json:"provider"`
	}
	type response struct {
		OrderID    string `json:"orderId"`
		PaymentURL string `json:"paymentUrl"`
		Provider   string `json:"provider"`
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

		p, err := payments.Create(r.Context(), user.ID, data.Amount, data.Provider)
		if err != nil {
			renderError(w, err, l, "create payment")
			return
		}

		render.JSONWithStatus(w, response{OrderID: p.ProviderOrderID, PaymentURL: p.PaymentURL, Provider: p.Provider}, http.StatusCreated)
	}
}

func handleGetPayment(payments paymentService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		p, err := payments.GetForUser(r.Context(), user, chi.URLParam(r, "orderId"))
		if err != nil {
			renderError(w, err, l, "get payment")
			return
		}

		render.JSON(w, newPaymentResponse(p))
	}
}

// handleWebhook answers 200 to everything the provider shouldn't redeliver
func handleWebhook(payments paymentService, l logger.Logger) http.HandlerFunc {
	type response struct {
		Received bool `json:"received"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			render.ServiceError(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		err = payments.HandleWebhook(r.Context(), provider, r.Header, body)

		switch {
		case err == nil:
			render.JSON(w, response{Received: true})
		case errors.Is(err, apperrors.ErrProviderNotAvailable):
			render.ServiceError(w, "Unknown provider", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrWebhookInvalid):
			render.ServiceError(w, "Invalid webhook", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrPaymentNotFound):
			render.ServiceError(w, "Payment not found", http.StatusNotFound)
		default:
			l.Error("Failed to handle webhook", "provider", provider, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
