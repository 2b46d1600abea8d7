package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/handlers/middleware"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/metrics"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/service/adjust"
	"github.com/nkiryanov/walletledger/internal/service/notifier"
	"github.com/nkiryanov/walletledger/internal/service/wallet"
)

// Services the router dispatches to
type Services struct {
	Auth         authService
	Payments     paymentService
	Wallets      walletService
	Verification verificationService
	Withdrawals  withdrawalService
	Adjuster     adjustService
	Screenshots  screenshotStore
	Notifier     subscriber
}

func NewRouter(s Services, l logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.LoggerMiddleware(l))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handleHealth())
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Providers sign their callbacks, bearer auth is not expected there
		r.Post("/webhooks/{provider}", handleWebhook(s.Payments, l))

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(s.Auth))

			r.Get("/me", handleUserMe())

			r.Post("/payments", handleCreatePayment(s.Payments, l))
			r.Get("/payments/{orderId}", handleGetPayment(s.Payments, l))
			r.Get("/payments/{orderId}/stream", handlePaymentStream(s.Payments, s.Notifier, l))

			r.Get("/wallet", handleWalletBalance(s.Wallets, l))
			r.Get("/wallet/transactions", handleWalletTransactions(s.Wallets, l))

			r.Post("/deposits/verification", handleSubmitVerification(s.Verification, s.Screenshots, l))

			r.Post("/withdrawals", handleCreateWithdrawal(s.Withdrawals, l))
			r.Get("/withdrawals", handleListWithdrawals(s.Withdrawals, l))

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)

				r.Get("/verifications", handleListVerifications(s.Verification, l))
				r.Post("/verifications/{transactionId}", handleReviewVerification(s.Verification, l))
				r.Get("/withdrawals", handleAdminListWithdrawals(s.Withdrawals, l))
				r.Patch("/withdrawals/{id}", handleReviewWithdrawal(s.Withdrawals, l))
				r.Post("/balance-adjustments", handleAdjustBalance(s.Adjuster, l))
				r.Get("/wallets/{userId}/audit", handleWalletAudit(s.Wallets, l))
			})
		})
	})

	return r
}

type authService interface {
	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type paymentService interface {
	// Has to return apperrors.ErrPaymentCreation if provider refused the payment
	Create(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, provider string) (models.Payment, error)

	// Has to return apperrors.ErrPaymentNotFound for payments of other users
	GetForUser(ctx context.Context, user models.User, orderID string) (models.Payment, error)

	HandleWebhook(ctx context.Context, provider string, header http.Header, body []byte) error
}

type walletService interface {
	Balance(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	Transactions(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]models.Transaction, error)
	Audit(ctx context.Context, userID uuid.UUID) (wallet.Audit, error)
}

type verificationService interface {
	Submit(ctx context.Context, user models.User, transactionID uuid.UUID, utr string, screenshotURL string) (models.Transaction, error)
	Review(ctx context.Context, admin models.User, transactionID uuid.UUID, action string, adminNotes string, rejectionReason string) (models.Transaction, error)
	ListPending(ctx context.Context, limit int) ([]models.Transaction, error)
}

type withdrawalService interface {
	Create(ctx context.Context, user models.User, methodID string, amount decimal.Decimal) (models.WithdrawalRequest, error)
	Review(ctx context.Context, admin models.User, id uuid.UUID, status models.WithdrawalStatus, adminNotes string, rejectionReason string) (models.WithdrawalRequest, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit int) ([]models.WithdrawalRequest, error)
}

type adjustService interface {
	Adjust(ctx context.Context, admin models.User, userID uuid.UUID, action string, amount decimal.Decimal, reason string) (adjust.Result, error)
}

type screenshotStore interface {
	// Save stores the image and returns its public url
	Save(ctx context.Context, userID uuid.UUID, data []byte) (string, error)
}

type subscriber interface {
	Subscribe(orderID string) *notifier.Subscription
}
