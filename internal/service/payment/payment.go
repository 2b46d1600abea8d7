// Package payment drives gateway payments from creation to a final ledger effect.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/metrics"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
	"github.com/nkiryanov/walletledger/internal/service/gateway"
	"github.com/nkiryanov/walletledger/internal/service/ledger"
	"github.com/nkiryanov/walletledger/internal/service/orderid"
)

const defaultOrderIDRetries = 5

type Config struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal

	// Collision retries before the random order id fallback
	OrderIDRetries int
}

type orderIDs interface {
	EnsureUnique(ctx context.Context, maxRetries int) (string, error)
}

type publisher interface {
	Publish(orderID string, status models.PaymentStatus)
}

type webhookGuard interface {
	Claim(ctx context.Context, provider string, orderID string, status string) bool
	Confirm(ctx context.Context, provider string, orderID string, status string)
	Release(ctx context.Context, provider string, orderID string, status string)
}

type Service struct {
	storage   repository.Storage
	providers *gateway.Registry
	orderIDs  orderIDs
	recorder  *ledger.Recorder
	notifier  publisher
	guard     webhookGuard
	cfg       Config
	logger    logger.Logger
}

func New(
	cfg Config,
	storage repository.Storage,
	providers *gateway.Registry,
	orderIDs orderIDs,
	recorder *ledger.Recorder,
	notifier publisher,
	guard webhookGuard,
	l logger.Logger,
) *Service {
	if cfg.OrderIDRetries <= 0 {
		cfg.OrderIDRetries = defaultOrderIDRetries
	}

	return &Service{
		storage:   storage,
		providers: providers,
		orderIDs:  orderIDs,
		recorder:  recorder,
		notifier:  notifier,
		guard:     guard,
		cfg:       cfg,
		logger:    l,
	}
}

// Create registers the payment and asks the provider for a redirect url
// Provider failures are stored in payment metadata, the caller gets apperrors.ErrPaymentCreation
func (s *Service) Create(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, providerName string) (models.Payment, error) {
	if !amount.IsPositive() || amount.LessThan(s.cfg.MinAmount) || (s.cfg.MaxAmount.IsPositive() && amount.GreaterThan(s.cfg.MaxAmount)) {
		return models.Payment{}, apperrors.NewFieldError("amount",
			fmt.Sprintf("must be between %s and %s", s.cfg.MinAmount.StringFixed(2), s.cfg.MaxAmount.StringFixed(2)))
	}

	provider, err := s.providers.Get(providerName)
	if err != nil {
		return models.Payment{}, err
	}

	p, err := s.insert(ctx, models.Payment{
		UserID:   userID,
		Amount:   amount,
		Currency: models.DefaultCurrency,
		Status:   models.PaymentPending,
		Provider: provider.Name(),
		Metadata: map[string]any{},
	})
	if err != nil {
		return p, err
	}

	start := time.Now()
	result, err := provider.CreatePayment(ctx, gateway.CreateRequest{
		OrderID:  p.ProviderOrderID,
		UserID:   userID,
		Amount:   amount,
		Currency: p.Currency,
	})
	metrics.ProviderCalls.WithLabelValues(provider.Name(), "create").Observe(time.Since(start).Seconds())

	if err != nil || !result.Success {
		diagnostic := map[string]any{"error": result.Error}
		for k, v := range result.Diagnostic {
			diagnostic[k] = v
		}
		if err != nil {
			diagnostic["error"] = err.Error()
		}

		p.Status = models.PaymentFailed
		p.Metadata[models.MetaProviderError] = diagnostic
		if _, updErr := s.storage.Payment().Update(ctx, p); updErr != nil {
			s.logger.Error("failed to store provider diagnostic", "orderId", p.ProviderOrderID, "error", updErr)
		}

		s.logger.Error("payment creation failed", "orderId", p.ProviderOrderID, "provider", provider.Name(), "diagnostic", diagnostic)
		return p, apperrors.ErrPaymentCreation
	}

	p.PaymentURL = result.PaymentURL
	p, err = s.storage.Payment().Update(ctx, p)
	if err != nil {
		return p, fmt.Errorf("error while storing payment url: %w", err)
	}

	s.logger.Info("payment created", "orderId", p.ProviderOrderID, "provider", p.Provider, "userId", userID, "amount", amount)
	return p, nil
}

// Insert with minted order id; concurrent writer taking the same id gets the random fallback
func (s *Service) insert(ctx context.Context, p models.Payment) (models.Payment, error) {
	orderID, err := s.orderIDs.EnsureUnique(ctx, s.cfg.OrderIDRetries)
	if err != nil {
		return p, fmt.Errorf("error while minting order id: %w", err)
	}
	p.ProviderOrderID = orderID

	created, err := s.storage.Payment().Create(ctx, p)
	if errors.Is(err, apperrors.ErrOrderIDTaken) {
		metrics.OrderIDCollisions.Inc()
		p.ProviderOrderID = orderid.Fallback()
		created, err = s.storage.Payment().Create(ctx, p)
	}
	if err != nil {
		return created, fmt.Errorf("error while creating payment: %w", err)
	}

	return created, nil
}

// ApplyStatus moves the payment to canonical status in one atomic unit
// Same status again is a no-op, backward moves fail with apperrors.ErrTerminalState
func (s *Service) ApplyStatus(ctx context.Context, orderID string, status models.PaymentStatus, raw map[string]any) (models.Payment, error) {
	return s.apply(ctx, orderID, "", status, raw)
}

func (s *Service) apply(ctx context.Context, orderID string, providerName string, status models.PaymentStatus, raw map[string]any) (models.Payment, error) {
	var (
		p       models.Payment
		changed bool
	)

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		p, err = tx.Payment().GetByOrderID(ctx, orderID, true)
		if err != nil {
			return err
		}
		if providerName != "" && p.Provider != providerName {
			return fmt.Errorf("order %s belongs to %s: %w", orderID, p.Provider, apperrors.ErrWebhookInvalid)
		}

		if p.Status == status {
			return nil
		}
		if !p.Status.CanMoveTo(status) {
			return fmt.Errorf("payment %s is %s, can't move to %s: %w", orderID, p.Status, status, apperrors.ErrTerminalState)
		}

		if p.Metadata == nil {
			p.Metadata = map[string]any{}
		}
		if raw != nil {
			p.Metadata[models.MetaProviderStatus] = raw
		}

		switch status {
		case models.PaymentCompleted:
			if err := s.credit(ctx, tx, &p); err != nil {
				return err
			}
		case models.PaymentFailed, models.PaymentCancelled:
			if err := s.close(ctx, tx, p, status); err != nil {
				return err
			}
		case models.PaymentRefunded:
			// Refund of credited funds needs a human decision
			p.Metadata[models.MetaNeedsReview] = true
		}

		p.Status = status
		p, err = tx.Payment().Update(ctx, p)
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return p, err
	}

	if changed {
		s.logger.Info("payment status applied", "orderId", orderID, "status", status)
		s.notifier.Publish(orderID, status)
	}

	return p, nil
}

// Credit the deposit once: get or create the entry referencing the payment and complete it
func (s *Service) credit(ctx context.Context, tx repository.Storage, p *models.Payment) error {
	entry, err := tx.Transaction().GetByReference(ctx, p.ID, true)

	switch {
	case errors.Is(err, apperrors.ErrTransactionNotFound):
		_, _, err = s.recorder.Record(ctx, tx, DepositEntry(*p, models.TransactionCompleted))
		return err
	case err != nil:
		return err
	case entry.Status == models.TransactionCompleted:
		return nil
	case entry.Status.IsTerminal():
		// Entry closed by verification review; don't credit behind admin's back
		p.Metadata[models.MetaNeedsReview] = true
		s.logger.Warn("completed payment has closed ledger entry", "orderId", p.ProviderOrderID, "entryId", entry.ID, "entryStatus", entry.Status)
		return nil
	default:
		if entry.VerificationStatus == models.VerificationPending {
			entry.VerificationStatus = models.VerificationOK
		}
		_, _, err = s.recorder.Complete(ctx, tx, entry)
		return err
	}
}

func (s *Service) close(ctx context.Context, tx repository.Storage, p models.Payment, status models.PaymentStatus) error {
	entry, err := tx.Transaction().GetByReference(ctx, p.ID, true)

	switch {
	case errors.Is(err, apperrors.ErrTransactionNotFound):
		return nil
	case err != nil:
		return err
	case entry.Status.IsTerminal():
		return nil
	default:
		_, err = s.recorder.Close(ctx, tx, entry, models.TransactionStatus(status))
		return err
	}
}

// HandleWebhook verifies and applies provider callback
// Safe to retry: repeated deliveries are skipped by the guard and applying status is idempotent
func (s *Service) HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) error {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		metrics.Webhooks.WithLabelValues(providerName, metrics.WebhookInvalid).Inc()
		return err
	}

	ev, err := provider.ParseWebhook(ctx, header, body)
	if err != nil {
		metrics.Webhooks.WithLabelValues(providerName, metrics.WebhookInvalid).Inc()
		s.logger.Warn("webhook rejected", "provider", providerName, "error", err)
		return err
	}

	if ev.Status == models.PaymentPending {
		metrics.Webhooks.WithLabelValues(providerName, metrics.WebhookApplied).Inc()
		return nil
	}

	status := string(ev.Status)
	if !s.guard.Claim(ctx, providerName, ev.OrderID, status) {
		metrics.Webhooks.WithLabelValues(providerName, metrics.WebhookDuplicate).Inc()
		s.logger.Debug("duplicate webhook skipped", "provider", providerName, "orderId", ev.OrderID, "status", status)
		return nil
	}

	raw := ev.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	raw["providerStatus"] = ev.ProviderStatus

	_, err = s.apply(ctx, ev.OrderID, providerName, ev.Status, raw)

	switch {
	case err == nil:
		s.guard.Confirm(ctx, providerName, ev.OrderID, status)
		metrics.Webhooks.WithLabelValues(providerName, metrics.WebhookApplied).Inc()
		return nil
	case errors.Is(err, apperrors.ErrTerminalState):
		s.guard.Confirm(ctx, providerName, ev.OrderID, status)
		// Late event for a settled payment; nothing to do, and the provider must stop retrying
		metrics.Webhooks.WithLabelValues(providerName, metrics.WebhookDuplicate).Inc()
		s.logger.Warn("stale webhook ignored", "provider", providerName, "orderId", ev.OrderID, "error", err)
		return nil
	case errors.Is(err, apperrors.ErrPaymentNotFound):
		s.guard.Release(ctx, providerName, ev.OrderID, status)
		metrics.Webhooks.WithLabelValues(providerName, metrics.WebhookUnknownOrder).Inc()
		return err
	case errors.Is(err, apperrors.ErrWebhookInvalid):
		s.guard.Release(ctx, providerName, ev.OrderID, status)
		metrics.Webhooks.WithLabelValues(providerName, metrics.WebhookInvalid).Inc()
		return err
	default:
		s.guard.Release(ctx, providerName, ev.OrderID, status)
		metrics.Webhooks.WithLabelValues(providerName, metrics.WebhookFailed).Inc()
		s.logger.Error("webhook processing failed", "provider", providerName, "orderId", ev.OrderID, "error", err)
		return err
	}
}

// Status returns current payment state by order id
func (s *Service) Status(ctx context.Context, orderID string) (models.Payment, error) {
	return s.storage.Payment().GetByOrderID(ctx, orderID, false)
}

// GetForUser returns the payment if it belongs to the user
func (s *Service) GetForUser(ctx context.Context, user models.User, orderID string) (models.Payment, error) {
	p, err := s.Status(ctx, orderID)
	if err != nil {
		return p, err
	}
	if p.UserID != user.ID && !user.IsAdmin() {
		return models.Payment{}, apperrors.ErrPaymentNotFound
	}
	return p, nil
}

// ListPending returns pending payments of the providers, oldest first
func (s *Service) ListPending(ctx context.Context, providers []string, limit int) ([]models.Payment, error) {
	return s.storage.Payment().ListPending(ctx, providers, limit)
}

// Providers returns names of active providers
func (s *Service) Providers() []string {
	return s.providers.Names()
}

// DepositEntry builds the ledger entry representing the payment
func DepositEntry(p models.Payment, status models.TransactionStatus) models.Transaction {
	ref := p.ID
	return models.Transaction{
		UserID:      p.UserID,
		Type:        models.TransactionDeposit,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Status:      status,
		ReferenceID: &ref,
		Metadata: map[string]any{
			models.MetaOrderID:   p.ProviderOrderID,
			models.MetaPaymentID: p.ID.String(),
			"provider":           p.Provider,
		},
	}
}
