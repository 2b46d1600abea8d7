// Package verification drives manual deposit proof: the user submits a bank UTR with a
// screenshot, an admin approves or rejects it.
package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
	"github.com/nkiryanov/walletledger/internal/service/ledger"
	"github.com/nkiryanov/walletledger/internal/service/payment"
)

// Review actions
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Outcomes of archived submissions
const (
	outcomeExpired  = "expired"
	outcomeRejected = "rejected"
)

type publisher interface {
	Publish(orderID string, status models.PaymentStatus)
}

type Service struct {
	storage  repository.Storage
	recorder *ledger.Recorder
	notifier publisher
	now      func() time.Time
	logger   logger.Logger
}

type Option func(*Service)

// WithClock replaces time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(storage repository.Storage, recorder *ledger.Recorder, notifier publisher, l logger.Logger, opts ...Option) *Service {
	s := &Service{
		storage:  storage,
		recorder: recorder,
		notifier: notifier,
		now:      time.Now,
		logger:   l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit attaches the proof to the pending deposit and starts the review window
// transactionID may be id of the ledger entry or of a pending payment not yet promoted into one
func (s *Service) Submit(ctx context.Context, user models.User, transactionID uuid.UUID, utr string, screenshotURL string) (models.Transaction, error) {
	if !models.ValidUTR(utr) {
		return models.Transaction{}, apperrors.NewFieldError("utrNumber", "must be exactly 12 digits")
	}
	if screenshotURL == "" {
		return models.Transaction{}, apperrors.NewFieldError("screenshot", "is required")
	}

	var entry models.Transaction

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		entry, err = s.lockEntry(ctx, tx, user, transactionID)
		if err != nil {
			return err
		}

		now := s.now().UTC()

		// Entry's own UTR may be reused only when the previous attempt ran out of time
		exceptID := uuid.Nil

		switch {
		case entry.VerificationStatus == models.VerificationNone:
		case entry.VerificationExpired(now):
			archive(&entry, outcomeExpired, now)
			exceptID = entry.ID
		case entry.VerificationStatus == models.VerificationPending:
			return apperrors.ErrAlreadySubmitted
		case entry.VerificationStatus == models.VerificationFailed:
			archive(&entry, outcomeRejected, now)
			entry.Status = models.TransactionPending
		default:
			return apperrors.ErrNotVerifiable
		}

		if entry.Status != models.TransactionPending {
			return apperrors.ErrNotVerifiable
		}

		used, err := tx.Transaction().UTRUsed(ctx, utr, exceptID)
		if err != nil {
			return err
		}
		if used {
			return apperrors.ErrUTRAlreadyUsed
		}

		expiresAt := now.Add(models.VerificationTTL)
		entry.VerificationStatus = models.VerificationPending
		entry.UTRNumber = &utr
		entry.ScreenshotURL = &screenshotURL
		entry.SubmittedAt = &now
		entry.ExpiresAt = &expiresAt

		entry, err = tx.Transaction().Update(ctx, entry)
		return err
	})
	if err != nil {
		return entry, err
	}

	s.logger.Info("verification submitted", "transactionId", entry.ID, "userId", user.ID, "utr", utr, "expiresAt", entry.ExpiresAt)
	return entry, nil
}

// Lock the deposit entry, promoting a pending payment into one on first touch
func (s *Service) lockEntry(ctx context.Context, tx repository.Storage, user models.User, id uuid.UUID) (models.Transaction, error) {
	entry, err := tx.Transaction().GetByID(ctx, id, true)
	if errors.Is(err, apperrors.ErrTransactionNotFound) {
		entry, err = s.promote(ctx, tx, user, id)
	}
	if err != nil {
		return entry, err
	}

	if entry.UserID != user.ID {
		return models.Transaction{}, apperrors.ErrTransactionNotFound
	}
	if entry.Type != models.TransactionDeposit {
		return entry, apperrors.ErrNotVerifiable
	}

	return entry, nil
}

func (s *Service) promote(ctx context.Context, tx repository.Storage, user models.User, paymentID uuid.UUID) (models.Transaction, error) {
	p, err := tx.Payment().GetByID(ctx, paymentID, true)
	if errors.Is(err, apperrors.ErrPaymentNotFound) {
		return models.Transaction{}, apperrors.ErrTransactionNotFound
	}
	if err != nil {
		return models.Transaction{}, err
	}
	if p.UserID != user.ID {
		return models.Transaction{}, apperrors.ErrTransactionNotFound
	}

	entry, err := tx.Transaction().GetByReference(ctx, p.ID, true)
	if err == nil || !errors.Is(err, apperrors.ErrTransactionNotFound) {
		return entry, err
	}

	if p.Status != models.PaymentPending {
		return models.Transaction{}, apperrors.ErrNotVerifiable
	}

	entry, _, err = s.recorder.Record(ctx, tx, payment.DepositEntry(p, models.TransactionPending))
	if err != nil {
		return entry, err
	}

	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	p.Metadata[models.MetaPromotedTo] = entry.ID.String()
	if _, err := tx.Payment().Update(ctx, p); err != nil {
		return entry, err
	}

	s.logger.Info("payment promoted into ledger entry", "paymentId", p.ID, "orderId", p.ProviderOrderID, "transactionId", entry.ID)
	return entry, nil
}

// Move current submission into metadata history and reset the entry to NONE
func archive(entry *models.Transaction, outcome string, now time.Time) {
	record := map[string]any{
		"outcome":    outcome,
		"archivedAt": now.Format(time.RFC3339),
	}
	if entry.UTRNumber != nil {
		record["utrNumber"] = *entry.UTRNumber
	}
	if entry.ScreenshotURL != nil {
		record["screenshotUrl"] = *entry.ScreenshotURL
	}
	if entry.SubmittedAt != nil {
		record["submittedAt"] = entry.SubmittedAt.Format(time.RFC3339)
	}
	if entry.ExpiresAt != nil {
		record["expiresAt"] = entry.ExpiresAt.Format(time.RFC3339)
	}

	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	if outcome == outcomeRejected {
		record[models.MetaRejectionReason] = entry.Metadata[models.MetaRejectionReason]
		delete(entry.Metadata, models.MetaRejectionReason)
	}

	history, _ := entry.Metadata[models.MetaVerificationHistory].([]any)
	entry.Metadata[models.MetaVerificationHistory] = append(history, record)

	entry.VerificationStatus = models.VerificationNone
	entry.UTRNumber = nil
	entry.ScreenshotURL = nil
	entry.SubmittedAt = nil
	entry.ExpiresAt = nil
}

// Review applies admin decision to the pending submission
// Approve credits the wallet once and settles the linked payment, reject closes the entry as FAILED
func (s *Service) Review(ctx context.Context, admin models.User, transactionID uuid.UUID, action string, adminNotes string, rejectionReason string) (models.Transaction, error) {
	if !admin.IsAdmin() {
		return models.Transaction{}, apperrors.ErrForbidden
	}

	rejectionReason = strings.TrimSpace(rejectionReason)
	switch action {
	case ActionApprove:
	case ActionReject:
		if rejectionReason == "" {
			return models.Transaction{}, apperrors.ErrReasonRequired
		}
	default:
		return models.Transaction{}, apperrors.NewFieldError("action", "must be approve or reject")
	}

	var (
		entry   models.Transaction
		orderID string
		status  models.PaymentStatus
	)

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		entry, err = tx.Transaction().GetByID(ctx, transactionID, true)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if entry.VerificationStatus != models.VerificationPending {
			return apperrors.ErrNotPendingReview
		}
		if entry.VerificationExpired(now) {
			return apperrors.ErrVerificationExpired
		}

		if entry.Metadata == nil {
			entry.Metadata = map[string]any{}
		}
		entry.Metadata[models.MetaReviewedBy] = admin.ID.String()
		entry.Metadata[models.MetaReviewedAt] = now.Format(time.RFC3339)
		if adminNotes != "" {
			entry.Metadata[models.MetaAdminNotes] = adminNotes
		}

		if action == ActionReject {
			entry.VerificationStatus = models.VerificationFailed
			entry.Metadata[models.MetaRejectionReason] = rejectionReason
			entry, err = s.recorder.Close(ctx, tx, entry, models.TransactionFailed)
			if err != nil {
				return err
			}

			// Payment stays pending: the user may resubmit with another UTR
			orderID, status, err = linkedPayment(ctx, tx, entry)
			return err
		}

		entry.VerificationStatus = models.VerificationOK
		entry, _, err = s.recorder.Complete(ctx, tx, entry)
		if err != nil {
			return err
		}

		orderID, err = settlePayment(ctx, tx, entry)
		status = models.PaymentCompleted
		return err
	})
	if err != nil {
		return entry, err
	}

	s.logger.Info("verification reviewed", "transactionId", entry.ID, "adminId", admin.ID, "action", action)
	if orderID != "" {
		s.notifier.Publish(orderID, status)
	}

	return entry, nil
}

// Mark the payment behind the entry COMPLETED; returns its order id when it changed
func settlePayment(ctx context.Context, tx repository.Storage, entry models.Transaction) (string, error) {
	if entry.ReferenceID == nil {
		return "", nil
	}

	p, err := tx.Payment().GetByID(ctx, *entry.ReferenceID, true)
	if errors.Is(err, apperrors.ErrPaymentNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !p.Status.CanMoveTo(models.PaymentCompleted) {
		return "", nil
	}

	p.Status = models.PaymentCompleted
	if _, err := tx.Payment().Update(ctx, p); err != nil {
		return "", fmt.Errorf("error while settling payment: %w", err)
	}
	return p.ProviderOrderID, nil
}

// Order id and status of the payment behind the entry, empty when there is none
func linkedPayment(ctx context.Context, tx repository.Storage, entry models.Transaction) (string, models.PaymentStatus, error) {
	if entry.ReferenceID == nil {
		return "", "", nil
	}

	p, err := tx.Payment().GetByID(ctx, *entry.ReferenceID, false)
	if errors.Is(err, apperrors.ErrPaymentNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	return p.ProviderOrderID, p.Status, nil
}

// ListPending returns submissions waiting for admin review, oldest first
func (s *Service) ListPending(ctx context.Context, limit int) ([]models.Transaction, error) {
	return s.storage.Transaction().ListPendingVerification(ctx, limit)
}
