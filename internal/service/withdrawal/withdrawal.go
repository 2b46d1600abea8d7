// Package withdrawal runs withdrawal requests from creation through admin review.
//
// Funds are reserved at creation: a WITHDRAWAL entry debits the wallet under the wallet row lock,
// so concurrent requests can't overdraw it. The request is mirrored by an informational shadow
// entry which follows the review outcome. Rejection and payout failure return the reserved
// amount with a compensating credit.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
	"github.com/nkiryanov/walletledger/internal/service/ledger"
)

// Values of metadata.kind on entries written by the workflow
const (
	KindShadow       = "withdrawal_shadow"
	KindReservation  = "withdrawal_reservation"
	KindCompensation = "withdrawal_compensation"
)

type Config struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

type Service struct {
	cfg      Config
	storage  repository.Storage
	recorder *ledger.Recorder
	logger   logger.Logger
}

func New(cfg Config, storage repository.Storage, recorder *ledger.Recorder, l logger.Logger) *Service {
	return &Service{
		cfg:      cfg,
		storage:  storage,
		recorder: recorder,
		logger:   l,
	}
}

// Create opens the request and reserves the amount on the wallet
func (s *Service) Create(ctx context.Context, user models.User, methodID string, amount decimal.Decimal) (models.WithdrawalRequest, error) {
	methodID = strings.TrimSpace(methodID)
	if methodID == "" {
		return models.WithdrawalRequest{}, apperrors.NewFieldError("withdrawalMethodId", "is required")
	}
	if !amount.IsPositive() || amount.LessThan(s.cfg.MinAmount) || (s.cfg.MaxAmount.IsPositive() && amount.GreaterThan(s.cfg.MaxAmount)) {
		return models.WithdrawalRequest{}, apperrors.NewFieldError("amount",
			fmt.Sprintf("must be between %s and %s", s.cfg.MinAmount.StringFixed(2), s.cfg.MaxAmount.StringFixed(2)))
	}

	var req models.WithdrawalRequest

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		if _, err := tx.Wallet().GetOrCreate(ctx, user.ID, models.DefaultCurrency); err != nil {
			return err
		}
		wallet, err := tx.Wallet().GetWallet(ctx, user.ID, true)
		if err != nil {
			return err
		}
		if wallet.Balance.LessThan(amount) {
			return apperrors.ErrBalanceInsufficient
		}

		req, err = tx.Withdrawal().Create(ctx, models.WithdrawalRequest{
			UserID:             user.ID,
			WithdrawalMethodID: methodID,
			Amount:             amount,
			Currency:           wallet.Currency,
			Status:             models.WithdrawalPending,
		})
		if err != nil {
			return err
		}

		ref := req.ID
		_, _, err = s.recorder.Record(ctx, tx, models.Transaction{
			UserID:        user.ID,
			Type:          models.TransactionWithdrawal,
			Amount:        amount,
			Status:        models.TransactionPending,
			ReferenceID:   &ref,
			Informational: true,
			Metadata:      entryMeta(req, KindShadow),
		})
		if err != nil {
			return err
		}

		_, _, err = s.recorder.Record(ctx, tx, models.Transaction{
			UserID:   user.ID,
			Type:     models.TransactionWithdrawal,
			Amount:   amount,
			Status:   models.TransactionCompleted,
			Metadata: entryMeta(req, KindReservation),
		})
		return err
	})
	if err != nil {
		return req, err
	}

	s.logger.Info("withdrawal requested", "id", req.ID, "userId", user.ID, "amount", amount)
	return req, nil
}

// Review moves the request to status
// Lost race against another reviewer returns apperrors.ErrStateConflict
func (s *Service) Review(
	ctx context.Context,
	admin models.User,
	id uuid.UUID,
	status models.WithdrawalStatus,
	adminNotes string,
	rejectionReason string,
) (models.WithdrawalRequest, error) {
	if !admin.IsAdmin() {
		return models.WithdrawalRequest{}, apperrors.ErrForbidden
	}

	sources := models.WithdrawalSources(status)
	if sources == nil {
		return models.WithdrawalRequest{}, apperrors.ErrTransitionNotAllowed
	}

	rejectionReason = strings.TrimSpace(rejectionReason)
	if status == models.WithdrawalRejected && rejectionReason == "" {
		return models.WithdrawalRequest{}, apperrors.ErrReasonRequired
	}

	update := repository.WithdrawalUpdate{
		Status:      status,
		ProcessedBy: &admin.ID,
	}
	if adminNotes != "" {
		update.AdminNotes = &adminNotes
	}
	if rejectionReason != "" {
		update.RejectionReason = &rejectionReason
	}

	var req models.WithdrawalRequest

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		current, err := tx.Withdrawal().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return fmt.Errorf("withdrawal %s is %s: %w", id, current.Status, apperrors.ErrTerminalState)
		}

		req, err = tx.Withdrawal().Transition(ctx, id, sources, update)
		if err != nil {
			return err
		}

		switch status {
		case models.WithdrawalApproved:
			return s.settleShadow(ctx, tx, req, models.TransactionCompleted)

		case models.WithdrawalRejected:
			if err := s.settleShadow(ctx, tx, req, models.TransactionFailed); err != nil {
				return err
			}
			return s.giveBack(ctx, tx, req, models.TransactionReward)

		case models.WithdrawalFailed:
			return s.giveBack(ctx, tx, req, models.TransactionRefund)
		}
		return nil
	})
	if err != nil {
		return req, err
	}

	s.logger.Info("withdrawal reviewed", "id", id, "adminId", admin.ID, "status", status)
	return req, nil
}

func (s *Service) settleShadow(ctx context.Context, tx repository.Storage, req models.WithdrawalRequest, status models.TransactionStatus) error {
	shadow, err := tx.Transaction().GetByReference(ctx, req.ID, true)
	if err != nil {
		return fmt.Errorf("error while getting shadow entry: %w", err)
	}

	if status == models.TransactionCompleted {
		_, _, err = s.recorder.Complete(ctx, tx, shadow)
	} else {
		_, err = s.recorder.Close(ctx, tx, shadow, status)
	}
	if errors.Is(err, apperrors.ErrTerminalState) {
		return fmt.Errorf("shadow entry of %s already settled: %w", req.ID, apperrors.ErrStateConflict)
	}
	return err
}

// Return reserved amount with a completed credit marked as refund
func (s *Service) giveBack(ctx context.Context, tx repository.Storage, req models.WithdrawalRequest, typ models.TransactionType) error {
	meta := entryMeta(req, KindCompensation)
	meta[models.MetaIsRefund] = true
	if req.RejectionReason != nil {
		meta[models.MetaRejectionReason] = *req.RejectionReason
	}

	_, _, err := s.recorder.Record(ctx, tx, models.Transaction{
		UserID:   req.UserID,
		Type:     typ,
		Amount:   req.Amount,
		Status:   models.TransactionCompleted,
		Metadata: meta,
	})
	return err
}

func entryMeta(req models.WithdrawalRequest, kind string) map[string]any {
	return map[string]any{
		models.MetaKind:                kind,
		models.MetaWithdrawalRequestID: req.ID.String(),
		"withdrawalMethodId":           req.WithdrawalMethodID,
	}
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error) {
	return s.storage.Withdrawal().ListByUser(ctx, userID)
}

func (s *Service) ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit int) ([]models.WithdrawalRequest, error) {
	return s.storage.Withdrawal().ListByStatus(ctx, status, limit)
}
