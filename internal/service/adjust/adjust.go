package adjust

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
	"github.com/nkiryanov/walletledger/internal/service/ledger"
)

// Adjustment actions
const (
	ActionAdd      = "add"
	ActionSubtract = "subtract"
	ActionSet      = "set"
)

type Result struct {
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal

	// Nil when the balance did not change
	Entry *models.Transaction
}

type Service struct {
	storage  repository.Storage
	recorder *ledger.Recorder
	logger   logger.Logger
}

func New(storage repository.Storage, recorder *ledger.Recorder, l logger.Logger) *Service {
	return &Service{storage: storage, recorder: recorder, logger: l}
}

// Adjust changes user balance on admin's behalf with a completed ledger entry
func (s *Service) Adjust(
	ctx context.Context,
	admin models.User,
	userID uuid.UUID,
	action string,
	amount decimal.Decimal,
	reason string,
) (Result, error) {
	if !admin.IsAdmin() {
		return Result{}, apperrors.ErrForbidden
	}
	if admin.ID == userID {
		return Result{}, apperrors.ErrSelfAdjustment
	}
	if amount.IsNegative() {
		return Result{}, apperrors.NewFieldError("amount", "must not be negative")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Result{}, apperrors.ErrReasonRequired
	}

	var res Result

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		if _, err := tx.User().GetUserByID(ctx, userID); err != nil {
			return err
		}
		if _, err := tx.Wallet().GetOrCreate(ctx, userID, models.DefaultCurrency); err != nil {
			return err
		}
		wallet, err := tx.Wallet().GetWallet(ctx, userID, true)
		if err != nil {
			return err
		}

		res.PreviousBalance = wallet.Balance
		switch action {
		case ActionAdd:
			res.NewBalance = wallet.Balance.Add(amount)
		case ActionSubtract:
			res.NewBalance = wallet.Balance.Sub(amount)
		case ActionSet:
			res.NewBalance = amount
		default:
			return apperrors.NewFieldError("action", "must be add, subtract or set")
		}

		if res.NewBalance.IsNegative() {
			return apperrors.ErrBalanceInsufficient
		}

		delta := res.NewBalance.Sub(res.PreviousBalance)
		if delta.IsZero() {
			return nil
		}

		typ := models.TransactionDeposit
		if delta.IsNegative() {
			typ = models.TransactionWithdrawal
		}

		entry, _, err := s.recorder.Record(ctx, tx, models.Transaction{
			UserID: userID,
			Type:   typ,
			Amount: delta.Abs(),
			Status: models.TransactionCompleted,
			Metadata: map[string]any{
				models.MetaKind:            "admin_adjustment",
				models.MetaAdminID:         admin.ID.String(),
				models.MetaReason:          reason,
				models.MetaPreviousBalance: res.PreviousBalance.StringFixed(2),
				models.MetaNewBalance:      res.NewBalance.StringFixed(2),
				"action":                   action,
			},
		})
		if err != nil {
			return err
		}
		res.Entry = &entry
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("balance adjusted",
		"adminId", admin.ID,
		"userId", userID,
		"action", action,
		"previousBalance", res.PreviousBalance,
		"newBalance", res.NewBalance,
	)
	return res, nil
}
