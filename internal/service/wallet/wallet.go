package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
)

const maxPageSize = 100

type WalletService struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *WalletService {
	return &WalletService{storage: storage}
}

// Balance returns user wallet, creating the empty one on first access
func (s *WalletService) Balance(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	w, err := s.storage.Wallet().GetOrCreate(ctx, userID, models.DefaultCurrency)
	if err != nil {
		return w, fmt.Errorf("can't get wallet. Err: %w", err)
	}
	return w, nil
}

// Transactions returns user ledger entries, newest first
func (s *WalletService) Transactions(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.storage.Transaction().ListByUser(ctx, userID, limit, offset)
}

type Audit struct {
	Wallet    models.Wallet
	LedgerSum decimal.Decimal
}

func (a Audit) Consistent() bool {
	return a.Wallet.Balance.Equal(a.LedgerSum)
}

// Audit compares stored balance with the sum of completed ledger entries
func (s *WalletService) Audit(ctx context.Context, userID uuid.UUID) (Audit, error) {
	var a Audit

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		a.Wallet, err = tx.Wallet().GetWallet(ctx, userID, true)
		if err != nil {
			return err
		}
		a.LedgerSum, err = tx.Transaction().SumCompleted(ctx, a.Wallet.ID)
		return err
	})
	if errors.Is(err, apperrors.ErrWalletNotFound) {
		return Audit{Wallet: models.Wallet{UserID: userID, Currency: models.DefaultCurrency}}, nil
	}

	return a, err
}
