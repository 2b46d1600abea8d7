// Package ledger writes ledger entries together with the balance change they justify.
// Every function expects the storage of an already opened atomic unit.
package ledger

import (
	"context"
	"fmt"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/metrics"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
)

type Recorder struct {
	logger logger.Logger
}

func NewRecorder(l logger.Logger) *Recorder {
	return &Recorder{logger: l}
}

// Record appends the entry
// Completed balance-affecting entries move the wallet balance in the same unit
func (r *Recorder) Record(ctx context.Context, s repository.Storage, entry models.Transaction) (models.Transaction, models.Wallet, error) {
	wallet, err := r.wallet(ctx, s, entry)
	if err != nil {
		return entry, wallet, err
	}
	entry.WalletID = wallet.ID
	entry.Currency = wallet.Currency

	created, err := s.Transaction().Create(ctx, entry)
	if err != nil {
		return created, wallet, fmt.Errorf("error while writing ledger entry: %w", err)
	}

	if created.Status == models.TransactionCompleted && !created.Informational {
		wallet, err = s.Wallet().ApplyDelta(ctx, wallet.ID, created.SignedAmount())
		if err != nil {
			return created, wallet, fmt.Errorf("error while applying balance delta: %w", err)
		}
	}

	metrics.LedgerEntries.WithLabelValues(string(created.Type), string(created.Status)).Inc()
	r.logger.Info("ledger entry recorded",
		"id", created.ID,
		"userId", created.UserID,
		"type", created.Type,
		"status", created.Status,
		"amount", created.Amount,
		"balance", wallet.Balance,
	)

	return created, wallet, nil
}

// Complete moves a pending entry to COMPLETED and applies its amount exactly once
// The entry has to be locked by the caller
func (r *Recorder) Complete(ctx context.Context, s repository.Storage, entry models.Transaction) (models.Transaction, models.Wallet, error) {
	if entry.Status.IsTerminal() {
		return entry, models.Wallet{}, apperrors.ErrTerminalState
	}

	wallet, err := r.wallet(ctx, s, entry)
	if err != nil {
		return entry, wallet, err
	}

	entry.Status = models.TransactionCompleted
	updated, err := s.Transaction().Update(ctx, entry)
	if err != nil {
		return updated, wallet, fmt.Errorf("error while completing ledger entry: %w", err)
	}

	if !updated.Informational {
		wallet, err = s.Wallet().ApplyDelta(ctx, wallet.ID, updated.SignedAmount())
		if err != nil {
			return updated, wallet, fmt.Errorf("error while applying balance delta: %w", err)
		}
	}

	metrics.LedgerEntries.WithLabelValues(string(updated.Type), string(updated.Status)).Inc()
	r.logger.Info("ledger entry completed",
		"id", updated.ID,
		"userId", updated.UserID,
		"type", updated.Type,
		"amount", updated.Amount,
		"balance", wallet.Balance,
	)

	return updated, wallet, nil
}

// Close moves a pending entry to FAILED or CANCELLED, the balance is untouched
func (r *Recorder) Close(ctx context.Context, s repository.Storage, entry models.Transaction, status models.TransactionStatus) (models.Transaction, error) {
	if status != models.TransactionFailed && status != models.TransactionCancelled {
		return entry, fmt.Errorf("entry can't be closed with status %s", status)
	}
	if entry.Status.IsTerminal() {
		return entry, apperrors.ErrTerminalState
	}

	entry.Status = status
	updated, err := s.Transaction().Update(ctx, entry)
	if err != nil {
		return updated, fmt.Errorf("error while closing ledger entry: %w", err)
	}

	metrics.LedgerEntries.WithLabelValues(string(updated.Type), string(updated.Status)).Inc()
	r.logger.Info("ledger entry closed", "id", updated.ID, "type", updated.Type, "status", updated.Status)

	return updated, nil
}

func (r *Recorder) wallet(ctx context.Context, s repository.Storage, entry models.Transaction) (models.Wallet, error) {
	if _, err := s.Wallet().GetOrCreate(ctx, entry.UserID, entry.Currency); err != nil {
		return models.Wallet{}, fmt.Errorf("error while getting wallet: %w", err)
	}

	// Row lock serializes balance changes of the wallet till the unit ends
	wallet, err := s.Wallet().GetWallet(ctx, entry.UserID, true)
	if err != nil {
		return wallet, fmt.Errorf("error while locking wallet: %w", err)
	}

	return wallet, nil
}
