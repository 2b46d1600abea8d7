package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
)

type WalletRepo struct {
	DB DBTX
}

// Insert wallet if not exists and return the one stored
const getOrCreateWallet = `-- name: GetOrCreateWallet
WITH insert_wallet AS (
	INSERT INTO wallets (id, user_id, balance, currency)
	VALUES ($1, $2, 0, $3)
	ON CONFLICT (user_id) DO NOTHING
	RETURNING id, user_id, balance, currency, created_at, updated_at
)
SELECT * FROM insert_wallet
UNION ALL
SELECT id, user_id, balance, currency, created_at, updated_at FROM wallets WHERE user_id = $2
LIMIT 1
`

func (r *WalletRepo) GetOrCreate(ctx context.Context, userID uuid.UUID, currency string) (models.Wallet, error) {
	if currency == "" {
		currency = models.DefaultCurrency
	}

	rows, _ := r.DB.Query(ctx, getOrCreateWallet, uuid.New(), userID, currency)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Wallet inserted concurrently is not visible to the statement snapshot, read it again
		rows, _ := r.DB.Query(ctx, getWalletByUserID, userID)
		wallet, err = pgx.CollectOneRow(rows, rowToWallet)
		if err != nil {
			return wallet, fmt.Errorf("db error: %w", err)
		}
		return wallet, nil
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

const getWalletByUserID = `-- name: GetWalletByUserID
SELECT id, user_id, balance, currency, created_at, updated_at FROM wallets
WHERE user_id = $1
`

func (r *WalletRepo) GetWallet(ctx context.Context, userID uuid.UUID, forUpdate bool) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, getWalletByUserID+lockClause(forUpdate), userID)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletNotFound
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

const applyWalletDelta = `-- name: ApplyWalletDelta
UPDATE wallets
SET balance = balance + $2, updated_at = now()
WHERE id = $1
RETURNING id, user_id, balance, currency, created_at, updated_at
`

func (r *WalletRepo) ApplyDelta(ctx context.Context, walletID uuid.UUID, delta decimal.Decimal) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, applyWalletDelta, walletID, delta)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletNotFound
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

func rowToWallet(row pgx.CollectableRow) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}
