package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
)

type TransactionRepo struct {
	DB DBTX
}

const transactionColumns = `id, user_id, wallet_id, type, amount, currency, status, verification_status,
	utr_number, screenshot_url, verification_submitted_at, verification_expires_at,
	reference_id, informational, metadata, created_at, updated_at`

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (` + transactionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
RETURNING ` + transactionColumns

func (r *TransactionRepo) Create(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.VerificationStatus == "" {
		t.VerificationStatus = models.VerificationNone
	}
	if t.Currency == "" {
		t.Currency = models.DefaultCurrency
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		t.ID, t.UserID, t.WalletID, t.Type, t.Amount, t.Currency, t.Status, t.VerificationStatus,
		t.UTRNumber, t.ScreenshotURL, t.SubmittedAt, t.ExpiresAt,
		t.ReferenceID, t.Informational, metadata(t.Metadata), t.CreatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)

	if err != nil {
		return created, transactionWriteError(err)
	}

	return created, nil
}

const getTransactionByID = `-- name: GetTransactionByID
SELECT ` + transactionColumns + ` FROM transactions
WHERE id = $1
`

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID, forUpdate bool) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getTransactionByID+lockClause(forUpdate), id)
	return collectTransaction(rows)
}

const getTransactionByReference = `-- name: GetTransactionByReference
SELECT ` + transactionColumns + ` FROM transactions
WHERE reference_id = $1
`

func (r *TransactionRepo) GetByReference(ctx context.Context, referenceID uuid.UUID, forUpdate bool) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getTransactionByReference+lockClause(forUpdate), referenceID)
	return collectTransaction(rows)
}

const updateTransaction = `-- name: UpdateTransaction
UPDATE transactions
SET status = $2,
	verification_status = $3,
	utr_number = $4,
	screenshot_url = $5,
	verification_submitted_at = $6,
	verification_expires_at = $7,
	metadata = $8,
	updated_at = now()
WHERE id = $1
RETURNING ` + transactionColumns

func (r *TransactionRepo) Update(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, updateTransaction,
		t.ID, t.Status, t.VerificationStatus, t.UTRNumber, t.ScreenshotURL,
		t.SubmittedAt, t.ExpiresAt, metadata(t.Metadata),
	)
	updated, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, pgx.ErrNoRows):
		return updated, apperrors.ErrTransactionNotFound
	default:
		return updated, transactionWriteError(err)
	}
}

const listTransactionsByUser = `-- name: ListTransactionsByUser
SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = $1
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3
`

func (r *TransactionRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, listTransactionsByUser, userID, limit, offset)
	list, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return list, nil
}

const listPendingVerification = `-- name: ListPendingVerification
SELECT ` + transactionColumns + ` FROM transactions
WHERE verification_status = 'PENDING_VERIFICATION'
ORDER BY verification_submitted_at
LIMIT $1
`

func (r *TransactionRepo) ListPendingVerification(ctx context.Context, limit int) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, listPendingVerification, limit)
	list, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return list, nil
}

// Archived submissions live in metadata.verificationHistory as [{"utrNumber": ...}, ...]
const utrUsed = `-- name: UTRUsed
SELECT EXISTS (
	SELECT 1 FROM transactions
	WHERE id <> $2 AND (
		utr_number = $1::text
		OR metadata @> jsonb_build_object('verificationHistory', jsonb_build_array(jsonb_build_object('utrNumber', $1::text)))
	)
)
`

func (r *TransactionRepo) UTRUsed(ctx context.Context, utr string, exceptID uuid.UUID) (bool, error) {
	var used bool
	err := r.DB.QueryRow(ctx, utrUsed, utr, exceptID).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return used, nil
}

const sumCompleted = `-- name: SumCompleted
SELECT COALESCE(SUM(
	CASE WHEN type IN ('WITHDRAWAL', 'TRADE_BUY') THEN -amount ELSE amount END
), 0)
FROM transactions
WHERE wallet_id = $1 AND status = 'COMPLETED' AND NOT informational
`

func (r *TransactionRepo) SumCompleted(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.DB.QueryRow(ctx, sumCompleted, walletID).Scan(&sum)
	if err != nil {
		return sum, fmt.Errorf("db error: %w", err)
	}
	return sum, nil
}

func collectTransaction(rows pgx.Rows) (models.Transaction, error) {
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

func transactionWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case "transactions_utr_number_key":
			return apperrors.ErrUTRAlreadyUsed
		case "transactions_reference_id_key":
			return apperrors.ErrReferenceTaken
		}
	}

	return fmt.Errorf("db error: %w", err)
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.WalletID, &t.Type, &t.Amount, &t.Currency, &t.Status, &t.VerificationStatus,
		&t.UTRNumber, &t.ScreenshotURL, &t.SubmittedAt, &t.ExpiresAt,
		&t.ReferenceID, &t.Informational, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}
