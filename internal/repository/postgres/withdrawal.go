package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
)

type WithdrawalRepo struct {
	DB DBTX
}

const withdrawalColumns = `id, user_id, withdrawal_method_id, amount, currency, status,
	admin_notes, rejection_reason, processed_by, processed_at, created_at, updated_at`

const createWithdrawal = `-- name: CreateWithdrawal
INSERT INTO withdrawal_requests (id, user_id, withdrawal_method_id, amount, currency, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING ` + withdrawalColumns

func (r *WithdrawalRepo) Create(ctx context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Status == "" {
		w.Status = models.WithdrawalPending
	}
	if w.Currency == "" {
		w.Currency = models.DefaultCurrency
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createWithdrawal,
		w.ID, w.UserID, w.WithdrawalMethodID, w.Amount, w.Currency, w.Status, w.CreatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToWithdrawal)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getWithdrawalByID = `-- name: GetWithdrawalByID
SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
WHERE id = $1
`

func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error) {
	rows, _ := r.DB.Query(ctx, getWithdrawalByID, id)
	w, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWithdrawalNotFound
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

// Conditional update: only one of concurrent reviewers wins
// processed_* are set by the first review only
const transitionWithdrawal = `-- name: TransitionWithdrawal
UPDATE withdrawal_requests
SET status = $3,
	admin_notes = COALESCE($4, admin_notes),
	rejection_reason = COALESCE($5, rejection_reason),
	processed_by = COALESCE(processed_by, $6),
	processed_at = CASE WHEN $6::uuid IS NULL THEN processed_at ELSE COALESCE(processed_at, now()) END,
	updated_at = now()
WHERE id = $1 AND status = ANY($2)
RETURNING ` + withdrawalColumns

func (r *WithdrawalRepo) Transition(
	ctx context.Context,
	id uuid.UUID,
	from []models.WithdrawalStatus,
	to repository.WithdrawalUpdate,
) (models.WithdrawalRequest, error) {
	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}

	rows, _ := r.DB.Query(ctx, transitionWithdrawal,
		id, statuses, to.Status, to.AdminNotes, to.RejectionReason, to.ProcessedBy,
	)
	w, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either the request does not exist or someone moved it already
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return w, getErr
		}
		return w, apperrors.ErrStateConflict
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

const listWithdrawalsByUser = `-- name: ListWithdrawalsByUser
SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
WHERE user_id = $1
ORDER BY created_at DESC
`

func (r *WithdrawalRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error) {
	rows, _ := r.DB.Query(ctx, listWithdrawalsByUser, userID)
	list, err := pgx.CollectRows(rows, rowToWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return list, nil
}

const listWithdrawalsByStatus = `-- name: ListWithdrawalsByStatus
SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
WHERE status = $1
ORDER BY created_at
LIMIT $2
`

func (r *WithdrawalRepo) ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit int) ([]models.WithdrawalRequest, error) {
	rows, _ := r.DB.Query(ctx, listWithdrawalsByStatus, status, limit)
	list, err := pgx.CollectRows(rows, rowToWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return list, nil
}

func rowToWithdrawal(row pgx.CollectableRow) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(
		&w.ID, &w.UserID, &w.WithdrawalMethodID, &w.Amount, &w.Currency, &w.Status,
		&w.AdminNotes, &w.RejectionReason, &w.ProcessedBy, &w.ProcessedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	return w, err
}
