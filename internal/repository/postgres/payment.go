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

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
)

type PaymentRepo struct {
	DB DBTX
}

const paymentColumns = `id, user_id, amount, currency, status, provider_order_id, provider,
	payment_url, metadata, created_at, updated_at`

const createPayment = `-- name: CreatePayment
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
RETURNING ` + paymentColumns

func (r *PaymentRepo) Create(ctx context.Context, p models.Payment) (models.Payment, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	if p.Currency == "" {
		p.Currency = models.DefaultCurrency
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createPayment,
		p.ID, p.UserID, p.Amount, p.Currency, p.Status, p.ProviderOrderID, p.Provider,
		p.PaymentURL, metadata(p.Metadata), p.CreatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToPayment)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, apperrors.ErrOrderIDTaken
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getPaymentByID = `-- name: GetPaymentByID
SELECT ` + paymentColumns + ` FROM payments
WHERE id = $1
`

func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID, forUpdate bool) (models.Payment, error) {
	rows, _ := r.DB.Query(ctx, getPaymentByID+lockClause(forUpdate), id)
	return collectPayment(rows)
}

const getPaymentByOrderID = `-- name: GetPaymentByOrderID
SELECT ` + paymentColumns + ` FROM payments
WHERE provider_order_id = $1
`

func (r *PaymentRepo) GetByOrderID(ctx context.Context, orderID string, forUpdate bool) (models.Payment, error) {
	rows, _ := r.DB.Query(ctx, getPaymentByOrderID+lockClause(forUpdate), orderID)
	return collectPayment(rows)
}

const updatePayment = `-- name: UpdatePayment
UPDATE payments
SET status = $2, payment_url = $3, metadata = $4, updated_at = now()
WHERE id = $1
RETURNING ` + paymentColumns

func (r *PaymentRepo) Update(ctx context.Context, p models.Payment) (models.Payment, error) {
	rows, _ := r.DB.Query(ctx, updatePayment, p.ID, p.Status, p.PaymentURL, metadata(p.Metadata))
	return collectPayment(rows)
}

const listPendingPayments = `-- name: ListPendingPayments
SELECT ` + paymentColumns + ` FROM payments
WHERE status = 'PENDING' AND provider = ANY($1)
ORDER BY created_at
LIMIT $2
`

func (r *PaymentRepo) ListPending(ctx context.Context, providers []string, limit int) ([]models.Payment, error) {
	rows, _ := r.DB.Query(ctx, listPendingPayments, providers, limit)
	list, err := pgx.CollectRows(rows, rowToPayment)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return list, nil
}

const orderIDExists = `-- name: OrderIDExists
SELECT EXISTS (
	SELECT 1 FROM payments
	WHERE provider_order_id = $1::text OR metadata @> jsonb_build_object('orderId', $1::text)
) OR EXISTS (
	SELECT 1 FROM transactions
	WHERE metadata @> jsonb_build_object('orderId', $1::text)
)
`

func (r *PaymentRepo) OrderIDExists(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, orderIDExists, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func collectPayment(rows pgx.Rows) (models.Payment, error) {
	p, err := pgx.CollectOneRow(rows, rowToPayment)

	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, pgx.ErrNoRows):
		return p, apperrors.ErrPaymentNotFound
	default:
		return p, fmt.Errorf("db error: %w", err)
	}
}

func rowToPayment(row pgx.CollectableRow) (models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Status, &p.ProviderOrderID, &p.Provider,
		&p.PaymentURL, &p.Metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
