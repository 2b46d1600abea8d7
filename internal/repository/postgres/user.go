package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
)

type UserRepo struct {
	DB DBTX
}

const syncUser = `-- name: SyncUser
INSERT INTO users (id, username, role)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET username = EXCLUDED.username, role = EXCLUDED.role
RETURNING id, created_at, username, role
`

func (r *UserRepo) Sync(ctx context.Context, user models.User) (models.User, error) {
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	rows, _ := r.DB.Query(ctx, syncUser, user.ID, user.Username, user.Role)
	u, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return u, apperrors.ErrUserAlreadyExists
		}

		return u, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}

const getUserByID = `-- name: GetUserByID
SELECT id, created_at, username, role FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Username, &u.Role)
	return u, err
}
