package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/testutil"
)

func Test_UserRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("sync inserts user", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			user, err := r.Sync(t.Context(), models.User{ID: uuid.New(), Username: "alice", Role: models.RoleAdmin})

			require.NoError(t, err)
			assert.Equal(t, "alice", user.Username)
			assert.Equal(t, models.RoleAdmin, user.Role)
			assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Second, "CreatedAt should be recent")
		})
	})

	t.Run("sync defaults role to user", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			user, err := r.Sync(t.Context(), models.User{ID: uuid.New(), Username: "bob"})

			require.NoError(t, err)
			assert.Equal(t, models.RoleUser, user.Role)
		})
	})

	t.Run("sync updates existing", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			id := uuid.New()
			created, err := r.Sync(t.Context(), models.User{ID: id, Username: "carol", Role: models.RoleUser})
			require.NoError(t, err)

			updated, err := r.Sync(t.Context(), models.User{ID: id, Username: "carol", Role: models.RoleAdmin})

			require.NoError(t, err)
			assert.Equal(t, models.RoleAdmin, updated.Role)
			assert.Equal(t, created.CreatedAt, updated.CreatedAt)
		})
	})

	t.Run("username taken by other user", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			_, err := r.Sync(t.Context(), models.User{ID: uuid.New(), Username: "dave"})
			require.NoError(t, err)

			_, err = r.Sync(t.Context(), models.User{ID: uuid.New(), Username: "dave"})

			require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("get user by id", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.Sync(t.Context(), models.User{ID: uuid.New(), Username: "erin"})
			require.NoError(t, err)

			got, err := r.GetUserByID(t.Context(), created.ID)

			require.NoError(t, err)
			assert.Equal(t, created, got)
		})
	})

	t.Run("get user by id not found", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUserByID(t.Context(), uuid.New())

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})
	})
}
