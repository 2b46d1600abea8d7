package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository/postgres"
	"github.com/nkiryanov/walletledger/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/walletledger/internal/testutil"
)

func Test_Auth(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret-key", AccessTTL: time.Minute})
	require.NoError(t, err)

	// Begin new db transaction and create new AuthService
	// Rollback transaction when test stops
	withTx := func(t *testing.T, fn func(s *AuthService)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			s, err := NewService(Config{}, tokens, postgres.NewStorage(tx).User())
			require.NoError(t, err, "auth service could't be started")
			fn(s)
		})
	}

	request := func(header string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		return r
	}

	issue := func(t *testing.T, user models.User) string {
		issued, err := tokens.Issue(user)
		require.NoError(t, err)
		return issued.Value
	}

	t.Run("new auth service defaults", func(t *testing.T) {
		s, err := NewService(Config{}, tokens, postgres.NewStorage(pg.Pool).User())
		require.NoError(t, err, "auth service should be created without errors")

		require.Equal(t, defaultAccessHeaderName, s.accessHeaderName, "default access header name should be set")
		require.Equal(t, defaultAccessAuthScheme, s.accessAuthScheme, "default access auth")
	})

	t.Run("new auth service requires deps", func(t *testing.T) {
		_, err := NewService(Config{}, nil, nil)
		require.Error(t, err)
	})

	t.Run("bearer token syncs user", func(t *testing.T) {
		withTx(t, func(s *AuthService) {
			want := models.User{ID: uuid.New(), Username: "nkiryanov", Role: models.RoleAdmin}

			user, err := s.Auth(t.Context(), request("Bearer "+issue(t, want)))

			require.NoError(t, err)
			assert.Equal(t, want.ID, user.ID)
			assert.Equal(t, "nkiryanov", user.Username)
			assert.True(t, user.IsAdmin())
			assert.False(t, user.CreatedAt.IsZero(), "user has to be stored")
		})
	})

	t.Run("role change is picked up", func(t *testing.T) {
		withTx(t, func(s *AuthService) {
			id := uuid.New()
			_, err := s.Auth(t.Context(), request("Bearer "+issue(t, models.User{ID: id, Username: "bob", Role: models.RoleAdmin})))
			require.NoError(t, err)

			user, err := s.Auth(t.Context(), request("Bearer "+issue(t, models.User{ID: id, Username: "bob", Role: models.RoleUser})))

			require.NoError(t, err)
			assert.False(t, user.IsAdmin())
		})
	})

	t.Run("query token", func(t *testing.T) {
		withTx(t, func(s *AuthService) {
			token := issue(t, models.User{ID: uuid.New(), Username: "ws", Role: models.RoleUser})
			r := httptest.NewRequest(http.MethodGet, "/api/payments/ORD1/stream?access_token="+token, nil)

			_, err := s.Auth(t.Context(), r)

			require.NoError(t, err)
		})
	})

	t.Run("fails", func(t *testing.T) {
		withTx(t, func(s *AuthService) {
			_, err := s.Auth(t.Context(), request(""))
			require.ErrorIs(t, err, apperrors.ErrTokenMissing)

			_, err = s.Auth(t.Context(), request("Basic dXNlcjpwd2Q="))
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)

			_, err = s.Auth(t.Context(), request("Bearer "))
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)

			_, err = s.Auth(t.Context(), request("Bearer not-a-token"))
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})
	})
}
