package adjust

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/testutil"
	"github.com/nkiryanov/walletledger/tests/e2e"
)

func Test_BalanceAdjustment(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	e2e.ServeInTx(pg.Pool, t, func(tx pgx.Tx, srv *e2e.Server) {
		user, userToken := srv.NewUser(t, models.RoleUser)
		admin, adminToken := srv.NewUser(t, models.RoleAdmin)
		require.Equal(t, "0", srv.Balance(t, userToken))

		adjust := func(t *testing.T, userID string, action string, amount string) (int, map[string]any) {
			return srv.JSON(t, http.MethodPost, "/api/admin/balance-adjustments", adminToken, map[string]any{
				"userId": userID, "action": action, "amount": amount, "reason": "support ticket 42",
			})
		}

		t.Run("set then subtract", func(t *testing.T) {
			testutil.InTx(tx, t, func(_ pgx.Tx) {
				code, res := adjust(t, user.ID.String(), "set", "200")
				require.Equalf(t, http.StatusOK, code, "set failed: %v", res)
				require.Equal(t, "0", res["previousBalance"])
				require.Equal(t, "200", res["newBalance"])

				code, res = adjust(t, user.ID.String(), "subtract", "50")
				require.Equal(t, http.StatusOK, code, res)
				require.Equal(t, "150", srv.Balance(t, userToken))

				code, _ = adjust(t, user.ID.String(), "subtract", "500")
				require.Equal(t, http.StatusPaymentRequired, code, "balance never goes negative")
				require.Equal(t, "150", srv.Balance(t, userToken))

				code, audit := srv.Do(t, http.MethodGet, "/api/admin/wallets/"+user.ID.String()+"/audit", adminToken, "", nil)
				require.Equal(t, http.StatusOK, code)
				require.Equal(t, true, audit["consistent"])
			})
		})

		t.Run("unknown user", func(t *testing.T) {
			code, res := adjust(t, uuid.NewString(), "add", "10")
			require.Equal(t, http.StatusNotFound, code, res)
		})

		t.Run("own balance", func(t *testing.T) {
			code, _ := adjust(t, admin.ID.String(), "add", "10")
			require.Equal(t, http.StatusForbidden, code)
		})

		t.Run("users can't adjust", func(t *testing.T) {
			code, _ := srv.JSON(t, http.MethodPost, "/api/admin/balance-adjustments", userToken, map[string]any{
				"userId": user.ID.String(), "action": "add", "amount": "10", "reason": "me",
			})
			require.Equal(t, http.StatusForbidden, code)
		})
	})
}
