package withdrawal

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
	"github.com/nkiryanov/walletledger/internal/repository/postgres"
	"github.com/nkiryanov/walletledger/internal/service/ledger"
	"github.com/nkiryanov/walletledger/internal/testutil"
)

var cfg = Config{MinAmount: decimal.NewFromInt(100), MaxAmount: decimal.NewFromInt(50000)}

type env struct {
	svc     *Service
	storage repository.Storage
	user    models.User
	admin   models.User
}

func newEnv(dbtx postgres.DBTX) env {
	l := logger.NewNoOpLogger()
	storage := postgres.NewStorage(dbtx)

	return env{
		svc:     New(cfg, storage, ledger.NewRecorder(l), l),
		storage: storage,
		user:    models.User{ID: uuid.New(), Role: models.RoleUser},
		admin:   models.User{ID: uuid.New(), Role: models.RoleAdmin},
	}
}

func (e env) fund(t *testing.T, amount int64) {
	t.Helper()

	_, _, err := ledger.NewRecorder(logger.NewNoOpLogger()).Record(t.Context(), e.storage, models.Transaction{
		UserID: e.user.ID,
		Type:   models.TransactionDeposit,
		Amount: decimal.NewFromInt(amount),
		Status: models.TransactionCompleted,
	})
	require.NoError(t, err)
}

func (e env) balance(t *testing.T) string {
	t.Helper()

	w, err := e.storage.Wallet().GetWallet(t.Context(), e.user.ID, false)
	require.NoError(t, err)
	sum, err := e.storage.Transaction().SumCompleted(t.Context(), w.ID)
	require.NoError(t, err)
	require.True(t, w.Balance.Equal(sum), "balance %s must equal ledger sum %s", w.Balance, sum)
	return w.Balance.StringFixed(2)
}

func (e env) shadow(t *testing.T, req models.WithdrawalRequest) models.Transaction {
	t.Helper()

	shadow, err := e.storage.Transaction().GetByReference(t.Context(), req.ID, false)
	require.NoError(t, err)
	return shadow
}

func TestService_Create(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("reserves amount", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			e := newEnv(tx)
			e.fund(t, 1000)

			req, err := e.svc.Create(t.Context(), e.user, "bank-1", decimal.NewFromInt(400))

			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalPending, req.Status)
			assert.Equal(t, "bank-1", req.WithdrawalMethodID)
			assert.Equal(t, "600.00", e.balance(t))

			shadow := e.shadow(t, req)
			assert.Equal(t, models.TransactionWithdrawal, shadow.Type)
			assert.Equal(t, models.TransactionPending, shadow.Status)
			assert.True(t, shadow.Informational)
			assert.Equal(t, KindShadow, shadow.Metadata[models.MetaKind])
		})
	})

	t.Run("more than balance", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			e := newEnv(tx)
			e.fund(t, 300)

			_, err := e.svc.Create(t.Context(), e.user, "bank-1", decimal.NewFromInt(400))

			require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)
			assert.Equal(t, "300.00", e.balance(t))
		})
	})

	t.Run("second request sees first reservation", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			e := newEnv(tx)
			e.fund(t, 1000)

			_, err := e.svc.Create(t.Context(), e.user, "bank-1", decimal.NewFromInt(700))
			require.NoError(t, err)

			_, err = e.svc.Create(t.Context(), e.user, "bank-1", decimal.NewFromInt(700))
			require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)
		})
	})

	t.Run("bad input", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			e := newEnv(tx)
			e.fund(t, 100000)

			cases := []struct {
				method string
				amount int64
				field  string
			}{
				{"", 500, "withdrawalMethodId"},
				{"bank-1", 0, "amount"},
				{"bank-1", 99, "amount"},
				{"bank-1", 50001, "amount"},
			}
			for _, tc := range cases {
				_, err := e.svc.Create(t.Context(), e.user, tc.method, decimal.NewFromInt(tc.amount))

				var fieldErr *apperrors.FieldError
				require.ErrorAs(t, err, &fieldErr)
				assert.Equal(t, tc.field, fieldErr.Field)
			}
		})
	})
}

func TestService_Review(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withRequest := func(t *testing.T, fn func(env, models.WithdrawalRequest)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			e := newEnv(tx)
			e.fund(t, 1000)
			req, err := e.svc.Create(t.Context(), e.user, "bank-1", decimal.NewFromInt(1000))
			require.NoError(t, err)
			fn(e, req)
		})
	}

	t.Run("reject returns reserved funds", func(t *testing.T) {
		withRequest(t, func(e env, req models.WithdrawalRequest) {
			got, err := e.svc.Review(t.Context(), e.admin, req.ID, models.WithdrawalRejected, "", "docs mismatch")

			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalRejected, got.Status)
			assert.Equal(t, "docs mismatch", *got.RejectionReason)
			assert.Equal(t, e.admin.ID, *got.ProcessedBy)
			assert.NotNil(t, got.ProcessedAt)
			assert.Equal(t, "1000.00", e.balance(t))
			assert.Equal(t, models.TransactionFailed, e.shadow(t, req).Status)

			entries, err := e.storage.Transaction().ListByUser(t.Context(), e.user.ID, 10, 0)
			require.NoError(t, err)
			var refunds int
			for _, entry := range entries {
				if entry.Metadata[models.MetaIsRefund] == true {
					refunds++
					assert.Equal(t, models.TransactionReward, entry.Type)
					assert.Equal(t, models.TransactionCompleted, entry.Status)
				}
			}
			assert.Equal(t, 1, refunds)
		})
	})

	t.Run("reject needs reason", func(t *testing.T) {
		withRequest(t, func(e env, req models.WithdrawalRequest) {
			_, err := e.svc.Review(t.Context(), e.admin, req.ID, models.WithdrawalRejected, "", " ")

			require.ErrorIs(t, err, apperrors.ErrReasonRequired)
		})
	})

	t.Run("approve debits once", func(t *testing.T) {
		withRequest(t, func(e env, req models.WithdrawalRequest) {
			got, err := e.svc.Review(t.Context(), e.admin, req.ID, models.WithdrawalApproved, "paid out", "")
			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalApproved, got.Status)
			assert.Equal(t, "paid out", *got.AdminNotes)

			_, err = e.svc.Review(t.Context(), e.admin, req.ID, models.WithdrawalApproved, "", "")
			require.ErrorIs(t, err, apperrors.ErrStateConflict)

			assert.Equal(t, "0.00", e.balance(t))
			assert.Equal(t, models.TransactionCompleted, e.shadow(t, req).Status)
		})
	})

	t.Run("full payout cycle", func(t *testing.T) {
		withRequest(t, func(e env, req models.WithdrawalRequest) {
			for _, status := range []models.WithdrawalStatus{
				models.WithdrawalApproved,
				models.WithdrawalProcessing,
				models.WithdrawalCompleted,
			} {
				got, err := e.svc.Review(t.Context(), e.admin, req.ID, status, "", "")
				require.NoError(t, err)
				assert.Equal(t, status, got.Status)
			}

			assert.Equal(t, "0.00", e.balance(t))
		})
	})

	t.Run("failed payout returns funds", func(t *testing.T) {
		withRequest(t, func(e env, req models.WithdrawalRequest) {
			_, err := e.svc.Review(t.Context(), e.admin, req.ID, models.WithdrawalApproved, "", "")
			require.NoError(t, err)

			_, err = e.svc.Review(t.Context(), e.admin, req.ID, models.WithdrawalFailed, "bank bounced", "")

			require.NoError(t, err)
			assert.Equal(t, "1000.00", e.balance(t))
		})
	})

	t.Run("terminal requests stay put", func(t *testing.T) {
		for _, terminal := range []models.WithdrawalStatus{models.WithdrawalCompleted, models.WithdrawalFailed} {
			withRequest(t, func(e env, req models.WithdrawalRequest) {
				_, err := e.svc.Review(t.Context(), e.admin, req.ID, models.WithdrawalApproved, "", "")
				require.NoError(t, err)
				_, err = e.svc.Review(t.Context(), e.admin, req.ID, terminal, "", "")
				require.NoError(t, err)
				before := e.balance(t)

				for _, status := range []models.WithdrawalStatus{
					models.WithdrawalApproved,
					models.WithdrawalRejected,
					models.WithdrawalProcessing,
					models.WithdrawalCompleted,
					models.WithdrawalFailed,
				} {
					_, err := e.svc.Review(t.Context(), e.admin, req.ID, status, "", "late")
					require.ErrorIs(t, err, apperrors.ErrTerminalState, "%s -> %s", terminal, status)
				}
				assert.Equal(t, before, e.balance(t))
			})
		}
	})

	t.Run("not reachable by review", func(t *testing.T) {
		withRequest(t, func(e env, req models.WithdrawalRequest) {
			_, err := e.svc.Review(t.Context(), e.admin, req.ID, models.WithdrawalPending, "", "")
			require.ErrorIs(t, err, apperrors.ErrTransitionNotAllowed)

			_, err = e.svc.Review(t.Context(), e.admin, req.ID, models.WithdrawalCompleted, "", "")
			require.ErrorIs(t, err, apperrors.ErrStateConflict)
		})
	})

	t.Run("only admin reviews", func(t *testing.T) {
		withRequest(t, func(e env, req models.WithdrawalRequest) {
			_, err := e.svc.Review(t.Context(), e.user, req.ID, models.WithdrawalApproved, "", "")

			require.ErrorIs(t, err, apperrors.ErrForbidden)
		})
	})

	t.Run("unknown request", func(t *testing.T) {
		withRequest(t, func(e env, _ models.WithdrawalRequest) {
			_, err := e.svc.Review(t.Context(), e.admin, uuid.New(), models.WithdrawalApproved, "", "")

			require.ErrorIs(t, err, apperrors.ErrWithdrawalNotFound)
		})
	})
}

func TestService_Review_Concurrent(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	e := newEnv(pg.Pool)
	e.fund(t, 1000)
	req, err := e.svc.Create(t.Context(), e.user, "bank-1", decimal.NewFromInt(1000))
	require.NoError(t, err)

	const reviewers = 5
	var (
		wg   sync.WaitGroup
		errs = make(chan error, reviewers)
	)
	for i := range reviewers {
		status := models.WithdrawalApproved
		if i%2 == 1 {
			status = models.WithdrawalRejected
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Review(t.Context(), e.admin, req.ID, status, "", "duplicate")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won int
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		// Late reviewers see either a moved row or an already rejected one
		require.True(t,
			errors.Is(err, apperrors.ErrStateConflict) || errors.Is(err, apperrors.ErrTerminalState),
			"unexpected error: %v", err,
		)
	}
	assert.Equal(t, 1, won)

	got, err := e.storage.Withdrawal().GetByID(t.Context(), req.ID)
	require.NoError(t, err)
	want := map[models.WithdrawalStatus]string{
		models.WithdrawalApproved: "0.00",
		models.WithdrawalRejected: "1000.00",
	}
	assert.Equal(t, want[got.Status], e.balance(t))
}

func TestService_List(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
		e := newEnv(tx)
		e.fund(t, 1000)
		first, err := e.svc.Create(t.Context(), e.user, "bank-1", decimal.NewFromInt(100))
		require.NoError(t, err)
		_, err = e.svc.Create(t.Context(), e.user, "bank-1", decimal.NewFromInt(200))
		require.NoError(t, err)
		_, err = e.svc.Review(t.Context(), e.admin, first.ID, models.WithdrawalApproved, "", "")
		require.NoError(t, err)

		mine, err := e.svc.ListForUser(t.Context(), e.user.ID)
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		approved, err := e.svc.ListByStatus(t.Context(), models.WithdrawalApproved, 10)
		require.NoError(t, err)
		require.Len(t, approved, 1)
		assert.Equal(t, first.ID, approved[0].ID)
	})
}
