// Package e2e runs the complete router against a real database.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/cache"
	"github.com/nkiryanov/walletledger/internal/handlers"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository/postgres"
	"github.com/nkiryanov/walletledger/internal/service/adjust"
	"github.com/nkiryanov/walletledger/internal/service/auth"
	"github.com/nkiryanov/walletledger/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/walletledger/internal/service/gateway"
	"github.com/nkiryanov/walletledger/internal/service/gateway/hosted"
	"github.com/nkiryanov/walletledger/internal/service/gateway/manual"
	"github.com/nkiryanov/walletledger/internal/service/ledger"
	"github.com/nkiryanov/walletledger/internal/service/notifier"
	"github.com/nkiryanov/walletledger/internal/service/orderid"
	"github.com/nkiryanov/walletledger/internal/service/payment"
	"github.com/nkiryanov/walletledger/internal/service/verification"
	"github.com/nkiryanov/walletledger/internal/service/wallet"
	"github.com/nkiryanov/walletledger/internal/service/withdrawal"
	"github.com/nkiryanov/walletledger/internal/testutil"
)

const (
	SecretKey     = "test-secret"
	WebhookSecret = "whsec-test"
)

// Server is a running router with helpers to call it
type Server struct {
	URL    string
	Tokens *tokenmanager.TokenManager

	mu          sync.Mutex
	screenshots map[string][]byte
}

// memStore keeps uploaded screenshots in memory
type memStore struct{ s *Server }

func (m memStore) Save(_ context.Context, userID uuid.UUID, data []byte) (string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	url := "https://cdn.example.com/deposits/" + userID.String() + "/" + uuid.NewString()
	m.s.screenshots[url] = data
	return url, nil
}

// Create db transaction and run server with that connection (one connection cause one transaction)
// The created transaction passed to inner function: so, you can safely use testutil.InTx with it
func ServeInTx(dbpool *pgxpool.Pool, t *testing.T, fn func(tx pgx.Tx, srv *Server)) {
	testutil.InTx(dbpool, t, func(tx pgx.Tx) {
		l := logger.NewNoOpLogger()
		storage := postgres.NewStorage(tx)

		tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: SecretKey})
		require.NoError(t, err, "token manager should be created without errors")

		as, err := auth.NewService(auth.Config{}, tokens, storage.User())
		require.NoError(t, err, "auth service starting error")

		registry, err := gateway.NewRegistry(
			gateway.RegistryConfig{Default: manual.Name},
			manual.New("https://wallet.example.com"),
			hosted.New(hosted.Config{CheckoutURL: "https://checkout.example.com/pay", WebhookSecret: WebhookSecret}),
		)
		require.NoError(t, err)

		hub := notifier.NewHub(l)
		recorder := ledger.NewRecorder(l)
		bounds := struct{ min, max decimal.Decimal }{decimal.NewFromInt(100), decimal.NewFromInt(100_000)}

		payments := payment.New(
			payment.Config{MinAmount: bounds.min, MaxAmount: bounds.max},
			storage, registry, orderid.New(storage.Payment(), l), recorder, hub, cache.NopGuard{}, l,
		)

		srv := &Server{Tokens: tokens, screenshots: make(map[string][]byte)}

		// Complete all together as router
		router := handlers.NewRouter(handlers.Services{
			Auth:         as,
			Payments:     payments,
			Wallets:      wallet.NewService(storage),
			Verification: verification.New(storage, recorder, hub, l),
			Withdrawals:  withdrawal.New(withdrawal.Config{MinAmount: bounds.min, MaxAmount: bounds.max}, storage, recorder, l),
			Adjuster:     adjust.New(storage, recorder, l),
			Screenshots:  memStore{s: srv},
			Notifier:     hub,
		}, l)

		// Run http server with the router in transaction
		httpSrv := httptest.NewServer(router)
		defer httpSrv.Close()
		srv.URL = httpSrv.URL

		fn(tx, srv)
	})
}

// NewUser returns fresh user with bearer token; the row is created on the first request
func (s *Server) NewUser(t *testing.T, role models.Role) (models.User, string) {
	t.Helper()

	id := uuid.New()
	user := models.User{ID: id, Username: "e2e-" + id.String()[:8], Role: role}
	token, err := s.Tokens.Issue(user)
	require.NoError(t, err)

	return user, token.Value
}

// Do sends request and returns status code with decoded JSON body
func (s *Server) Do(t *testing.T, method, path, token, contentType string, body io.Reader) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err, "failed to create request")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return send(t, req)
}

// JSON sends value encoded as JSON
func (s *Server) JSON(t *testing.T, method, path, token string, value any) (int, map[string]any) {
	t.Helper()

	b, err := json.Marshal(value)
	require.NoError(t, err)
	return s.Do(t, method, path, token, "application/json", bytes.NewReader(b))
}

// Webhook posts provider callback signed with the test secret
func (s *Server) Webhook(t *testing.T, provider string, value any) (int, map[string]any) {
	t.Helper()

	b, err := json.Marshal(value)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/webhooks/"+provider, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(hosted.SignatureHeader, gateway.Sign(WebhookSecret, b))

	return send(t, req)
}

// Balance returns wallet balance of the token owner
func (s *Server) Balance(t *testing.T, token string) string {
	t.Helper()

	code, body := s.Do(t, http.MethodGet, "/api/wallet", token, "", nil)
	require.Equalf(t, http.StatusOK, code, "balance request failed: %v", body)
	return body["balance"].(string)
}

func send(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to send request")
	defer resp.Body.Close() // nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	body := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoErrorf(t, json.Unmarshal(raw, &body), "response is not JSON: %s", raw)
	}
	return resp.StatusCode, body
}
