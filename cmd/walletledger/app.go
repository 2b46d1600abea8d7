package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/walletledger/internal/cache"
	"github.com/nkiryanov/walletledger/internal/db"
	"github.com/nkiryanov/walletledger/internal/handlers"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/repository/postgres"
	"github.com/nkiryanov/walletledger/internal/screenshot"
	"github.com/nkiryanov/walletledger/internal/service/adjust"
	"github.com/nkiryanov/walletledger/internal/service/auth"
	"github.com/nkiryanov/walletledger/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/walletledger/internal/service/gateway"
	"github.com/nkiryanov/walletledger/internal/service/gateway/hosted"
	"github.com/nkiryanov/walletledger/internal/service/gateway/manual"
	"github.com/nkiryanov/walletledger/internal/service/gateway/upi"
	"github.com/nkiryanov/walletledger/internal/service/ledger"
	"github.com/nkiryanov/walletledger/internal/service/notifier"
	"github.com/nkiryanov/walletledger/internal/service/orderid"
	"github.com/nkiryanov/walletledger/internal/service/payment"
	"github.com/nkiryanov/walletledger/internal/service/paymentpoller"
	"github.com/nkiryanov/walletledger/internal/service/verification"
	"github.com/nkiryanov/walletledger/internal/service/wallet"
	"github.com/nkiryanov/walletledger/internal/service/withdrawal"
)

// How long a webhook delivery is remembered by the guard
const webhookDedupTTL = 24 * time.Hour

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Poller     *paymentpoller.Poller
	Logger     logger.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app := &ServerApp{ListenAddr: c.ListenAddr, Logger: l, pool: pool}

	var guard interface {
		Claim(ctx context.Context, provider string, orderID string, status string) bool
		Confirm(ctx context.Context, provider string, orderID string, status string)
		Release(ctx context.Context, provider string, orderID string, status string)
	} = cache.NopGuard{}
	if c.RedisAddr != "" {
		app.redis, err = cache.NewClient(ctx, c.RedisAddr)
		if err != nil {
			app.Close()
			return nil, err
		}
		guard = cache.NewGuard(app.redis, webhookDedupTTL, l)
	} else {
		l.Warn("Redis is not configured, repeated webhooks are handled by status checks only")
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Payment providers
	publicURL := strings.TrimRight(c.PublicURL, "/")
	registry, err := gateway.NewRegistry(
		gateway.RegistryConfig{Default: c.DefaultProvider, Disabled: c.DisabledProviders},
		manual.New(publicURL),
		upi.New(upi.Config{
			APIURL:      c.UPIAPIURL,
			APIKey:      c.UPIAPIKey,
			CallbackURL: publicURL + "/api/webhooks/" + upi.Name,
		}, l.With("provider", upi.Name)),
		hosted.New(hosted.Config{CheckoutURL: c.HostedCheckoutURL, WebhookSecret: c.HostedWebhookSecret}),
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while building provider registry: %w", err)
	}
	l.Info("Payment providers active", "providers", registry.Names(), "default", registry.Default().Name())

	screenshots, err := screenshot.NewS3Store(ctx, screenshot.S3Config{Bucket: c.S3Bucket, Region: c.S3Region, Endpoint: c.S3Endpoint})
	if err != nil {
		app.Close()
		return nil, err
	}

	// Initialize services
	tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	authService, err := auth.NewService(auth.Config{}, tokens, storage.User())
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	hub := notifier.NewHub(l.WithGroup("notifier"))
	recorder := ledger.NewRecorder(l.WithGroup("ledger"))

	payments := payment.New(
		payment.Config{MinAmount: c.PaymentMin, MaxAmount: c.PaymentMax},
		storage,
		registry,
		orderid.New(storage.Payment(), l),
		recorder,
		hub,
		guard,
		l.WithGroup("payment"),
	)

	app.Poller = paymentpoller.New(paymentpoller.Config{Interval: c.PollInterval}, registry, payments, l.WithGroup("poller"))

	app.Handler = handlers.NewRouter(handlers.Services{
		Auth:         authService,
		Payments:     payments,
		Wallets:      wallet.NewService(storage),
		Verification: verification.New(storage, recorder, hub, l.WithGroup("verification")),
		Withdrawals: withdrawal.New(
			withdrawal.Config{MinAmount: c.WithdrawMin, MaxAmount: c.WithdrawMax},
			storage,
			recorder,
			l.WithGroup("withdrawal"),
		),
		Adjuster:    adjust.New(storage, recorder, l.WithGroup("adjust")),
		Screenshots: screenshots,
		Notifier:    hub,
	}, l)

	return app, nil
}

// Run starts poller and http server; both stop gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	pollerDone := s.Poller.Poll(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.Logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-pollerDone

	return err
}

// Close releases connections
func (s *ServerApp) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
		s.redis = nil
	}
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}
