package paymentpoller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/metrics"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/service/gateway"
)

type Consumer struct {
	countWorkers int

	// Provider may answer with rate-limit errors
	// Workers wait until the time is up
	waitUntil atomic.Int64

	providers providers
	payments  paymentService
	logger    logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Payment) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, in)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Payment) {
	for {
		waitUntil := time.Unix(c.waitUntil.Load(), 0)
		if waitUntil.After(time.Now()) {
			c.logger.Debug("Worker is waiting for rate limit to reset", "wait_until", waitUntil)

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(waitUntil)):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return

		case payment, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}
			c.check(ctx, payment)
		}
	}
}

func (c *Consumer) check(ctx context.Context, payment models.Payment) {
	provider, err := c.providers.Get(payment.Provider)
	if err != nil {
		c.logger.Warn("Provider of pending payment is not active", "provider", payment.Provider, "order_id", payment.ProviderOrderID)
		return
	}

	start := time.Now()
	status, err := provider.CheckStatus(ctx, payment.ProviderOrderID)
	metrics.ProviderCalls.WithLabelValues(provider.Name(), "status").Observe(time.Since(start).Seconds())

	var provErr *gateway.ProviderError

	switch {
	case err == nil:
		if status == models.PaymentPending {
			return
		}
		_, err = c.payments.ApplyStatus(ctx, payment.ProviderOrderID, status, map[string]any{"source": "poll"})
		if err != nil && !errors.Is(err, apperrors.ErrTerminalState) {
			c.logger.Error("Failed to apply polled status", "error", err, "order_id", payment.ProviderOrderID, "status", status)
		}

	case errors.As(err, &provErr):
		switch provErr.Code {
		case gateway.CodeRetryAfter:
			c.logger.Info("Rate limit exceeded, waiting", "provider", provider.Name(), "retry_after", provErr.RetryAfter)
			c.waitUntil.Store(time.Now().Add(provErr.RetryAfter).Unix())

		case gateway.CodeNotFound:
			// Checkout never opened by the user
			c.logger.Info("Provider doesn't know the order", "order_id", payment.ProviderOrderID)

		default:
			c.logger.Error("Unknown error from provider", "error", err, "order_id", payment.ProviderOrderID)
		}

	default:
		c.logger.Error("Unexpected error from provider", "error", err, "order_id", payment.ProviderOrderID)
	}
}
