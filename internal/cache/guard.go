// Package cache keeps short lived markers in Redis.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/walletledger/internal/logger"
)

const (
	webhookNamespace  = "webhook"
	DefaultWebhookTTL = 24 * time.Hour

	// Claimed but not yet confirmed deliveries expire quickly, so a crash
	// mid-processing blocks provider retries for this long at most
	DefaultInFlightTTL = time.Minute

	markerTimeout = 2 * time.Second
)

// Guard marks webhook deliveries as seen so retries of the same event are skipped
// Redis being down must not stop payments: every failure lets the delivery through,
// applying status is idempotent anyway
//
// A delivery is claimed with a short in-flight marker and confirmed once its
// effect is committed; only confirmed markers live for the full ttl
type Guard struct {
	client   redis.UniversalClient
	ttl      time.Duration
	inFlight time.Duration
	logger   logger.Logger
}

func NewGuard(client redis.UniversalClient, ttl time.Duration, l logger.Logger) *Guard {
	if ttl <= 0 {
		ttl = DefaultWebhookTTL
	}
	return &Guard{client: client, ttl: ttl, inFlight: min(DefaultInFlightTTL, ttl), logger: l}
}

// Claim returns true for the first delivery of provider/order/status
func (g *Guard) Claim(ctx context.Context, provider string, orderID string, status string) bool {
	ok, err := g.client.SetNX(ctx, key(provider, orderID, status), time.Now().Unix(), g.inFlight).Result()
	if err != nil {
		g.logger.Warn("webhook guard unavailable, letting delivery through", "error", err)
		return true
	}
	return ok
}

// Confirm keeps the claimed marker for the full ttl after the delivery is applied
func (g *Guard) Confirm(ctx context.Context, provider string, orderID string, status string) {
	ctx, cancel := markerContext(ctx)
	defer cancel()

	if err := g.client.Expire(ctx, key(provider, orderID, status), g.ttl).Err(); err != nil {
		g.logger.Warn("webhook guard confirm failed", "error", err)
	}
}

// Release forgets the delivery so the provider retry is processed again
// Works with the request context already cancelled by a provider hanging up
func (g *Guard) Release(ctx context.Context, provider string, orderID string, status string) {
	ctx, cancel := markerContext(ctx)
	defer cancel()

	if err := g.client.Del(ctx, key(provider, orderID, status)).Err(); err != nil {
		g.logger.Warn("webhook guard release failed", "error", err)
	}
}

func markerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), markerTimeout)
}

func key(provider string, orderID string, status string) string {
	return fmt.Sprintf("%s:%s:%s:%s", webhookNamespace, provider, orderID, strings.ToUpper(status))
}

// NewClient connects to a single redis node and checks it answers
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis is not reachable. Err: %w", err)
	}
	return client, nil
}

// NopGuard lets every delivery through; used when redis is not configured
type NopGuard struct{}

func (NopGuard) Claim(context.Context, string, string, string) bool { return true }
func (NopGuard) Confirm(context.Context, string, string, string)    {}
func (NopGuard) Release(context.Context, string, string, string)    {}
