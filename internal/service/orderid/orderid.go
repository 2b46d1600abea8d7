// Package orderid mints external payment order ids.
// Uniqueness is checked optimistically against stored payments, there is no reservation table.
package orderid

import (
	"context"
	"crypto/rand"
	"math/big"
	mrand "math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/metrics"
)

const (
	Prefix = "ORD"

	alphabet       = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	segmentLen     = 4
	counterLen     = 4
	defaultBackoff = 10 * time.Millisecond
	maxBackoff     = time.Second
)

var counterSpace = uint64(36 * 36 * 36 * 36) // 36^counterLen

// Checker reports whether an order id is already used anywhere
type Checker interface {
	OrderIDExists(ctx context.Context, orderID string) (bool, error)
}

type Generator struct {
	checker Checker
	logger  logger.Logger
	backoff time.Duration

	lastMs  atomic.Int64
	counter atomic.Uint64
}

type Option func(*Generator)

// WithBackoff sets the first retry delay, it doubles on every next attempt
func WithBackoff(d time.Duration) Option {
	return func(g *Generator) {
		g.backoff = d
	}
}

func New(checker Checker, l logger.Logger, opts ...Option) *Generator {
	g := &Generator{
		checker: checker,
		logger:  l,
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate composes the prefix, a monotonic ms timestamp, a counter and two random segments
// All parts are uppercase base36
func (g *Generator) Generate() string {
	ts := g.tick()
	n := g.counter.Add(1) % counterSpace

	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteString(strings.ToUpper(strconv.FormatInt(ts, 36)))
	b.WriteString(pad(strings.ToUpper(strconv.FormatUint(n, 36)), counterLen))
	b.WriteString(randomSegment(segmentLen))
	b.WriteString(randomSegment(segmentLen))
	return b.String()
}

// EnsureUnique returns an order id not used by any stored record
// After maxRetries collisions (or failed checks) it gives up checking and returns a random ULID based id
// Error is returned only when ctx is done
func (g *Generator) EnsureUnique(ctx context.Context, maxRetries int) (string, error) {
	delay := g.backoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		id := g.Generate()

		exists, err := g.checker.OrderIDExists(ctx, id)
		switch {
		case err != nil:
			g.logger.Warn("order id check failed", "orderId", id, "attempt", attempt, "error", err)
		case !exists:
			return id, nil
		default:
			metrics.OrderIDCollisions.Inc()
			g.logger.Warn("order id collision", "orderId", id, "attempt", attempt)
		}

		if attempt == maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(jitter(delay)):
		}
		delay = min(delay*2, maxBackoff)
	}

	id := Fallback()
	metrics.OrderIDFallbacks.Inc()
	g.logger.Warn("order id retries exhausted, random fallback used", "orderId", id)
	return id, nil
}

// Fallback returns prefixed ULID with crypto/rand entropy
func Fallback() string {
	return Prefix + ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}

// Timestamp that never goes backwards even if the wall clock does
func (g *Generator) tick() int64 {
	now := time.Now().UnixMilli()
	for {
		last := g.lastMs.Load()
		next := max(now, last)
		if g.lastMs.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Delay in [d/2, d*3/2)
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(mrand.Int64N(int64(d)))
}

func randomSegment(n int) string {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range out {
		num, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(err)
		}
		out[i] = alphabet[num.Int64()]
	}
	return string(out)
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}
