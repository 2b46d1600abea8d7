package orderid

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/logger"
)

// In memory checker; claims ids on check like concurrent inserts would
type memChecker struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (c *memChecker) OrderIDExists(_ context.Context, orderID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen[orderID] {
		return true, nil
	}
	c.seen[orderID] = true
	return false, nil
}

type checkerFunc func(ctx context.Context, orderID string) (bool, error)

func (f checkerFunc) OrderIDExists(ctx context.Context, orderID string) (bool, error) {
	return f(ctx, orderID)
}

var idPattern = regexp.MustCompile(`^ORD[0-9A-Z]+$`)

func TestGenerator_Generate(t *testing.T) {
	g := New(&memChecker{seen: map[string]bool{}}, logger.NewNoOpLogger())

	t.Run("format", func(t *testing.T) {
		id := g.Generate()

		require.Regexp(t, idPattern, id)
		require.True(t, strings.HasPrefix(id, Prefix))
	})

	t.Run("timestamp never goes back", func(t *testing.T) {
		g.lastMs.Store(time.Now().Add(time.Hour).UnixMilli())

		first := g.tick()
		second := g.tick()

		require.GreaterOrEqual(t, second, first)
		require.Equal(t, g.lastMs.Load(), second)
	})

	t.Run("sequential ids differ", func(t *testing.T) {
		seen := map[string]bool{}
		for range 1000 {
			id := g.Generate()
			require.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	})
}

func TestGenerator_EnsureUnique(t *testing.T) {
	t.Run("concurrent calls yield distinct ids", func(t *testing.T) {
		g := New(&memChecker{seen: map[string]bool{}}, logger.NewNoOpLogger())

		const n = 200
		ids := make([]string, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := g.EnsureUnique(t.Context(), 3)
				assert.NoError(t, err)
				ids[i] = id
			}()
		}
		wg.Wait()

		unique := map[string]bool{}
		for _, id := range ids {
			unique[id] = true
		}
		require.Len(t, unique, n)
	})

	t.Run("retries after collision", func(t *testing.T) {
		calls := 0
		checker := checkerFunc(func(context.Context, string) (bool, error) {
			calls++
			return calls < 3, nil
		})
		g := New(checker, logger.NewNoOpLogger(), WithBackoff(time.Millisecond))

		id, err := g.EnsureUnique(t.Context(), 5)

		require.NoError(t, err)
		require.Equal(t, 3, calls)
		require.Regexp(t, idPattern, id)
	})

	t.Run("falls back when retries exhausted", func(t *testing.T) {
		calls := 0
		checker := checkerFunc(func(context.Context, string) (bool, error) {
			calls++
			return true, nil
		})
		g := New(checker, logger.NewNoOpLogger(), WithBackoff(time.Millisecond))

		id, err := g.EnsureUnique(t.Context(), 2)

		require.NoError(t, err)
		require.Equal(t, 3, calls, "first attempt plus two retries")
		require.Len(t, id, len(Prefix)+26, "fallback is prefixed ulid")
	})

	t.Run("check errors degrade to fallback", func(t *testing.T) {
		checker := checkerFunc(func(context.Context, string) (bool, error) {
			return false, errors.New("db is down")
		})
		g := New(checker, logger.NewNoOpLogger(), WithBackoff(time.Millisecond))

		id, err := g.EnsureUnique(t.Context(), 1)

		require.NoError(t, err)
		require.True(t, strings.HasPrefix(id, Prefix))
	})

	t.Run("context cancelled while waiting", func(t *testing.T) {
		checker := checkerFunc(func(context.Context, string) (bool, error) {
			return true, nil
		})
		g := New(checker, logger.NewNoOpLogger(), WithBackoff(time.Hour))
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := g.EnsureUnique(ctx, 3)

		require.ErrorIs(t, err, context.Canceled)
	})
}
