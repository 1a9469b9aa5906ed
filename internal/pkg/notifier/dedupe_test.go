package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	mu    sync.Mutex
	kinds []Kind
}

func (c *countingNotifier) Notify(_ context.Context, kind Kind, _ uint, _ map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
	return nil
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.kinds)
}

func newTestDedupe(t *testing.T) (*DedupeNotifier, *countingNotifier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	next := &countingNotifier{}
	return NewDedupeNotifier(next, client, time.UTC), next, mr
}

func TestDedupeSuppressesSameDayRepeat(t *testing.T) {
	d, next, _ := newTestDedupe(t)
	ctx := context.Background()

	require.NoError(t, d.Notify(ctx, KindSubscriptionExpiring, 1, nil))
	require.NoError(t, d.Notify(ctx, KindSubscriptionExpiring, 1, nil))
	assert.Equal(t, 1, next.count())

	// Different kind or organization is a different event.
	require.NoError(t, d.Notify(ctx, KindSubscriptionLastCall, 1, nil))
	require.NoError(t, d.Notify(ctx, KindSubscriptionExpiring, 2, nil))
	assert.Equal(t, 3, next.count())
}

func TestDedupeDeliversAgainNextDay(t *testing.T) {
	d, next, _ := newTestDedupe(t)
	ctx := context.Background()

	day1 := time.Date(2025, 8, 10, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return day1 }
	require.NoError(t, d.Notify(ctx, KindSubscriptionExpiring, 1, nil))

	d.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	require.NoError(t, d.Notify(ctx, KindSubscriptionExpiring, 1, nil))
	assert.Equal(t, 2, next.count())
}

func TestDedupeDeliversWhenCacheDown(t *testing.T) {
	d, next, mr := newTestDedupe(t)
	mr.Close()

	require.NoError(t, d.Notify(context.Background(), KindPaymentConfirmed, 1, nil))
	require.NoError(t, d.Notify(context.Background(), KindPaymentConfirmed, 1, nil))
	assert.Equal(t, 2, next.count())
}
