package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-engine/folio"
	"github.com/warp/folio-engine/lock"
)

func newTestRedis(t *testing.T) (*lock.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := lock.NewRedis(client, time.Second)
	l.Wait = 30 * time.Millisecond
	l.Retry = 5 * time.Millisecond
	return l, mr
}

func TestRedis_LockAndUnlock(t *testing.T) {
	l, mr := newTestRedis(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "folio:F1:checkout")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:folio:F1:checkout"))

	_, err = l.Lock(ctx, "folio:F1:checkout")
	assert.ErrorIs(t, err, folio.ErrFolioBusy)

	unlock()
	assert.False(t, mr.Exists("lock:folio:F1:checkout"))

	again, err := l.Lock(ctx, "folio:F1:checkout")
	require.NoError(t, err)
	again()
}

func TestRedis_ExpiredHolderDoesNotReleaseNewOwner(t *testing.T) {
	// GIVEN: A holder whose lock has expired and been taken by another caller
	// WHEN: The first holder unlocks late
	// THEN: The new owner's lock survives

	l, mr := newTestRedis(t)
	ctx := context.Background()

	stale, err := l.Lock(ctx, "F1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := l.Lock(ctx, "F1")
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("lock:F1"))

	fresh()
	assert.False(t, mr.Exists("lock:F1"))
}

func TestRedis_TTLIsSet(t *testing.T) {
	l, mr := newTestRedis(t)

	unlock, err := l.Lock(context.Background(), "F1")
	require.NoError(t, err)
	defer unlock()

	assert.Equal(t, time.Second, mr.TTL("lock:F1"))
}

func TestRedis_ServerDownIsNotBusy(t *testing.T) {
	l, mr := newTestRedis(t)
	mr.Close()

	_, err := l.Lock(context.Background(), "F1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, folio.ErrFolioBusy)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := lock.Dial(context.Background(), addr)
	require.NoError(t, err)
	client.Close()

	// the address outlives the server
	mr.Close()
	_, err = lock.Dial(context.Background(), addr)
	assert.Error(t, err)
}
