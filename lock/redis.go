package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/warp/folio-engine/folio"
)

// Dial creates a Redis client and pings it.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("lock: ping redis: %w", err)
	}
	return client, nil
}

// release deletes the key only if it still holds our token, so an expired
// lock re-acquired by someone else is never released by the old owner.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a SET NX PX lock shared by every API instance.
type Redis struct {
	Client redis.UniversalClient
	Prefix string

	// TTL bounds how long a crashed holder can block the folio.
	TTL time.Duration
	// Wait is the total time Lock polls for a held key.
	Wait time.Duration
	// Retry is the poll interval.
	Retry time.Duration
}

var _ folio.Locker = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		Client: client,
		Prefix: "lock:",
		TTL:    ttl,
		Wait:   DefaultWait,
		Retry:  50 * time.Millisecond,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	key = r.Prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(r.Wait)

	for {
		ok, err := r.Client.SetNX(ctx, key, token, r.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: set %s: %w", key, err)
		}
		if ok {
			return func() { r.unlock(key, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, folio.ErrFolioBusy
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.Retry):
		}
	}
}

func (r *Redis) unlock(key, token string) {
	// the request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = release.Run(ctx, r.Client, []string{key}, token).Err()
}
