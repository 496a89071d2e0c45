package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ErrHeld is returned when the guarded key is already locked by another
// caller.
var ErrHeld = errors.New("lock: already held")

// Guard serializes an operation per key using a Redis SET NX token. It does
// not queue: a second caller fails immediately with ErrHeld, which suits
// checkout where a concurrent retry should be rejected, not replayed.
type Guard struct {
	R   *redis.Client
	TTL time.Duration
}

// Do runs fn while holding the lock for key. The lock is released when fn
// returns; the TTL bounds the hold time if the process dies mid-operation.
func (g Guard) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if g.R == nil {
		return errors.New("lock: redis client not configured")
	}
	ttl := g.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	ok, err := g.R.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer g.release(context.Background(), "lock:"+key, token)
	return fn(ctx)
}

// release deletes the key only when it still carries our token, so an expired
// lock re-acquired by someone else is never clobbered.
func (g Guard) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	_ = g.R.Eval(ctx, script, []string{key}, token).Err()
}
