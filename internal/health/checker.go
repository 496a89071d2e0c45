package health

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// DepsChecker probes the Postgres pool and Redis client.
type DepsChecker struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// PingDB probes the database with a bounded timeout.
func (c DepsChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Pool.Ping(ctx)
}

// PingRedis probes Redis with a bounded timeout.
func (c DepsChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Redis.Ping(ctx).Err()
}
