package checks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// NewRedisClient returns a client tuned to fail fast; a probe should not
// sit in retries.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaxRetries:   -1,
		PoolSize:     2,
	})
}

// Redis issues PING and expects PONG.
func Redis(c redis.UniversalClient) health.CheckFunc {
	return func(ctx context.Context) error {
		res, err := c.Ping(ctx).Result()
		if err != nil {
			return xerrors.Wrap(err, "redis ping")
		}
		if res != "PONG" {
			return xerrors.Newf("redis ping: unexpected reply %q", res)
		}
		return nil
	}
}
