// Package redisstore provides Redis-backed implementations of the auth
// stores. Records carry native TTLs so Redis reclaims stale entries on
// its own; the periodic sweeps become no-ops.
package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core"
)

const (
	otpKeyPrefix       = "otp:"
	adminSessKeyPrefix = "admsess:"
	rateLimitKeyPrefix = "ratelimit:"
)

func NewClient(conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}
