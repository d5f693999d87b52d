package cartstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"storefront/internal/domain"
)

// Redis stores each slot as a string key, refreshed with ttl on every save.
type Redis struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedis connects to addr and verifies it with a ping.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("cartstore: missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(rdb, ttl), nil
}

func NewRedisWithClient(rdb *goredis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	blob, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (r *Redis) Save(ctx context.Context, key string, blob []byte) error {
	return r.rdb.Set(ctx, key, blob, r.ttl).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
