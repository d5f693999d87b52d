// Package cartstore provides durable slots for serialized carts. Every
// backend satisfies cart.Store: Load returns domain.ErrNotFound for an empty
// slot and Save overwrites the whole blob.
package cartstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storefront/internal/cart"
)

// Backend kinds accepted by Open.
const (
	KindMemory   = "memory"
	KindPostgres = "postgres"
	KindRedis    = "redis"
	KindNATS     = "nats"
	KindSQLite   = "sqlite"
)

// Backend is a cart.Store that may hold a connection.
type Backend interface {
	cart.Store
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Kind       string
	Pool       *pgxpool.Pool
	RedisAddr  string
	NATSURL    string
	NATSBucket string
	SQLitePath string
	// TTL expires idle slots where the backend supports it.
	TTL time.Duration
}

// Open builds the backend named by opts.Kind.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	logger.Info("cartstore: opening backend", zap.String("kind", kind))

	switch kind {
	case KindMemory:
		return NewMemory(), nil
	case KindPostgres, "":
		if opts.Pool == nil {
			return nil, fmt.Errorf("cartstore: postgres backend requires a pool")
		}
		return NewPostgres(opts.Pool), nil
	case KindRedis:
		r, err := NewRedis(ctx, opts.RedisAddr, opts.TTL)
		if err != nil {
			return nil, err
		}
		return r, nil
	case KindNATS:
		n, err := NewNATS(ctx, opts.NATSURL, opts.NATSBucket, opts.TTL)
		if err != nil {
			return nil, err
		}
		return n, nil
	case KindSQLite:
		s, err := OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("cartstore: unknown backend %q", opts.Kind)
	}
}
