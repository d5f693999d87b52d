package cartstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
)

// Postgres stores slots in the cart_snapshots table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Load(ctx context.Context, key string) ([]byte, error) {
	const q = `
SELECT payload
FROM cart_snapshots
WHERE key = $1
`
	var blob []byte
	if err := p.pool.QueryRow(ctx, q, key).Scan(&blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return blob, nil
}

func (p *Postgres) Save(ctx context.Context, key string, blob []byte) error {
	const q = `
INSERT INTO cart_snapshots (key, payload, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE
SET payload = EXCLUDED.payload,
    updated_at = now()
`
	_, err := p.pool.Exec(ctx, q, key, blob)
	return err
}

// Close is a no-op; the pool belongs to the caller.
func (p *Postgres) Close() error { return nil }
