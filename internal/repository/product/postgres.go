package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

const productColumns = `id::text, title, price::text, stock, COALESCE(category, ''), COALESCE(image_url, ''), COALESCE(description, ''), created_at, updated_at`

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) List(ctx context.Context, category string) ([]domain.Product, error) {
	const q = `
SELECT ` + productColumns + `
FROM products
WHERE ($1 = '' OR category = $1)
ORDER BY created_at DESC, id
`
	rows, err := r.pool.Query(ctx, q, category)
	if err != nil {
		r.logger.Error("product repo: list", zap.String("category", category), zap.Error(err))
		return nil, err
	}
	result, err := collectProducts(rows)
	if err != nil {
		r.logger.Error("product repo: list rows", zap.String("category", category), zap.Error(err))
		return nil, err
	}
	r.logger.Debug("product repo: list", zap.String("category", category), zap.Int("count", len(result)))
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	const q = `
SELECT ` + productColumns + `
FROM products
WHERE id = $1
`
	p, err := scanProduct(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("product repo: get not found", zap.String("id", id))
			return nil, domain.ErrNotFound
		}
		r.logger.Error("product repo: get", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return &p, nil
}

func (r *postgresRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	const q = `
SELECT ` + productColumns + `
FROM products
WHERE id::text = ANY($1::text[])
`
	rows, err := r.pool.Query(ctx, q, valid)
	if err != nil {
		r.logger.Error("product repo: get by ids", zap.Int("ids", len(valid)), zap.Error(err))
		return nil, err
	}
	return collectProducts(rows)
}

func (r *postgresRepo) ListCategories(ctx context.Context) ([]string, error) {
	const q = `
SELECT DISTINCT category
FROM products
WHERE category IS NOT NULL AND category <> ''
ORDER BY category
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		r.logger.Error("product repo: categories", zap.Error(err))
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *postgresRepo) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	const q = `
INSERT INTO products (title, price, stock, category, image_url, description)
VALUES ($1, $2::numeric, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
RETURNING ` + productColumns
	res, err := scanProduct(r.pool.QueryRow(ctx, q, p.Title, p.Price.String(), p.Stock, p.Category, p.ImageURL, p.Description))
	if err != nil {
		r.logger.Error("product repo: create", zap.String("title", p.Title), zap.Error(err))
		return nil, err
	}
	r.logger.Info("product repo: created", zap.String("id", res.ID), zap.String("title", res.Title))
	return &res, nil
}

func (r *postgresRepo) Update(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if _, err := uuid.Parse(p.ID); err != nil {
		return nil, domain.ErrNotFound
	}
	const q = `
UPDATE products
SET title = $2,
    price = $3::numeric,
    stock = $4,
    category = NULLIF($5, ''),
    image_url = NULLIF($6, ''),
    description = NULLIF($7, ''),
    updated_at = now()
WHERE id = $1
RETURNING ` + productColumns
	res, err := scanProduct(r.pool.QueryRow(ctx, q, p.ID, p.Title, p.Price.String(), p.Stock, p.Category, p.ImageURL, p.Description))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("product repo: update", zap.String("id", p.ID), zap.Error(err))
		return nil, err
	}
	r.logger.Info("product repo: updated", zap.String("id", res.ID))
	return &res, nil
}

func (r *postgresRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("product repo: delete", zap.String("id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.logger.Info("product repo: deleted", zap.String("id", id))
	return nil
}

// Upsert inserts p, or overwrites the row with the same id. An empty id
// always inserts.
func (r *postgresRepo) Upsert(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.ID != "" {
		if _, err := uuid.Parse(p.ID); err != nil {
			return nil, fmt.Errorf("product repo: upsert id %q: %w", p.ID, err)
		}
	}
	const q = `
INSERT INTO products (id, title, price, stock, category, image_url, description)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3::numeric, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    price = EXCLUDED.price,
    stock = EXCLUDED.stock,
    category = EXCLUDED.category,
    image_url = EXCLUDED.image_url,
    description = EXCLUDED.description,
    updated_at = now()
RETURNING ` + productColumns
	res, err := scanProduct(r.pool.QueryRow(ctx, q, p.ID, p.Title, p.Price.String(), p.Stock, p.Category, p.ImageURL, p.Description))
	if err != nil {
		r.logger.Error("product repo: upsert", zap.String("id", p.ID), zap.String("title", p.Title), zap.Error(err))
		return nil, err
	}
	r.logger.Debug("product repo: upserted", zap.String("id", res.ID))
	return &res, nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Title, &price, &p.Stock, &p.Category, &p.ImageURL, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: price %q: %w", p.ID, price, err)
	}
	p.Price = d
	return p, nil
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()
	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
