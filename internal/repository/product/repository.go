package product

import (
	"context"

	"storefront/internal/domain"
)

// Repository reads and writes catalog products. Lookups of unknown ids return
// domain.ErrNotFound.
type Repository interface {
	List(ctx context.Context, category string) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	// GetByIDs returns the products that exist among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, p domain.Product) (*domain.Product, error)
	Update(ctx context.Context, p domain.Product) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	Upsert(ctx context.Context, p domain.Product) (*domain.Product, error)
}
