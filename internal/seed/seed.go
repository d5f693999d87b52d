package seed

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// Products is the demo catalog. Ids are fixed so Apply is idempotent.
var Products = []domain.Product{
	{
		ID:          "6a0f3d2e-1c4b-4e8a-9b57-0c1d2e3f4a01",
		Title:       "Ceramic Vase",
		Price:       decimal.NewFromInt(1450),
		Stock:       6,
		Category:    "Декор",
		ImageURL:    "https://images.example.com/vase.jpg",
		Description: "Hand glazed, 30 cm",
	},
	{
		ID:          "6a0f3d2e-1c4b-4e8a-9b57-0c1d2e3f4a02",
		Title:       "Linen Tablecloth",
		Price:       decimal.NewFromInt(2300),
		Stock:       3,
		Category:    "Текстиль",
		ImageURL:    "https://images.example.com/tablecloth.jpg",
		Description: "150 x 220 cm",
	},
	{
		ID:       "6a0f3d2e-1c4b-4e8a-9b57-0c1d2e3f4a03",
		Title:    "Felt Coasters (set of 4)",
		Price:    decimal.RequireFromString("399.50"),
		Stock:    20,
		Category: "Текстиль",
	},
	{
		ID:          "6a0f3d2e-1c4b-4e8a-9b57-0c1d2e3f4a04",
		Title:       "Brass Candle Holder",
		Price:       decimal.NewFromInt(980),
		Stock:       1,
		Description: "Last one in stock",
	},
	{
		ID:       "6a0f3d2e-1c4b-4e8a-9b57-0c1d2e3f4a05",
		Title:    "Woven Basket",
		Price:    decimal.NewFromInt(1200),
		Stock:    0,
		Category: "Декор",
	},
}

// Apply writes the demo catalog.
func Apply(ctx context.Context, w ProductWriter) error {
	for _, p := range Products {
		if _, err := w.Upsert(ctx, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Title, err)
		}
	}
	return nil
}
