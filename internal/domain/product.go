package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog record. Stock is the sellable quantity at read time.
type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category,omitempty"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// InStock reports whether at least one unit can be sold.
func (p Product) InStock() bool {
	return p.Stock > 0
}
