package domain

import "github.com/shopspring/decimal"

// CartLine is one product in a cart. The display fields, Price and Stock are
// captured from the product when the line is created and are not refreshed.
type CartLine struct {
	ProductID   string          `json:"productId"`
	Title       string          `json:"title"`
	Category    string          `json:"category,omitempty"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Quantity    int             `json:"quantity"`
}

// LineFromProduct snapshots p into a line with the given quantity.
func LineFromProduct(p Product, quantity int) CartLine {
	return CartLine{
		ProductID:   p.ID,
		Title:       p.Title,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Quantity:    quantity,
	}
}

// Subtotal is Price * Quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
