package httpserver

import (
	"github.com/shopspring/decimal"

	"storefront/internal/cart"
	"storefront/internal/checkout"
)

type cartLineResponse struct {
	ProductID         string          `json:"productId"`
	Title             string          `json:"title"`
	Category          string          `json:"category,omitempty"`
	ImageURL          string          `json:"imageUrl,omitempty"`
	Description       string          `json:"description,omitempty"`
	Price             decimal.Decimal `json:"price"`
	PriceFormatted    string          `json:"priceFormatted"`
	Stock             int             `json:"stock"`
	Quantity          int             `json:"quantity"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	SubtotalFormatted string          `json:"subtotalFormatted"`
	AtStockLimit      bool            `json:"atStockLimit"`
}

type cartResponse struct {
	Items               []cartLineResponse `json:"items"`
	IsOpen              bool               `json:"isOpen"`
	TotalItemCount      int                `json:"totalItemCount"`
	TotalPrice          decimal.Decimal    `json:"totalPrice"`
	TotalPriceFormatted string             `json:"totalPriceFormatted"`
	Version             uint64             `json:"version"`
}

func toCartResponse(st cart.State, f *checkout.Formatter) cartResponse {
	items := make([]cartLineResponse, 0, len(st.Items))
	for _, l := range st.Items {
		sub := l.Subtotal()
		items = append(items, cartLineResponse{
			ProductID:         l.ProductID,
			Title:             l.Title,
			Category:          l.Category,
			ImageURL:          l.ImageURL,
			Description:       l.Description,
			Price:             l.Price,
			PriceFormatted:    f.FormatPrice(l.Price),
			Stock:             l.Stock,
			Quantity:          l.Quantity,
			Subtotal:          sub,
			SubtotalFormatted: f.FormatPrice(sub),
			AtStockLimit:      l.Quantity >= l.Stock,
		})
	}
	return cartResponse{
		Items:               items,
		IsOpen:              st.IsOpen,
		TotalItemCount:      st.TotalItemCount,
		TotalPrice:          st.TotalPrice,
		TotalPriceFormatted: f.FormatPrice(st.TotalPrice),
		Version:             st.Version,
	}
}

type checkoutResponse struct {
	Message string       `json:"message"`
	Link    string       `json:"link"`
	Cart    cartResponse `json:"cart"`
}
