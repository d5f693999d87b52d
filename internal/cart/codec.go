package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

const snapshotVersion = 1

type snapshot struct {
	Version int            `json:"version"`
	Items   []snapshotLine `json:"items"`
}

type snapshotLine struct {
	ProductID   string          `json:"productId"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Title       string          `json:"title"`
	Category    string          `json:"category,omitempty"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Description string          `json:"description,omitempty"`
}

// legacyLine is the bare-array format written by the browser storefront:
// the product record with a quantity attached.
type legacyLine struct {
	ID          string          `json:"id"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Title       string          `json:"title"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl"`
	Description string          `json:"description"`
}

// Encode serializes lines in order. The open flag is never part of the blob.
func Encode(lines []domain.CartLine) ([]byte, error) {
	snap := snapshot{Version: snapshotVersion, Items: make([]snapshotLine, 0, len(lines))}
	for _, l := range lines {
		snap.Items = append(snap.Items, snapshotLine{
			ProductID:   l.ProductID,
			Quantity:    l.Quantity,
			Price:       l.Price,
			Stock:       l.Stock,
			Title:       l.Title,
			Category:    l.Category,
			ImageURL:    l.ImageURL,
			Description: l.Description,
		})
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode cart: %w", err)
	}
	return blob, nil
}

// Decode parses a blob written by Encode, or a legacy bare array, and
// normalizes it so every line satisfies 1 <= quantity <= stock with one line
// per product.
func Decode(blob []byte) ([]domain.CartLine, error) {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var raw []domain.CartLine
	if trimmed[0] == '[' {
		var legacy []legacyLine
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("decode legacy cart: %w", err)
		}
		for _, l := range legacy {
			raw = append(raw, domain.CartLine{
				ProductID:   l.ID,
				Title:       l.Title,
				Category:    l.Category,
				ImageURL:    l.ImageURL,
				Description: l.Description,
				Price:       l.Price,
				Stock:       l.Stock,
				Quantity:    l.Quantity,
			})
		}
	} else {
		var snap snapshot
		if err := json.Unmarshal(trimmed, &snap); err != nil {
			return nil, fmt.Errorf("decode cart: %w", err)
		}
		if snap.Version > snapshotVersion {
			return nil, fmt.Errorf("decode cart: unsupported snapshot version %d", snap.Version)
		}
		for _, l := range snap.Items {
			raw = append(raw, domain.CartLine{
				ProductID:   l.ProductID,
				Title:       l.Title,
				Category:    l.Category,
				ImageURL:    l.ImageURL,
				Description: l.Description,
				Price:       l.Price,
				Stock:       l.Stock,
				Quantity:    l.Quantity,
			})
		}
	}
	return normalize(raw), nil
}

// normalize drops lines without an id or quantity, merges duplicates into the
// first occurrence and enforces the stock ceiling. A missing ceiling is
// frozen at the stored quantity.
func normalize(raw []domain.CartLine) []domain.CartLine {
	var out []domain.CartLine
	for _, l := range raw {
		if l.ProductID == "" || l.Quantity < 1 {
			continue
		}
		if l.Stock < 1 {
			l.Stock = l.Quantity
		}
		if l.Price.IsNegative() {
			l.Price = decimal.Zero
		}
		if i := slices.IndexFunc(out, func(o domain.CartLine) bool { return o.ProductID == l.ProductID }); i >= 0 {
			out[i].Quantity = min(out[i].Quantity+l.Quantity, out[i].Stock)
			continue
		}
		l.Quantity = min(l.Quantity, l.Stock)
		out = append(out, l)
	}
	return out
}
