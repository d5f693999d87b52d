package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

type stubProductRepo struct {
	items []domain.Product
	err   error
}

func (s *stubProductRepo) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.items = append(s.items, p)
	return &p, nil
}

func TestCSVImporter_Run(t *testing.T) {
	csvData := `id,title,price,stock,category,imageUrl,description
00000000-0000-4000-8000-000000000001,Lamp,1500,3,home,https://example.com/lamp.jpg,Warm light
,Rope,"90,5",10,marine,,

,Sticker,0,,,,`

	repo := &stubProductRepo{}
	imp := NewCSVImporter(strings.NewReader(csvData), repo, nil)

	count, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("import run: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 products imported, got %d", count)
	}

	lamp := repo.items[0]
	if lamp.ID != "00000000-0000-4000-8000-000000000001" || lamp.Title != "Lamp" || lamp.Stock != 3 || lamp.Category != "home" || lamp.ImageURL == "" || lamp.Description != "Warm light" {
		t.Fatalf("unexpected first product: %+v", lamp)
	}
	if !lamp.Price.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected price %s", lamp.Price)
	}
	if repo.items[1].ID != "" || !repo.items[1].Price.Equal(decimal.RequireFromString("90.5")) {
		t.Fatalf("unexpected second product: %+v", repo.items[1])
	}
	if repo.items[2].Stock != 0 {
		t.Fatalf("expected missing stock to be 0, got %d", repo.items[2].Stock)
	}
}

func TestCSVImporter_ColumnOrderAndBOM(t *testing.T) {
	csvData := "\ufeffprice,title\n12.50,Mug\n"
	repo := &stubProductRepo{}
	count, err := NewCSVImporter(strings.NewReader(csvData), repo, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("import run: %v", err)
	}
	if count != 1 || repo.items[0].Title != "Mug" {
		t.Fatalf("unexpected import %+v", repo.items)
	}
}

func TestCSVImporter_Errors(t *testing.T) {
	cases := map[string]string{
		"missing price column": "title\nLamp\n",
		"bad price":            "title,price\nLamp,cheap\n",
		"bad stock":            "title,price,stock\nLamp,1,many\n",
		"bad id":               "id,title,price\nabc,Lamp,1\n",
		"missing title":        "title,price\n,10\n",
		"empty file":           "",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &stubProductRepo{}
			if _, err := NewCSVImporter(strings.NewReader(data), repo, nil).Run(context.Background()); err == nil {
				t.Fatalf("expected error")
			}
			if len(repo.items) != 0 {
				t.Fatalf("expected nothing saved, got %d", len(repo.items))
			}
		})
	}
}

func TestCSVImporter_StopsOnWriteError(t *testing.T) {
	repo := &stubProductRepo{err: domain.ErrInvalidProduct}
	_, err := NewCSVImporter(strings.NewReader("title,price\nLamp,-1\n"), repo, nil).Run(context.Background())
	if !errors.Is(err, domain.ErrInvalidProduct) {
		t.Fatalf("expected ErrInvalidProduct, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line number in %q", err.Error())
	}
}
