package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	productrepo "storefront/internal/repository/product"
)

type Service struct {
	repo productrepo.Repository
}

func New(repo productrepo.Repository) *Service {
	return &Service{repo: repo}
}

// Input is the writable part of a product.
type Input struct {
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl"`
	Description string          `json:"description"`
}

func (s *Service) List(ctx context.Context, category string) ([]domain.Product, error) {
	return s.repo.List(ctx, strings.TrimSpace(category))
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	return s.repo.GetByIDs(ctx, ids)
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) Create(ctx context.Context, in Input) (*domain.Product, error) {
	p, err := in.toProduct("")
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Update(ctx context.Context, id string, in Input) (*domain.Product, error) {
	p, err := in.toProduct(id)
	if err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Upsert validates and writes p keyed by its id; used by bulk loaders.
func (s *Service) Upsert(ctx context.Context, p domain.Product) (*domain.Product, error) {
	in := Input{Title: p.Title, Price: p.Price, Stock: p.Stock, Category: p.Category, ImageURL: p.ImageURL, Description: p.Description}
	clean, err := in.toProduct(p.ID)
	if err != nil {
		return nil, err
	}
	return s.repo.Upsert(ctx, clean)
}

func (in Input) toProduct(id string) (domain.Product, error) {
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return domain.Product{}, fmt.Errorf("%w: title required", domain.ErrInvalidProduct)
	case in.Price.IsNegative():
		return domain.Product{}, fmt.Errorf("%w: price must not be negative", domain.ErrInvalidProduct)
	case in.Stock < 0:
		return domain.Product{}, fmt.Errorf("%w: stock must not be negative", domain.ErrInvalidProduct)
	}
	return domain.Product{
		ID:          id,
		Title:       title,
		Price:       in.Price.Round(2),
		Stock:       in.Stock,
		Category:    strings.TrimSpace(in.Category),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Description: strings.TrimSpace(in.Description),
	}, nil
}
