package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

var (
	// ErrEmptyCart is returned when there is nothing to order.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrStockChanged is matched by *StockError.
	ErrStockChanged = errors.New("stock changed")
)

// Catalog supplies live product records for re-validation.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

// Shortfall is a line the catalog can no longer fill. Available is 0 when the
// product is gone.
type Shortfall struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// StockError lists the lines that block an order.
type StockError struct {
	Shortfalls []Shortfall
}

func (e *StockError) Error() string {
	ids := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		ids = append(ids, s.ProductID)
	}
	return fmt.Sprintf("stock changed for %s", strings.Join(ids, ", "))
}

func (e *StockError) Is(target error) bool { return target == ErrStockChanged }

// Order is a checkout ready to be handed to the shopper.
type Order struct {
	Lines   []domain.CartLine `json:"items"`
	Total   decimal.Decimal   `json:"total"`
	Message string            `json:"message"`
	Link    string            `json:"link"`
}

type Options struct {
	Phone    string
	Currency string
	// Catalog enables stock re-validation; nil trusts the cart snapshot.
	Catalog Catalog
	Logger  *zap.Logger
}

type Service struct {
	phone   string
	format  *Formatter
	catalog Catalog
	logger  *zap.Logger
}

func New(opts Options) *Service {
	phone := opts.Phone
	if strings.TrimSpace(phone) == "" {
		phone = DefaultPhone
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		phone:   phone,
		format:  NewFormatter(opts.Currency),
		catalog: opts.Catalog,
		logger:  logger,
	}
}

// Formatter exposes the price formatter used for messages.
func (s *Service) Formatter() *Formatter { return s.format }

// Prepare builds the order message and link for the given cart contents.
// Nothing in the cart is changed.
func (s *Service) Prepare(ctx context.Context, items []domain.CartLine, total decimal.Decimal) (*Order, error) {
	return s.PrepareFor(ctx, s.phone, items, total)
}

// PrepareFor is Prepare addressed to a specific phone number.
func (s *Service) PrepareFor(ctx context.Context, phone string, items []domain.CartLine, total decimal.Decimal) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if s.catalog != nil {
		if err := s.verify(ctx, items); err != nil {
			return nil, err
		}
	}
	msg := s.format.Message(items, total)
	s.logger.Info("checkout: order prepared", zap.Int("lines", len(items)), zap.String("total", total.String()))
	return &Order{
		Lines:   items,
		Total:   total,
		Message: msg,
		Link:    Link(phone, msg),
	}, nil
}

func (s *Service) verify(ctx context.Context, items []domain.CartLine) error {
	ids := make([]string, 0, len(items))
	for _, l := range items {
		ids = append(ids, l.ProductID)
	}
	live, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("checkout: load catalog: %w", err)
	}
	stock := make(map[string]int, len(live))
	for _, p := range live {
		stock[p.ID] = p.Stock
	}

	var short []Shortfall
	for _, l := range items {
		available := stock[l.ProductID]
		if available < l.Quantity {
			short = append(short, Shortfall{ProductID: l.ProductID, Title: l.Title, Requested: l.Quantity, Available: available})
		}
	}
	if len(short) > 0 {
		s.logger.Info("checkout: refused, stock changed", zap.Int("shortfalls", len(short)))
		return &StockError{Shortfalls: short}
	}
	return nil
}
