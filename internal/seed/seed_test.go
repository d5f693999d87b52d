package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"storefront/internal/domain"
)

type stubWriter struct {
	saved []domain.Product
	err   error
}

func (s *stubWriter) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.saved = append(s.saved, p)
	return &p, nil
}

func TestApply(t *testing.T) {
	w := &stubWriter{}
	if err := Apply(context.Background(), w); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(w.saved) != len(Products) {
		t.Fatalf("expected %d products, got %d", len(Products), len(w.saved))
	}
	seen := map[string]bool{}
	for _, p := range w.saved {
		if _, err := uuid.Parse(p.ID); err != nil {
			t.Fatalf("product %q has bad id %q", p.Title, p.ID)
		}
		if seen[p.ID] {
			t.Fatalf("duplicate id %s", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestApply_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	if err := Apply(context.Background(), &stubWriter{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
