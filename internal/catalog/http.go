package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

// HTTPSource reads products from a storefront API.
type HTTPSource struct {
	base    *url.URL
	client  *http.Client
	logger  *zap.Logger
	retries uint64
}

type Option func(*HTTPSource)

func WithClient(c *http.Client) Option {
	return func(s *HTTPSource) { s.client = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *HTTPSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRetries sets how many times a failed request is retried.
func WithRetries(n uint64) Option {
	return func(s *HTTPSource) { s.retries = n }
}

// NewHTTPSource returns a source rooted at baseURL, e.g. http://localhost:8080.
func NewHTTPSource(baseURL string, opts ...Option) (*HTTPSource, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("catalog url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalog url %q: scheme must be http or https", baseURL)
	}
	s := &HTTPSource{
		base:    u,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  zap.NewNop(),
		retries: 2,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns the catalog, optionally restricted to one category.
func (s *HTTPSource) List(ctx context.Context, category string) ([]domain.Product, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	var products []domain.Product
	if err := s.get(ctx, "/products", q, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetByID returns domain.ErrNotFound when the API answers 404.
func (s *HTTPSource) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := s.get(ctx, "/products/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDs fetches each id and skips the ones that no longer exist.
func (s *HTTPSource) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetByID(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *HTTPSource) get(ctx context.Context, path string, q url.Values, dst any) error {
	u := *s.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	target := u.String()

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(domain.ErrNotFound)
		case resp.StatusCode >= 500:
			return fmt.Errorf("catalog: GET %s: status %d", target, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("catalog: GET %s: status %d", target, resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return backoff.Permanent(fmt.Errorf("catalog: decode %s: %w", target, err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	notify := func(err error, wait time.Duration) {
		s.logger.Debug("catalog: retrying", zap.String("url", target), zap.Duration("wait", wait), zap.Error(err))
	}
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, s.retries), ctx), notify)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("catalog: request failed", zap.String("url", target), zap.Error(err))
	}
	return err
}
