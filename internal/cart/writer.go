package cart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront/internal/domain"
)

// writer saves cart snapshots off the mutation path. Only the most recent
// snapshot is kept; intermediate ones are skipped.
type writer struct {
	store   Store
	key     string
	timeout time.Duration
	logger  *zap.Logger
	onErr   func(error)

	mu      sync.Mutex
	pending []domain.CartLine
	dirty   bool

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newWriter(store Store, key string, timeout time.Duration, logger *zap.Logger, onErr func(error)) *writer {
	return &writer{
		store:   store,
		key:     key,
		timeout: timeout,
		logger:  logger,
		onErr:   onErr,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// offer replaces the pending snapshot and wakes the worker. It never blocks.
func (w *writer) offer(lines []domain.CartLine) {
	w.mu.Lock()
	w.pending = lines
	w.dirty = true
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.quit:
			w.flush()
			return
		}
	}
}

func (w *writer) flush() {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return
	}
	lines := w.pending
	w.pending = nil
	w.dirty = false
	w.mu.Unlock()

	blob, err := Encode(lines)
	if err != nil {
		w.fail(err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.store.Save(ctx, w.key, blob); err != nil {
		w.fail(err)
		return
	}
	w.logger.Debug("cart: snapshot saved", zap.String("key", w.key), zap.Int("lines", len(lines)))
}

func (w *writer) fail(err error) {
	w.logger.Warn("cart: persist failed", zap.String("key", w.key), zap.Error(err))
	if w.onErr != nil {
		w.onErr(err)
	}
}

func (w *writer) close(ctx context.Context) error {
	w.closeOnce.Do(func() { close(w.quit) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
