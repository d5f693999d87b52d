package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

// DefaultPersistTimeout bounds a single snapshot write.
const DefaultPersistTimeout = 5 * time.Second

// Store is a durable slot holding one serialized cart per key. Load returns
// domain.ErrNotFound when nothing was saved under key.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
}

// Options configures an Engine. A nil Store keeps the cart in memory only.
type Options struct {
	Store          Store
	Key            string
	Logger         *zap.Logger
	PersistTimeout time.Duration
	// OnPersistError is called from the persistence worker after a failed write.
	OnPersistError func(error)
}

// State is a point-in-time copy of the cart. Version grows by one with every
// change, so subscribers can discard out-of-order deliveries.
type State struct {
	Items          []domain.CartLine `json:"items"`
	IsOpen         bool              `json:"isOpen"`
	TotalItemCount int               `json:"totalItemCount"`
	TotalPrice     decimal.Decimal   `json:"totalPrice"`
	Version        uint64            `json:"version"`
}

type subscription struct {
	id uint64
	fn func(State)
}

// Engine owns one shopper's cart. It is safe for concurrent use; every
// operation is applied atomically under a single lock and in call order.
type Engine struct {
	mu      sync.Mutex
	lines   []domain.CartLine
	open    bool
	version uint64

	subMu   sync.Mutex
	subs    []subscription
	nextSub uint64

	store  Store
	key    string
	writer *writer
	logger *zap.Logger
}

// New creates an empty engine and, when a store is configured, starts its
// persistence worker. Call Restore to rehydrate and Close to stop.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  opts.Store,
		key:    opts.Key,
		logger: logger,
	}
	if opts.Store != nil {
		timeout := opts.PersistTimeout
		if timeout <= 0 {
			timeout = DefaultPersistTimeout
		}
		e.writer = newWriter(opts.Store, opts.Key, timeout, logger, opts.OnPersistError)
		go e.writer.run()
	}
	return e
}

// Restore replaces the in-memory lines with the persisted snapshot. An empty
// slot leaves the cart empty. On load or decode failure the cart stays empty
// and the error is returned for the caller to report.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	blob, err := e.store.Load(ctx, e.key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		e.logger.Warn("cart: restore failed", zap.String("key", e.key), zap.Error(err))
		return fmt.Errorf("load cart %s: %w", e.key, err)
	}
	lines, err := Decode(blob)
	if err != nil {
		e.logger.Warn("cart: discarding unreadable snapshot", zap.String("key", e.key), zap.Error(err))
		return fmt.Errorf("decode cart %s: %w", e.key, err)
	}

	e.mu.Lock()
	e.lines = lines
	e.version++
	st := e.stateLocked()
	e.mu.Unlock()

	e.logger.Debug("cart: restored", zap.String("key", e.key), zap.Int("lines", len(lines)))
	e.publish(st)
	return nil
}

// Close flushes the latest snapshot and stops the persistence worker. The
// engine stays usable in memory afterwards.
func (e *Engine) Close(ctx context.Context) error {
	if e.writer == nil {
		return nil
	}
	return e.writer.close(ctx)
}

// AddItem adds quantity units of p. A new line is clamped to [1, p.Stock];
// an existing line grows up to the stock captured when it was created.
// Non-positive quantities count as 1. Products without stock are ignored.
func (e *Engine) AddItem(p domain.Product, quantity int) {
	if p.ID == "" || p.Stock < 1 {
		return
	}
	if quantity < 1 {
		quantity = 1
	}
	e.mutate(func() (bool, bool) {
		if i := e.find(p.ID); i >= 0 {
			line := &e.lines[i]
			room := line.Stock - line.Quantity
			if room <= 0 {
				return false, false
			}
			line.Quantity += min(quantity, room)
			return true, false
		}
		e.lines = append(e.lines, domain.LineFromProduct(p, min(quantity, p.Stock)))
		return true, false
	})
}

// RemoveItem deletes the line for productID regardless of its quantity.
func (e *Engine) RemoveItem(productID string) {
	e.mutate(func() (bool, bool) {
		i := e.find(productID)
		if i < 0 {
			return false, false
		}
		e.lines = slices.Delete(e.lines, i, i+1)
		return true, false
	})
}

// IncreaseQuantity adds one unit unless the line is at its stock ceiling.
func (e *Engine) IncreaseQuantity(productID string) {
	e.mutate(func() (bool, bool) {
		i := e.find(productID)
		if i < 0 || e.lines[i].Quantity >= e.lines[i].Stock {
			return false, false
		}
		e.lines[i].Quantity++
		return true, false
	})
}

// DecreaseQuantity removes one unit but never drops a line below 1; use
// RemoveItem to delete it.
func (e *Engine) DecreaseQuantity(productID string) {
	e.mutate(func() (bool, bool) {
		i := e.find(productID)
		if i < 0 || e.lines[i].Quantity <= 1 {
			return false, false
		}
		e.lines[i].Quantity--
		return true, false
	})
}

// Clear empties the cart. The open flag is left as is.
func (e *Engine) Clear() {
	e.mutate(func() (bool, bool) {
		if len(e.lines) == 0 {
			return false, false
		}
		e.lines = nil
		return true, false
	})
}

// SetOpen shows or hides the cart drawer.
func (e *Engine) SetOpen(open bool) {
	e.mutate(func() (bool, bool) {
		if e.open == open {
			return false, false
		}
		e.open = open
		return false, true
	})
}

// ToggleOpen flips the drawer visibility.
func (e *Engine) ToggleOpen() {
	e.mutate(func() (bool, bool) {
		e.open = !e.open
		return false, true
	})
}

func (e *Engine) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// Items returns a copy of the lines in insertion order.
func (e *Engine) Items() []domain.CartLine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.lines)
}

// TotalItemCount is the sum of all line quantities.
func (e *Engine) TotalItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return totalCount(e.lines)
}

// TotalPrice is the sum of price*quantity, recomputed on every call.
func (e *Engine) TotalPrice() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return totalPrice(e.lines)
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Subscribe registers fn to receive the new state after every change. fn runs
// on the goroutine that made the change, after the cart lock is released.
// The returned function removes the subscription.
func (e *Engine) Subscribe(fn func(State)) (cancel func()) {
	e.subMu.Lock()
	e.nextSub++
	id := e.nextSub
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		e.subs = slices.DeleteFunc(e.subs, func(s subscription) bool { return s.id == id })
	}
}

// Subscribers is the number of active subscriptions.
func (e *Engine) Subscribers() int {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	return len(e.subs)
}

// mutate applies fn under the lock. fn reports whether it changed the lines
// and whether it changed the open flag; unchanged state is neither persisted
// nor published.
func (e *Engine) mutate(fn func() (linesChanged, openChanged bool)) {
	e.mu.Lock()
	linesChanged, openChanged := fn()
	if !linesChanged && !openChanged {
		e.mu.Unlock()
		return
	}
	e.version++
	st := e.stateLocked()
	if linesChanged && e.writer != nil {
		e.writer.offer(slices.Clone(e.lines))
	}
	e.mu.Unlock()

	e.publish(st)
}

func (e *Engine) publish(st State) {
	e.subMu.Lock()
	fns := make([]func(State), 0, len(e.subs))
	for _, s := range e.subs {
		fns = append(fns, s.fn)
	}
	e.subMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (e *Engine) stateLocked() State {
	return State{
		Items:          slices.Clone(e.lines),
		IsOpen:         e.open,
		TotalItemCount: totalCount(e.lines),
		TotalPrice:     totalPrice(e.lines),
		Version:        e.version,
	}
}

func (e *Engine) find(productID string) int {
	return slices.IndexFunc(e.lines, func(l domain.CartLine) bool { return l.ProductID == productID })
}

func totalCount(lines []domain.CartLine) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func totalPrice(lines []domain.CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}
