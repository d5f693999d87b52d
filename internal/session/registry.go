package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/cart"
)

// DefaultTTL is how long an untouched session stays in memory.
const DefaultTTL = 30 * time.Minute

// Options configures a Registry. Store may be nil for memory-only carts.
type Options struct {
	Store          cart.Store
	Key            string
	TTL            time.Duration
	PersistTimeout time.Duration
	Logger         *zap.Logger
	// OnPersistError is handed to every engine.
	OnPersistError func(error)
	// OnCount receives the number of live sessions after each change.
	OnCount func(int)
}

type entry struct {
	engine   *cart.Engine
	ready    chan struct{}
	lastSeen time.Time
	// gone is set while the entry is being evicted and closed once its
	// final snapshot is flushed.
	gone chan struct{}
}

// Registry maps session ids to their carts. Each cart is persisted under
// "<Key>:<id>".
type Registry struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool

	quit chan struct{}
	done chan struct{}
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// Valid reports whether id looks like an identifier issued by NewID.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// New creates a registry and starts its idle-session janitor.
func New(opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.janitor(janitorInterval(opts.TTL))
	return r
}

func janitorInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/4, time.Second), time.Minute)
}

// Key is the store key for session id.
func (r *Registry) Key(id string) string {
	return r.opts.Key + ":" + id
}

// Get returns the cart for id, creating and restoring it on first use.
// Concurrent first calls for the same id share one restore. A cart that is
// being evicted is flushed before it is restored again.
func (r *Registry) Get(ctx context.Context, id string) (*cart.Engine, error) {
	r.mu.Lock()
	for {
		if r.closed {
			r.mu.Unlock()
			return nil, errors.New("session registry closed")
		}
		e, ok := r.sessions[id]
		if !ok {
			break
		}
		if e.gone != nil {
			gone := e.gone
			r.mu.Unlock()
			select {
			case <-gone:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			r.mu.Lock()
			continue
		}
		e.lastSeen = r.now()
		r.mu.Unlock()
		select {
		case <-e.ready:
			return e.engine, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e := &entry{
		engine: cart.New(cart.Options{
			Store:          r.opts.Store,
			Key:            r.Key(id),
			Logger:         r.logger,
			PersistTimeout: r.opts.PersistTimeout,
			OnPersistError: r.opts.OnPersistError,
		}),
		ready:    make(chan struct{}),
		lastSeen: r.now(),
	}
	r.sessions[id] = e
	count := len(r.sessions)
	r.mu.Unlock()
	r.report(count)

	if err := e.engine.Restore(ctx); err != nil {
		// The session keeps an empty cart; the next write replaces the bad slot.
		r.logger.Warn("session: restore failed", zap.String("session", id), zap.Error(err))
	}
	close(e.ready)
	r.logger.Debug("session: created", zap.String("session", id))
	return e.engine, nil
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the janitor and flushes every cart. Get fails afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	victims := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	close(r.quit)
	<-r.done

	var errs []error
	for id, e := range victims {
		<-e.ready
		if err := e.engine.Close(ctx); err != nil {
			errs = append(errs, err)
			r.logger.Warn("session: flush on shutdown failed", zap.String("session", id), zap.Error(err))
		}
	}
	r.report(0)
	return errors.Join(errs...)
}

func (r *Registry) janitor(every time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.quit:
			return
		}
	}
}

// evictIdle closes sessions untouched for longer than the TTL. Carts with a
// live subscriber count as seen. An evicted entry stays registered until its
// last snapshot is flushed.
func (r *Registry) evictIdle() int {
	now := r.now()
	cutoff := now.Add(-r.opts.TTL)

	r.mu.Lock()
	victims := make(map[string]*entry)
	for id, e := range r.sessions {
		if e.gone != nil {
			continue
		}
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.engine.Subscribers() > 0 {
			e.lastSeen = now
			continue
		}
		if e.lastSeen.Before(cutoff) {
			e.gone = make(chan struct{})
			victims[id] = e
		}
	}
	r.mu.Unlock()

	if len(victims) == 0 {
		return 0
	}
	for id, e := range victims {
		ctx, cancel := context.WithTimeout(context.Background(), r.flushTimeout())
		if err := e.engine.Close(ctx); err != nil {
			r.logger.Warn("session: flush on eviction failed", zap.String("session", id), zap.Error(err))
		}
		cancel()
	}

	r.mu.Lock()
	for id, e := range victims {
		if r.sessions[id] == e {
			delete(r.sessions, id)
		}
		close(e.gone)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	r.report(count)
	r.logger.Debug("session: evicted idle carts", zap.Int("evicted", len(victims)), zap.Int("remaining", count))
	return len(victims)
}

func (r *Registry) flushTimeout() time.Duration {
	if r.opts.PersistTimeout > 0 {
		return r.opts.PersistTimeout
	}
	return cart.DefaultPersistTimeout
}

func (r *Registry) report(n int) {
	if r.opts.OnCount != nil {
		r.opts.OnCount(n)
	}
}
