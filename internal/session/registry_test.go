package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/cart"
	"storefront/internal/cartstore"
	"storefront/internal/domain"
)

var lamp = domain.Product{ID: "p1", Title: "Lamp", Price: decimal.NewFromInt(100), Stock: 5}

func newTestRegistry(t *testing.T, store cart.Store, ttl time.Duration) *Registry {
	t.Helper()
	r := New(Options{Store: store, Key: "shop", TTL: ttl})
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestGet_SameSessionSameCart(t *testing.T) {
	r := newTestRegistry(t, nil, time.Hour)
	ctx := context.Background()

	a, err := r.Get(ctx, "s1")
	require.NoError(t, err)
	b, err := r.Get(ctx, "s1")
	require.NoError(t, err)
	other, err := r.Get(ctx, "s2")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)

	a.AddItem(lamp, 2)
	assert.Equal(t, 2, b.TotalItemCount())
	assert.Equal(t, 0, other.TotalItemCount())
	assert.Equal(t, 2, r.Len())
}

func TestGet_ConcurrentFirstUse(t *testing.T) {
	r := newTestRegistry(t, cartstore.NewMemory(), time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	engines := make([]*cart.Engine, 16)
	for i := range engines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := r.Get(ctx, "shared")
			assert.NoError(t, err)
			engines[i] = e
		}(i)
	}
	wg.Wait()
	for _, e := range engines[1:] {
		assert.Same(t, engines[0], e)
	}
}

func TestEvictIdle_FlushesAndRestores(t *testing.T) {
	store := cartstore.NewMemory()
	r := newTestRegistry(t, store, time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	var counts []int
	var mu sync.Mutex
	r.opts.OnCount = func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	}

	ctx := context.Background()
	e, err := r.Get(ctx, "idle")
	require.NoError(t, err)
	e.AddItem(lamp, 3)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, r.evictIdle())
	assert.Equal(t, 0, r.Len())

	_, err = store.Load(ctx, "shop:idle")
	require.NoError(t, err, "eviction must flush the last snapshot")

	again, err := r.Get(ctx, "idle")
	require.NoError(t, err)
	assert.NotSame(t, e, again)
	assert.Equal(t, 3, again.TotalItemCount())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 0, 1}, counts)
}

func TestEvictIdle_KeepsRecent(t *testing.T) {
	r := newTestRegistry(t, nil, time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	_, err := r.Get(context.Background(), "fresh")
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	assert.Equal(t, 0, r.evictIdle())
	assert.Equal(t, 1, r.Len())
}

func TestEvictIdle_KeepsSubscribedCarts(t *testing.T) {
	r := newTestRegistry(t, nil, time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	e, err := r.Get(context.Background(), "watched")
	require.NoError(t, err)
	var seen []cart.State
	cancel := e.Subscribe(func(st cart.State) { seen = append(seen, st) })

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, r.evictIdle())
	e.AddItem(lamp, 1)
	assert.Len(t, seen, 1)

	cancel()
	now = now.Add(30 * time.Second)
	assert.Equal(t, 0, r.evictIdle(), "idle time counts from the last subscribed tick")
	now = now.Add(time.Minute)
	assert.Equal(t, 1, r.evictIdle())
}

// gatedStore holds every save until release is closed.
type gatedStore struct {
	*cartstore.Memory
	release chan struct{}
}

func (s gatedStore) Save(ctx context.Context, key string, blob []byte) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Memory.Save(ctx, key, blob)
}

func TestGet_WaitsForEvictionFlush(t *testing.T) {
	store := gatedStore{Memory: cartstore.NewMemory(), release: make(chan struct{})}
	r := newTestRegistry(t, store, time.Minute)
	var once sync.Once
	release := func() { once.Do(func() { close(store.release) }) }
	t.Cleanup(release)

	now := time.Now()
	r.now = func() time.Time { return now }
	ctx := context.Background()

	e, err := r.Get(ctx, "s")
	require.NoError(t, err)
	e.AddItem(lamp, 2)
	now = now.Add(2 * time.Minute)

	evicted := make(chan int, 1)
	go func() { evicted <- r.evictIdle() }()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		en := r.sessions["s"]
		return en != nil && en.gone != nil
	}, time.Second, 5*time.Millisecond)

	got := make(chan *cart.Engine, 1)
	go func() {
		again, err := r.Get(ctx, "s")
		assert.NoError(t, err)
		got <- again
	}()
	select {
	case <-got:
		t.Fatal("cart restored before the evicted one was flushed")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	assert.Equal(t, 1, <-evicted)
	again := <-got
	require.NotNil(t, again)
	assert.NotSame(t, e, again)
	assert.Equal(t, 2, again.TotalItemCount())
}

func TestClose_FlushesAllAndRejects(t *testing.T) {
	store := cartstore.NewMemory()
	r := New(Options{Store: store, Key: "shop", TTL: time.Hour})
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		e, err := r.Get(ctx, id)
		require.NoError(t, err)
		e.AddItem(lamp, 1)
	}
	require.NoError(t, r.Close(ctx))
	require.NoError(t, r.Close(ctx))

	for _, key := range []string{"shop:a", "shop:b"} {
		_, err := store.Load(ctx, key)
		require.NoError(t, err)
	}
	_, err := r.Get(ctx, "c")
	require.Error(t, err)
}

func TestIDs(t *testing.T) {
	id := NewID()
	assert.True(t, Valid(id))
	assert.False(t, Valid("not-a-session"))
	assert.NotEqual(t, id, NewID())
}

func TestJanitorInterval(t *testing.T) {
	assert.Equal(t, time.Second, janitorInterval(time.Second))
	assert.Equal(t, 15*time.Second, janitorInterval(time.Minute))
	assert.Equal(t, time.Minute, janitorInterval(time.Hour))
}
