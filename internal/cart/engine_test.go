package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

type stubStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	saves   int
	loadErr error
	saveErr error
	block   chan struct{}
}

func newStubStore() *stubStore {
	return &stubStore{blobs: map[string][]byte{}}
}

func (s *stubStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	blob, ok := s.blobs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return blob, nil
}

func (s *stubStore) Save(_ context.Context, key string, blob []byte) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.blobs[key] = blob
	return nil
}

func (s *stubStore) blob(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[key]
}

func product(id string, price int64, stock int) domain.Product {
	return domain.Product{
		ID:       id,
		Title:    "Product " + id,
		Category: "tools",
		Price:    decimal.NewFromInt(price),
		Stock:    stock,
	}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "amount: want %s, got %s", want, got)
}

func quantityOf(e *Engine, id string) int {
	for _, l := range e.Items() {
		if l.ProductID == id {
			return l.Quantity
		}
	}
	return 0
}

func TestEngine_SingleProductScenario(t *testing.T) {
	e := New(Options{})
	p1 := product("P1", 100, 5)

	e.AddItem(p1, 1)
	assert.Equal(t, 1, quantityOf(e, "P1"))
	assertAmount(t, "100", e.TotalPrice())

	e.AddItem(p1, 10)
	assert.Equal(t, 5, quantityOf(e, "P1"))
	assertAmount(t, "500", e.TotalPrice())

	for range 4 {
		e.DecreaseQuantity("P1")
	}
	assert.Equal(t, 1, quantityOf(e, "P1"))
	assertAmount(t, "100", e.TotalPrice())

	e.DecreaseQuantity("P1")
	assert.Equal(t, 1, quantityOf(e, "P1"))

	e.RemoveItem("P1")
	assert.Empty(t, e.Items())
	assert.Equal(t, 0, e.TotalItemCount())
	assertAmount(t, "0", e.TotalPrice())
}

func TestEngine_TwoProductTotals(t *testing.T) {
	e := New(Options{})
	e.AddItem(product("P1", 100, 10), 2)
	e.AddItem(product("P2", 250, 10), 1)

	assert.Equal(t, 3, e.TotalItemCount())
	assertAmount(t, "450", e.TotalPrice())
}

func TestEngine_AddMergesAndClampsToStock(t *testing.T) {
	cases := []struct {
		name      string
		stock     int
		requested []int
		want      int
	}{
		{name: "under stock", stock: 10, requested: []int{2, 3}, want: 5},
		{name: "exactly stock", stock: 5, requested: []int{2, 3}, want: 5},
		{name: "over stock", stock: 4, requested: []int{3, 3, 3}, want: 4},
		{name: "first add over stock", stock: 2, requested: []int{7}, want: 2},
		{name: "non-positive counts as one", stock: 5, requested: []int{0, -3}, want: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := New(Options{})
			p := product("P", 10, tc.stock)
			for _, q := range tc.requested {
				e.AddItem(p, q)
			}
			require.Len(t, e.Items(), 1)
			assert.Equal(t, tc.want, quantityOf(e, "P"))
		})
	}
}

func TestEngine_AddIgnoresOutOfStockAndEmptyID(t *testing.T) {
	e := New(Options{})
	e.AddItem(product("P1", 100, 0), 1)
	e.AddItem(product("", 100, 3), 1)
	assert.Empty(t, e.Items())
}

func TestEngine_ReAddKeepsCapturedSnapshot(t *testing.T) {
	e := New(Options{})
	e.AddItem(product("P1", 100, 3), 1)

	changed := product("P1", 999, 50)
	changed.Title = "Renamed"
	e.AddItem(changed, 10)

	items := e.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 3, items[0].Stock)
	assert.Equal(t, "Product P1", items[0].Title)
	assertAmount(t, "300", e.TotalPrice())
}

func TestEngine_IncreaseStopsAtStock(t *testing.T) {
	e := New(Options{})
	e.AddItem(product("P1", 1, 2), 1)
	e.IncreaseQuantity("P1")
	e.IncreaseQuantity("P1")
	e.IncreaseQuantity("P1")
	assert.Equal(t, 2, quantityOf(e, "P1"))
}

func TestEngine_UnknownIDsAreNoOps(t *testing.T) {
	e := New(Options{})
	e.AddItem(product("P1", 100, 5), 2)
	before := e.Snapshot()

	e.RemoveItem("missing")
	e.IncreaseQuantity("missing")
	e.DecreaseQuantity("missing")

	after := e.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.Items, after.Items)
}

func TestEngine_PreservesInsertionOrder(t *testing.T) {
	e := New(Options{})
	e.AddItem(product("C", 1, 5), 1)
	e.AddItem(product("A", 1, 5), 1)
	e.AddItem(product("B", 1, 5), 1)
	e.AddItem(product("A", 1, 5), 1)
	e.RemoveItem("C")
	e.AddItem(product("C", 1, 5), 1)

	var ids []string
	for _, l := range e.Items() {
		ids = append(ids, l.ProductID)
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)
}

func TestEngine_ClearKeepsOpenFlag(t *testing.T) {
	e := New(Options{})
	e.AddItem(product("P1", 100, 5), 2)
	e.AddItem(product("P2", 50, 5), 1)
	e.SetOpen(true)

	e.Clear()

	assert.Empty(t, e.Items())
	assert.Equal(t, 0, e.TotalItemCount())
	assertAmount(t, "0", e.TotalPrice())
	assert.True(t, e.IsOpen())
}

func TestEngine_OpenToggle(t *testing.T) {
	e := New(Options{})
	assert.False(t, e.IsOpen())
	e.ToggleOpen()
	assert.True(t, e.IsOpen())
	e.SetOpen(true)
	assert.True(t, e.IsOpen())
	e.ToggleOpen()
	assert.False(t, e.IsOpen())
}

func TestEngine_AddDoesNotOpenCart(t *testing.T) {
	e := New(Options{})
	e.AddItem(product("P1", 100, 5), 1)
	assert.False(t, e.IsOpen())
}

func TestEngine_TotalPriceIsExact(t *testing.T) {
	e := New(Options{})
	p := domain.Product{ID: "P", Title: "Dime", Price: decimal.RequireFromString("0.1"), Stock: 1000}
	for range 30 {
		e.AddItem(p, 3)
		e.DecreaseQuantity("P")
		e.DecreaseQuantity("P")
	}
	assert.Equal(t, 31, e.TotalItemCount())
	assertAmount(t, "3.1", e.TotalPrice())
}

func TestEngine_SubscribersSeeEveryChange(t *testing.T) {
	e := New(Options{})
	var got []State
	cancel := e.Subscribe(func(st State) { got = append(got, st) })

	e.AddItem(product("P1", 100, 2), 1)
	e.IncreaseQuantity("P1")
	e.IncreaseQuantity("P1") // at stock, no change
	e.SetOpen(true)
	e.SetOpen(true) // unchanged

	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].TotalItemCount)
	assert.Equal(t, 2, got[1].TotalItemCount)
	assertAmount(t, "200", got[1].TotalPrice)
	assert.True(t, got[2].IsOpen)
	assert.Less(t, got[0].Version, got[1].Version)
	assert.Less(t, got[1].Version, got[2].Version)

	cancel()
	e.Clear()
	assert.Len(t, got, 3)
	assert.Equal(t, 0, e.Subscribers())
}

func TestEngine_SubscribersCount(t *testing.T) {
	e := New(Options{})
	first := e.Subscribe(func(State) {})
	second := e.Subscribe(func(State) {})
	assert.Equal(t, 2, e.Subscribers())
	first()
	first()
	assert.Equal(t, 1, e.Subscribers())
	second()
	assert.Equal(t, 0, e.Subscribers())
}

func TestEngine_SubscriberMayCallBack(t *testing.T) {
	e := New(Options{})
	var counts []int
	e.Subscribe(func(st State) { counts = append(counts, e.TotalItemCount()) })
	e.AddItem(product("P1", 1, 5), 2)
	assert.Equal(t, []int{2}, counts)
}

func TestEngine_ConcurrentAddsAreAtomic(t *testing.T) {
	e := New(Options{})
	p := product("P1", 3, 1000)

	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.AddItem(p, 2)
		}()
	}
	wg.Wait()

	assert.Equal(t, 128, e.TotalItemCount())
	assertAmount(t, "384", e.TotalPrice())
	assert.Equal(t, uint64(64), e.Snapshot().Version)
}

func TestEngine_PersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()

	e := New(Options{Store: store, Key: "cart"})
	e.AddItem(product("P1", 100, 5), 2)
	e.AddItem(product("P2", 250, 1), 1)
	e.SetOpen(true)
	require.NoError(t, e.Close(ctx))

	require.NotEmpty(t, store.blob("cart"))

	restored := New(Options{Store: store, Key: "cart"})
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, e.Items()[0].ProductID, restored.Items()[0].ProductID)
	assert.Equal(t, 3, restored.TotalItemCount())
	assertAmount(t, "450", restored.TotalPrice())
	assert.False(t, restored.IsOpen(), "open flag is not persisted")
	require.NoError(t, restored.Close(ctx))
}

func TestEngine_RestoreEmptySlot(t *testing.T) {
	e := New(Options{Store: newStubStore(), Key: "cart"})
	require.NoError(t, e.Restore(context.Background()))
	assert.Empty(t, e.Items())
}

func TestEngine_RestoreErrorsLeaveCartEmpty(t *testing.T) {
	store := newStubStore()
	store.loadErr = errors.New("quota")
	e := New(Options{Store: store, Key: "cart"})
	err := e.Restore(context.Background())
	require.Error(t, err)
	assert.Empty(t, e.Items())

	store = newStubStore()
	store.blobs["cart"] = []byte("{not json")
	e = New(Options{Store: store, Key: "cart"})
	require.Error(t, e.Restore(context.Background()))
	assert.Empty(t, e.Items())
}

func TestEngine_PersistFailureIsSwallowed(t *testing.T) {
	store := newStubStore()
	store.saveErr = errors.New("quota exceeded")
	failures := make(chan error, 8)

	e := New(Options{Store: store, Key: "cart", OnPersistError: func(err error) { failures <- err }})
	e.AddItem(product("P1", 100, 5), 2)
	assert.Equal(t, 2, e.TotalItemCount())

	select {
	case err := <-failures:
		assert.EqualError(t, err, "quota exceeded")
	case <-time.After(2 * time.Second):
		t.Fatal("expected persist failure to be reported")
	}
	assert.Equal(t, 2, e.TotalItemCount())
	require.NoError(t, e.Close(context.Background()))
}

func TestEngine_MutationDoesNotWaitForPersistence(t *testing.T) {
	store := newStubStore()
	store.block = make(chan struct{})
	e := New(Options{Store: store, Key: "cart"})

	done := make(chan struct{})
	go func() {
		e.AddItem(product("P1", 100, 5), 1)
		e.AddItem(product("P1", 100, 5), 1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutation blocked on persistence")
	}
	assert.Equal(t, 2, e.TotalItemCount())

	close(store.block)
	require.NoError(t, e.Close(context.Background()))

	lines, err := Decode(store.blob("cart"))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity, "latest snapshot wins")
}

func TestEngine_NoOpsDoNotPersist(t *testing.T) {
	store := newStubStore()
	e := New(Options{Store: store, Key: "cart"})
	e.RemoveItem("missing")
	e.Clear()
	e.SetOpen(true)
	require.NoError(t, e.Close(context.Background()))
	assert.Equal(t, 0, store.saves)
}
