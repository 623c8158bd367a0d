package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/drstein77/storefront/internal/checkout"
	"github.com/drstein77/storefront/internal/commerce"
	"github.com/drstein77/storefront/internal/logger"
	"github.com/drstein77/storefront/internal/models"
	"github.com/drstein77/storefront/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRegistry(store *storage.MemoryStorage) *Registry {
	client := commerce.NewClient("http://127.0.0.1:0/graphql", time.Second, logger.NewNop())
	return NewRegistry(store, client, checkout.Options{Debounce: time.Hour}, logger.NewNop())
}

func newStore() *storage.MemoryStorage {
	return storage.NewMemoryStorage(context.Background(), nil, logger.NewNop())
}

func TestResolveIssuesIDForUnknownCookie(t *testing.T) {
	r := newRegistry(newStore())

	v, created := r.Resolve("")
	require.True(t, created)
	assert.NotEmpty(t, v.ID)

	again, created := r.Resolve(v.ID)
	assert.False(t, created)
	assert.Same(t, v, again)

	_, created = r.Resolve("../../etc/passwd")
	assert.True(t, created)
}

func TestCartIsRebuiltFromStorage(t *testing.T) {
	store := newStore()
	r := newRegistry(store)
	v, _ := r.Resolve("")
	require.NoError(t, v.Cart.Add(models.CartItem{ID: "A", Name: "Bike", Price: "$10.00"}))

	fresh := newRegistry(store)
	again, created := fresh.Resolve(v.ID)

	assert.False(t, created)
	assert.NotSame(t, v, again)
	assert.Equal(t, v.Cart.Items(), again.Cart.Items())
}

func TestCheckoutIsLazyAndDiscardable(t *testing.T) {
	r := newRegistry(newStore())
	v, _ := r.Resolve("")

	o := v.Checkout()
	assert.Same(t, o, v.Checkout())

	v.EndCheckout()
	assert.NotSame(t, o, v.Checkout())
	r.Close()
}

func TestPruneDropsIdleVisitors(t *testing.T) {
	r := newRegistry(newStore())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	idle, _ := r.Resolve("")
	idle.Checkout()
	now = now.Add(time.Hour)
	active, _ := r.Resolve("")

	assert.Equal(t, 1, r.Prune(30*time.Minute))
	assert.Equal(t, 1, r.Len())

	got, created := r.Resolve(active.ID)
	assert.False(t, created)
	assert.Same(t, active, got)
}

func TestPruneReleasesCachedStorage(t *testing.T) {
	store := newStore()
	r := newRegistry(store)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		v, _ := r.Resolve("")
		require.NoError(t, v.Cart.Add(models.CartItem{ID: "A", Name: "Bike", Price: "$10.00"}))
	}
	require.NotZero(t, store.Cached())

	now = now.Add(3 * time.Hour)
	assert.Equal(t, 5, r.Prune(time.Hour))
	assert.Zero(t, r.Len())
	assert.Zero(t, store.Cached())
}
