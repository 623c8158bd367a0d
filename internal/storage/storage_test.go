package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drstein77/storefront/internal/logger"
)

type fakeKeeper struct {
	mu     sync.Mutex
	values map[string]string
	gets   int
	putErr error
}

func newFakeKeeper() *fakeKeeper {
	return &fakeKeeper{values: make(map[string]string)}
}

func (k *fakeKeeper) Get(_ context.Context, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.gets++
	v, ok := k.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (k *fakeKeeper) Put(_ context.Context, key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.putErr != nil {
		return k.putErr
	}
	k.values[key] = value
	return nil
}

func (k *fakeKeeper) Delete(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.values, key)
	return nil
}

func (k *fakeKeeper) Ping(context.Context) bool { return true }
func (k *fakeKeeper) Close() bool               { return true }

func TestMemoryOnly(t *testing.T) {
	s := NewMemoryStorage(context.Background(), nil, logger.NewNop())

	_, err := s.Get("cart")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set("cart", "[]"))
	v, err := s.Get("cart")
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	require.NoError(t, s.Delete("cart"))
	_, err = s.Get("cart")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWriteThroughAndReadBack(t *testing.T) {
	k := newFakeKeeper()
	s := NewMemoryStorage(context.Background(), k, logger.NewNop())
	require.NoError(t, s.Set("a/cart", `[{"id":"x"}]`))
	assert.Equal(t, `[{"id":"x"}]`, k.values["a/cart"])

	// a fresh cache reads from the keeper once, then from memory
	fresh := NewMemoryStorage(context.Background(), k, logger.NewNop())
	for i := 0; i < 3; i++ {
		v, err := fresh.Get("a/cart")
		require.NoError(t, err)
		assert.Equal(t, `[{"id":"x"}]`, v)
	}
	assert.Equal(t, 1, k.gets)
}

func TestMissingKeysAreRemembered(t *testing.T) {
	k := newFakeKeeper()
	s := NewMemoryStorage(context.Background(), k, logger.NewNop())
	for i := 0; i < 2; i++ {
		_, err := s.Get("nobody/cart")
		require.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, k.gets)
}

func TestSetKeepsMemoryWhenKeeperFails(t *testing.T) {
	k := newFakeKeeper()
	k.putErr = errors.New("disk full")
	s := NewMemoryStorage(context.Background(), k, logger.NewNop())

	require.Error(t, s.Set("cart", "[]"))
	v, err := s.Get("cart")
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestScopesAreIsolated(t *testing.T) {
	s := NewMemoryStorage(context.Background(), nil, logger.NewNop())
	alice, bob := s.Scope("alice"), s.Scope("bob")

	require.NoError(t, alice.SetItem("cart", "A"))
	_, ok := bob.GetItem("cart")
	assert.False(t, ok)

	v, ok := alice.GetItem("cart")
	require.True(t, ok)
	assert.Equal(t, "A", v)

	require.NoError(t, alice.RemoveItem("cart"))
	_, ok = alice.GetItem("cart")
	assert.False(t, ok)
}

func TestEvictReleasesOnlyThatScope(t *testing.T) {
	k := newFakeKeeper()
	s := NewMemoryStorage(context.Background(), k, logger.NewNop())
	alice, bob := s.Scope("alice"), s.Scope("bob")

	require.NoError(t, alice.SetItem("cart", "A"))
	_, ok := alice.GetItem("woo-session")
	require.False(t, ok)
	require.NoError(t, bob.SetItem("cart", "B"))
	require.Equal(t, 3, s.Cached())

	alice.Evict()
	assert.Equal(t, 1, s.Cached())

	// the keeper still has the value, so the next read loads it again
	v, ok := alice.GetItem("cart")
	require.True(t, ok)
	assert.Equal(t, "A", v)

	v, ok = bob.GetItem("cart")
	require.True(t, ok)
	assert.Equal(t, "B", v)
}
