package storage

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrNotFound indicates that a key has no stored value.
var ErrNotFound = errors.New("not found")

type Log interface {
	Info(string, ...zap.Field)
	Error(string, ...zap.Field)
}

// Keeper persists key/value pairs behind the in-memory cache.
type Keeper interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(context.Context) bool
	Close() bool
}

// MemoryStorage is a write-through cache over an optional Keeper.
// Reads are served from memory once a key has been seen.
type MemoryStorage struct {
	ctx context.Context
	mx  sync.RWMutex

	data    map[string]string
	missing map[string]struct{}

	keeper Keeper
	log    Log
}

// NewMemoryStorage creates a new MemoryStorage instance. keeper may be nil,
// in which case values live for the lifetime of the process only.
func NewMemoryStorage(ctx context.Context, keeper Keeper, log Log) *MemoryStorage {
	return &MemoryStorage{
		ctx:     ctx,
		data:    make(map[string]string),
		missing: make(map[string]struct{}),
		keeper:  keeper,
		log:     log,
	}
}

// Get returns the value stored under key or ErrNotFound.
func (s *MemoryStorage) Get(key string) (string, error) {
	s.mx.RLock()
	if v, ok := s.data[key]; ok {
		s.mx.RUnlock()
		return v, nil
	}
	_, known := s.missing[key]
	s.mx.RUnlock()

	if known || s.keeper == nil {
		return "", ErrNotFound
	}

	v, err := s.keeper.Get(s.ctx, key)
	s.mx.Lock()
	defer s.mx.Unlock()
	switch {
	case errors.Is(err, ErrNotFound):
		s.missing[key] = struct{}{}
		return "", ErrNotFound
	case err != nil:
		s.log.Error("cannot load value", zap.String("key", key), zap.Error(err))
		return "", err
	}
	// a concurrent Set wins over what the keeper returned
	if cur, ok := s.data[key]; ok {
		return cur, nil
	}
	s.data[key] = v
	return v, nil
}

// Set stores value under key and writes it through to the keeper.
func (s *MemoryStorage) Set(key, value string) error {
	s.mx.Lock()
	s.data[key] = value
	delete(s.missing, key)
	s.mx.Unlock()

	if s.keeper == nil {
		return nil
	}
	if err := s.keeper.Put(s.ctx, key, value); err != nil {
		s.log.Error("cannot persist value", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Delete removes key from memory and from the keeper.
func (s *MemoryStorage) Delete(key string) error {
	s.mx.Lock()
	delete(s.data, key)
	s.missing[key] = struct{}{}
	s.mx.Unlock()

	if s.keeper == nil {
		return nil
	}
	if err := s.keeper.Delete(s.ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Error("cannot delete value", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Forget drops every cached key under prefix, found or missing. The keeper is
// untouched, so later reads load the values again; without a keeper they are gone.
func (s *MemoryStorage) Forget(prefix string) int {
	s.mx.Lock()
	defer s.mx.Unlock()
	n := 0
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			delete(s.data, key)
			n++
		}
	}
	for key := range s.missing {
		if strings.HasPrefix(key, prefix) {
			delete(s.missing, key)
			n++
		}
	}
	return n
}

// Cached reports how many keys, found or missing, are held in memory.
func (s *MemoryStorage) Cached() int {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return len(s.data) + len(s.missing)
}

// Ping reports whether the backing keeper is reachable. Memory-only storage is always up.
func (s *MemoryStorage) Ping(ctx context.Context) bool {
	if s.keeper == nil {
		return true
	}
	return s.keeper.Ping(ctx)
}

// Close releases the keeper.
func (s *MemoryStorage) Close() bool {
	if s.keeper == nil {
		return true
	}
	return s.keeper.Close()
}

// Scope returns the local storage of a single visitor. Keys written through
// the scope are prefixed with the visitor id.
func (s *MemoryStorage) Scope(id string) *Scope {
	return &Scope{parent: s, prefix: id + "/"}
}

// Scope is a browser-style localStorage view over MemoryStorage.
type Scope struct {
	parent *MemoryStorage
	prefix string
}

// GetItem returns the value and whether it was present. Keeper failures read as absent.
func (sc *Scope) GetItem(key string) (string, bool) {
	v, err := sc.parent.Get(sc.key(key))
	if err != nil {
		return "", false
	}
	return v, true
}

func (sc *Scope) SetItem(key, value string) error {
	return sc.parent.Set(sc.key(key), value)
}

func (sc *Scope) RemoveItem(key string) error {
	return sc.parent.Delete(sc.key(key))
}

// Evict releases the scope's cached keys from memory.
func (sc *Scope) Evict() {
	sc.parent.Forget(sc.prefix)
}

func (sc *Scope) key(k string) string {
	return sc.prefix + strings.TrimSpace(k)
}
