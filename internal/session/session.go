// Package session keeps the per-visitor state the browser owned in a
// client-rendered storefront: cart, notices, remote session and checkout.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drstein77/storefront/internal/cart"
	"github.com/drstein77/storefront/internal/checkout"
	"github.com/drstein77/storefront/internal/commerce"
	"github.com/drstein77/storefront/internal/notify"
	"github.com/drstein77/storefront/internal/storage"
)

// CookieName identifies the visitor between requests.
const CookieName = "storefront_session"

type Log interface {
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)
}

type Visitor struct {
	ID      string
	Cart    *cart.Store
	Notices *notify.Queue
	API     *commerce.Session

	opts checkout.Options
	log  Log

	mu       sync.Mutex
	checkout *checkout.Orchestrator
	lastSeen time.Time
}

// Checkout returns the visitor's checkout session, creating it on first use.
func (v *Visitor) Checkout() *checkout.Orchestrator {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.checkout == nil {
		v.checkout = checkout.New(v.API, v.Cart, v.Notices, v.log, v.opts)
	}
	return v.checkout
}

// EndCheckout discards the checkout session; the next checkout view starts fresh.
func (v *Visitor) EndCheckout() {
	v.mu.Lock()
	o := v.checkout
	v.checkout = nil
	v.mu.Unlock()
	if o != nil {
		o.Close()
	}
}

func (v *Visitor) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *Visitor) idleSince(now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return now.Sub(v.lastSeen)
}

// Registry maps visitor ids to live visitors. Evicted visitors are rebuilt
// from local storage on their next request.
type Registry struct {
	mu       sync.RWMutex
	visitors map[string]*Visitor

	storage *storage.MemoryStorage
	client  *commerce.Client
	opts    checkout.Options
	log     Log
	now     func() time.Time
}

func NewRegistry(store *storage.MemoryStorage, client *commerce.Client, opts checkout.Options, log Log) *Registry {
	return &Registry{
		visitors: make(map[string]*Visitor),
		storage:  store,
		client:   client,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// Resolve returns the visitor for id. An unknown or malformed id gets a new
// visitor; created reports whether the caller must issue a new cookie.
func (r *Registry) Resolve(id string) (v *Visitor, created bool) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
		created = true
	}

	r.mu.RLock()
	v, ok := r.visitors[id]
	r.mu.RUnlock()
	if ok {
		v.touch(r.now())
		return v, created
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok = r.visitors[id]; ok {
		v.touch(r.now())
		return v, created
	}
	v = r.build(id)
	r.visitors[id] = v
	return v, created
}

func (r *Registry) build(id string) *Visitor {
	scope := r.storage.Scope(id)
	notices := notify.NewQueue()
	store := cart.NewStore(scope, notices, r.log)
	store.Load()
	return &Visitor{
		ID:       id,
		Cart:     store,
		Notices:  notices,
		API:      r.client.Session(commerce.NewLocalTokens(scope)),
		opts:     r.opts,
		log:      r.log,
		lastSeen: r.now(),
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.visitors)
}

// Prune drops visitors idle for longer than idle, releases their cached
// storage and returns how many went.
func (r *Registry) Prune(idle time.Duration) int {
	now := r.now()
	var gone []*Visitor

	r.mu.Lock()
	for id, v := range r.visitors {
		if v.idleSince(now) > idle {
			delete(r.visitors, id)
			gone = append(gone, v)
		}
	}
	r.mu.Unlock()

	for _, v := range gone {
		v.EndCheckout()
		r.storage.Scope(v.ID).Evict()
	}
	if len(gone) > 0 {
		r.log.Info("pruned idle visitors", zap.Int("count", len(gone)), zap.Int("cached_keys", r.storage.Cached()))
	}
	return len(gone)
}

// Close ends every open checkout session.
func (r *Registry) Close() {
	r.mu.Lock()
	visitors := r.visitors
	r.visitors = make(map[string]*Visitor)
	r.mu.Unlock()

	for _, v := range visitors {
		v.EndCheckout()
	}
}
