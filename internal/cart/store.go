package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/drstein77/storefront/internal/models"
	"github.com/drstein77/storefront/internal/notify"
)

// StorageKey is the local storage key the item sequence is saved under.
const StorageKey = "cart"

var ErrMissingID = errors.New("cart item has no id")

type Log interface {
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)
}

// LocalStorage is the browser-style storage the cart persists to.
type LocalStorage interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
}

// Snapshot is an immutable copy of the cart handed to subscribers and views.
type Snapshot struct {
	Items        []models.CartItem
	MiniCartOpen bool
}

func (s Snapshot) Count() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

func (s Snapshot) Subtotal() decimal.Decimal {
	return Subtotal(s.Items)
}

func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// Subtotal sums parsed unit price times quantity.
func Subtotal(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(ParsePrice(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// Store owns one visitor's cart. Every mutation is a single locked transition;
// after Load, each one rewrites the persisted item sequence.
type Store struct {
	mu           sync.Mutex
	items        []models.CartItem
	miniCartOpen bool
	loaded       bool

	storage  LocalStorage
	notifier notify.Notifier
	log      Log

	subs    map[int]func(Snapshot)
	nextSub int
}

func NewStore(storage LocalStorage, notifier notify.Notifier, log Log) *Store {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Store{
		storage:  storage,
		notifier: notifier,
		log:      log,
		subs:     make(map[int]func(Snapshot)),
	}
}

// Load seeds the cart from storage. It runs once; later calls are no-ops.
// Unreadable data leaves the cart empty.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}
	s.loaded = true

	raw, ok := s.storage.GetItem(StorageKey)
	if !ok || raw == "" {
		return
	}
	items, err := decodeItems(raw)
	if err != nil {
		s.log.Warn("discarding unreadable cart", zap.Error(err))
		return
	}
	s.items = items
}

// Add puts one unit of item in the cart and opens the mini-cart.
// item.Quantity is ignored.
func (s *Store) Add(item models.CartItem) error {
	if item.ID == "" {
		return ErrMissingID
	}
	s.mutate(func() {
		for i := range s.items {
			if s.items[i].ID == item.ID {
				s.items[i].Quantity++
				s.miniCartOpen = true
				return
			}
		}
		item.Quantity = 1
		s.items = append(s.items, item)
		s.miniCartOpen = true
	})
	return nil
}

// UpdateQuantity sets the quantity of id; anything below 1 removes the item.
func (s *Store) UpdateQuantity(id string, quantity int) {
	if quantity < 1 {
		s.Remove(id)
		return
	}
	s.mutate(func() {
		for i := range s.items {
			if s.items[i].ID == id {
				s.items[i].Quantity = quantity
				return
			}
		}
	})
}

// Remove deletes id and tells the visitor once the lock is released.
// Unknown ids are ignored.
func (s *Store) Remove(id string) {
	var removed *models.CartItem
	s.mutate(func() {
		for i := range s.items {
			if s.items[i].ID != id {
				continue
			}
			item := s.items[i]
			removed = &item
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return
		}
	})
	if removed != nil {
		s.notifier.Notify(notify.LevelError, fmt.Sprintf("\"%s\" removed from cart.", removed.Name))
	}
}

func (s *Store) Clear() {
	s.mutate(func() {
		s.items = nil
	})
}

func (s *Store) OpenMiniCart() {
	s.mutate(func() { s.miniCartOpen = true })
}

func (s *Store) CloseMiniCart() {
	s.mutate(func() { s.miniCartOpen = false })
}

func (s *Store) MiniCartOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.miniCartOpen
}

// Items returns a copy of the item sequence in insertion order.
func (s *Store) Items() []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to run after every mutation. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) mutate(change func()) {
	s.mu.Lock()
	change()
	if s.loaded {
		s.persistLocked()
	}
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) persistLocked() {
	items := s.items
	if items == nil {
		items = []models.CartItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		s.log.Error("cannot encode cart", zap.Error(err))
		return
	}
	if err := s.storage.SetItem(StorageKey, string(data)); err != nil {
		s.log.Error("cannot persist cart", zap.Error(err))
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Items: cloneItems(s.items), MiniCartOpen: s.miniCartOpen}
}

// decodeItems parses the persisted sequence, dropping entries that could not
// have been written by the store.
func decodeItems(raw string) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if it.ID == "" || it.Quantity < 1 || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out, nil
}

func cloneItems(items []models.CartItem) []models.CartItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]models.CartItem, len(items))
	copy(out, items)
	return out
}
