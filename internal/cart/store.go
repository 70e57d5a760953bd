// Package cart implements the buyer's persistent shopping cart: line items
// keyed by product, a store-summary cache, and the derived per-store views
// (totals, grouping, colors) recomputed on every read.
package cart

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/localstore"
)

// Storage keys. Lines and the store cache persist independently.
const (
	LinesKey  = "cart.lines"
	StoresKey = "cart.stores"
)

// Store is the single source of truth for what the buyer intends to
// purchase on this device. All mutation goes through its methods; every
// mutation rewrites the persisted line list and notifies subscribers.
type Store struct {
	mu      sync.RWMutex
	lines   []Line
	stores  map[string]StoreSummary
	storage localstore.Storage
	logger  *zap.Logger
	now     func() time.Time
	version uint64

	subMu    sync.Mutex
	subs     map[int]func(Summary)
	nextSub  int
	queued   uint64
	pending  *Summary
	draining bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for storage failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used to stamp new lines.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store and loads any previously persisted state from storage.
// A nil storage keeps the cart in memory only.
func New(storage localstore.Storage, opts ...Option) *Store {
	s := &Store{
		stores:  make(map[string]StoreSummary),
		storage: storage,
		logger:  zap.NewNop(),
		now:     time.Now,
		subs:    make(map[int]func(Summary)),
	}
	for _, o := range opts {
		o(s)
	}
	s.load()
	return s
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// AddItem adds qty of p, incrementing the existing line if there is one.
// A non-positive qty is treated as 1. If p embeds a store summary, the
// store cache is refreshed as a side effect.
func (s *Store) AddItem(p Product, qty int) {
	if p.ID == "" {
		s.logger.Warn("ignoring cart add without product id")
		return
	}
	if qty < 1 {
		qty = 1
	}
	if p.StoreID == "" && p.Store != nil {
		p.StoreID = p.Store.ID
	}

	s.mutate(func() (bool, bool) {
		storesChanged := false
		if p.Store != nil && p.Store.ID != "" {
			s.stores[p.Store.ID] = *p.Store
			storesChanged = true
		}
		if i := s.indexOf(p.ID); i >= 0 {
			s.lines[i].Quantity += qty
			return true, storesChanged
		}
		s.lines = append(s.lines, Line{Product: p, Quantity: qty, AddedAt: s.now()})
		return true, storesChanged
	})
}

// RemoveItem deletes the line for productID. Removing an absent id is a no-op.
func (s *Store) RemoveItem(productID string) {
	s.RemoveItems(productID)
}

// RemoveItems deletes every listed line in one mutation.
func (s *Store) RemoveItems(productIDs ...string) {
	if len(productIDs) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		drop[id] = struct{}{}
	}
	s.mutate(func() (bool, bool) {
		kept := s.lines[:0:0]
		for _, l := range s.lines {
			if _, ok := drop[l.Product.ID]; !ok {
				kept = append(kept, l)
			}
		}
		changed := len(kept) != len(s.lines)
		s.lines = kept
		return changed, false
	})
}

// UpdateQuantity replaces the quantity of an existing line. A quantity of
// zero or less removes the line.
func (s *Store) UpdateQuantity(productID string, qty int) {
	if qty <= 0 {
		s.RemoveItem(productID)
		return
	}
	s.mutate(func() (bool, bool) {
		i := s.indexOf(productID)
		if i < 0 || s.lines[i].Quantity == qty {
			return false, false
		}
		s.lines[i].Quantity = qty
		return true, false
	})
}

// IncrementQuantity adds one to an existing line.
func (s *Store) IncrementQuantity(productID string) {
	s.step(productID, 1)
}

// DecrementQuantity subtracts one from an existing line, removing it when
// it would drop below 1.
func (s *Store) DecrementQuantity(productID string) {
	s.step(productID, -1)
}

func (s *Store) step(productID string, delta int) {
	s.mutate(func() (bool, bool) {
		i := s.indexOf(productID)
		if i < 0 {
			return false, false
		}
		q := s.lines[i].Quantity + delta
		if q < 1 {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			return true, false
		}
		s.lines[i].Quantity = q
		return true, false
	})
}

// Clear empties the cart. The store-summary cache is kept.
func (s *Store) Clear() {
	s.mutate(func() (bool, bool) {
		if len(s.lines) == 0 {
			return false, false
		}
		s.lines = nil
		return true, false
	})
}

// mutate runs fn under the write lock. When fn reports a change the lines
// (and, if flagged, the store cache) are persisted and subscribers are
// notified after the lock is released.
func (s *Store) mutate(fn func() (changed, storesChanged bool)) {
	s.mu.Lock()
	changed, storesChanged := fn()
	if storesChanged {
		s.persist(StoresKey, s.stores)
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	s.persistLines()
	s.version++
	version := s.version
	sum := Summarize(s.copyLines(), s.copyStores())
	s.mu.Unlock()

	s.notify(version, sum)
}

func (s *Store) indexOf(productID string) int {
	for i := range s.lines {
		if s.lines[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Derived views
// ---------------------------------------------------------------------------

// Lines returns a copy of the lines in insertion order.
func (s *Store) Lines() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLines()
}

// Summary returns every derived view from one consistent read.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summarize(s.copyLines(), s.copyStores())
}

// ItemCount is the sum of all quantities.
func (s *Store) ItemCount() int { return s.Summary().ItemCount }

// TotalPrice is the sum of price x quantity over all lines.
func (s *Store) TotalPrice() int64 { return s.Summary().TotalPrice }

// StoreCount is the number of distinct stores in the cart.
func (s *Store) StoreCount() int { return s.Summary().StoreCount }

// HasMultipleStores reports whether the cart spans more than one store.
func (s *Store) HasMultipleStores() bool { return s.Summary().HasMultipleStores }

// Groups returns the per-store breakdown.
func (s *Store) Groups() []Group { return s.Summary().Groups }

// ProductIDs returns the product ids in line order.
func (s *Store) ProductIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.lines))
	for i, l := range s.lines {
		ids[i] = l.Product.ID
	}
	return ids
}

// Contains reports whether productID has a line.
func (s *Store) Contains(productID string) bool {
	return s.Quantity(productID) > 0
}

// Quantity returns the quantity for productID, or 0 when absent.
func (s *Store) Quantity(productID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(productID); i >= 0 {
		return s.lines[i].Quantity
	}
	return 0
}

// StoreSummary returns the cached summary for a store id.
func (s *Store) StoreSummary(storeID string) (StoreSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.stores[storeID]
	return sum, ok
}

func (s *Store) copyLines() []Line {
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) copyStores() map[string]StoreSummary {
	out := make(map[string]StoreSummary, len(s.stores))
	for k, v := range s.stores {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Change notification
// ---------------------------------------------------------------------------

// Subscribe registers fn to receive the fresh Summary after every mutation
// that changed the cart. Deliveries are serialized and never go backwards:
// when mutations race, a summary older than one already delivered is
// dropped, and the last summary delivered is always the current cart. fn may
// mutate the Store; the resulting summary is delivered after fn returns.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Summary)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// notify queues the summary of the given mutation version. Whichever
// caller finds no delivery in progress drains the queue, so at most one
// goroutine runs subscribers at a time and only the newest queued summary
// is handed out.
func (s *Store) notify(version uint64, sum Summary) {
	s.subMu.Lock()
	if version <= s.queued {
		s.subMu.Unlock()
		return
	}
	s.queued = version
	s.pending = &sum
	if s.draining {
		s.subMu.Unlock()
		return
	}

	s.draining = true
	for s.pending != nil {
		next := *s.pending
		s.pending = nil
		fns := make([]func(Summary), 0, len(s.subs))
		for i := 0; i < s.nextSub; i++ {
			if fn, ok := s.subs[i]; ok {
				fns = append(fns, fn)
			}
		}

		s.subMu.Unlock()
		for _, fn := range fns {
			fn(next)
		}
		s.subMu.Lock()
	}
	s.draining = false
	s.subMu.Unlock()
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// storedLine is the on-disk form of a Line. AddedAt is kept as RFC 3339
// text and parsed back on load.
type storedLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
	AddedAt  string  `json:"addedAt"`
}

func (s *Store) persistLines() {
	out := make([]storedLine, len(s.lines))
	for i, l := range s.lines {
		out[i] = storedLine{
			Product:  l.Product,
			Quantity: l.Quantity,
			AddedAt:  l.AddedAt.Format(time.RFC3339Nano),
		}
	}
	s.persist(LinesKey, out)
}

func (s *Store) persist(key string, v any) {
	if s.storage == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("encoding cart state", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.storage.Set(key, data); err != nil {
		s.logger.Warn("persisting cart state", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) load() {
	if s.storage == nil {
		return
	}

	if data, ok := s.read(StoresKey); ok {
		var stores map[string]StoreSummary
		if err := json.Unmarshal(data, &stores); err != nil {
			s.logger.Warn("decoding store cache", zap.Error(err))
		} else {
			for k, v := range stores {
				s.stores[k] = v
			}
		}
	}

	data, ok := s.read(LinesKey)
	if !ok {
		return
	}
	var stored []storedLine
	if err := json.Unmarshal(data, &stored); err != nil {
		s.logger.Warn("decoding cart lines", zap.Error(err))
		return
	}

	loadedAt := s.now()
	for _, sl := range stored {
		if sl.Product.ID == "" || sl.Quantity < 1 {
			s.logger.Warn("dropping invalid stored cart line",
				zap.String("product_id", sl.Product.ID), zap.Int("quantity", sl.Quantity))
			continue
		}
		if i := s.indexOf(sl.Product.ID); i >= 0 {
			s.lines[i].Quantity += sl.Quantity
			continue
		}
		addedAt, err := time.Parse(time.RFC3339Nano, sl.AddedAt)
		if err != nil {
			s.logger.Warn("unparseable cart line timestamp",
				zap.String("product_id", sl.Product.ID), zap.String("added_at", sl.AddedAt))
			addedAt = loadedAt
		}
		s.lines = append(s.lines, Line{Product: sl.Product, Quantity: sl.Quantity, AddedAt: addedAt})
	}
}

func (s *Store) read(key string) ([]byte, bool) {
	data, err := s.storage.Get(key)
	if err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			s.logger.Warn("reading cart state", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}
