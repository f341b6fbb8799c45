// Package snapshot owns the single local representation of the active cart.
// Every commit is a wholesale replace from an authoritative server response;
// nothing in this module ever patches individual fields.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/marisol-labs/storefront-core/internal/domain"
	"github.com/marisol-labs/storefront-core/internal/kv"
	pkgerrors "github.com/marisol-labs/storefront-core/pkg/errors"
)

// EventKind tells observers what changed.
type EventKind int

const (
	// Replaced fires on every wholesale commit.
	Replaced EventKind = iota
	// Cleared fires when the cart is discarded or completed.
	Cleared
)

// Event is delivered to subscribers on replace/clear, never on field writes.
type Event struct {
	Kind EventKind
	Cart *domain.Cart
}

// Store is the sole owner of the current cart. All other components operate
// on read copies or issue mutation requests through the orchestrator.
type Store struct {
	mu         sync.RWMutex
	cart       *domain.Cart
	unverified bool

	subMu sync.Mutex
	subs  map[int]chan Event
	next  int

	slot    kv.Store
	slotKey string
}

// New builds a store persisting to the given durable slot. A nil slot is
// allowed; Persist and Restore become no-ops then.
func New(slot kv.Store, slotKey string) *Store {
	return &Store{
		subs:    make(map[int]chan Event),
		slot:    slot,
		slotKey: slotKey,
	}
}

// Get returns a copy of the current cart, or nil when empty. The second
// result reports whether the snapshot is unverified (restored from disk and
// not yet refetched).
func (s *Store) Get() (*domain.Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cart == nil {
		return nil, false
	}
	copied := *s.cart
	return &copied, s.unverified
}

// CartID returns the current cart id, or empty. Callers re-read this at the
// start of every operation rather than caching it across await points.
func (s *Store) CartID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cart == nil {
		return ""
	}
	return s.cart.ID
}

// Replace commits a full cart over the previous one and marks it verified.
func (s *Store) Replace(cart domain.Cart) {
	s.mu.Lock()
	copied := cart
	s.cart = &copied
	s.unverified = false
	s.mu.Unlock()

	// Subscribers get their own copy; the stored cart is never aliased out.
	delivered := cart
	s.notify(Event{Kind: Replaced, Cart: &delivered})
}

// Clear discards the snapshot.
func (s *Store) Clear() {
	s.mu.Lock()
	s.cart = nil
	s.unverified = false
	s.mu.Unlock()

	s.notify(Event{Kind: Cleared})
}

// Subscribe returns a channel observing replace/clear events and a cancel
// func. The channel is buffered; slow observers drop events rather than
// blocking commits.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify(evt Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Persist writes the current cart to the durable slot, or clears the slot
// when the store is empty.
func (s *Store) Persist(ctx context.Context) error {
	if s.slot == nil {
		return nil
	}

	s.mu.RLock()
	cart := s.cart
	s.mu.RUnlock()

	if cart == nil {
		if err := s.slot.Del(ctx, s.slotKey); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear persisted cart")
		}
		return nil
	}

	blob, err := json.Marshal(cart)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serialize cart snapshot")
	}
	if err := s.slot.Set(ctx, s.slotKey, string(blob)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cart snapshot")
	}
	return nil
}

// Restore loads the last persisted cart and marks it unverified: totals and
// shipping/payment state must not be trusted until a refetch-by-id succeeds.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.slot == nil {
		return false, nil
	}

	blob, err := s.slot.Get(ctx, s.slotKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read persisted cart")
	}

	var cart domain.Cart
	if err := json.Unmarshal([]byte(blob), &cart); err != nil || cart.ID == "" {
		// A corrupt slot is discarded rather than trusted.
		_ = s.slot.Del(ctx, s.slotKey)
		return false, nil
	}

	s.mu.Lock()
	s.cart = &cart
	s.unverified = true
	s.mu.Unlock()
	return true, nil
}
