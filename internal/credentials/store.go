// Package credentials owns the persisted auth session: the raw bearer token
// and the authenticated customer profile. Both live in one durable slot and
// are restored at process start.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/marisol-labs/storefront-core/internal/domain"
	"github.com/marisol-labs/storefront-core/internal/events"
	"github.com/marisol-labs/storefront-core/internal/kv"
	pkgerrors "github.com/marisol-labs/storefront-core/pkg/errors"
)

type session struct {
	Token    string           `json:"token"`
	Customer *domain.Customer `json:"customer,omitempty"`
}

// Store holds the current auth session. Token reads are fresh on every call:
// operations must never cache a token across an await point, or they risk
// acting on credentials a concurrent logout already invalidated.
type Store struct {
	mu      sync.RWMutex
	current session

	slot    kv.Store
	slotKey string
	bus     *events.Bus
	now     func() time.Time
}

// New builds a credential store persisting to the given slot. bus may be nil.
func New(slot kv.Store, slotKey string, bus *events.Bus) *Store {
	return &Store{
		slot:    slot,
		slotKey: slotKey,
		bus:     bus,
		now:     time.Now,
	}
}

// SetSession stores the token and profile, persists them, and publishes the
// authenticated event.
func (s *Store) SetSession(ctx context.Context, token string, customer *domain.Customer) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return pkgerrors.New(pkgerrors.CodePrecondition, "auth token is required")
	}

	s.mu.Lock()
	s.current = session{Token: token, Customer: customer}
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		return err
	}

	if s.bus != nil {
		evt := events.Event{Kind: events.CustomerAuthenticated}
		if customer != nil {
			evt.CustomerID = customer.ID
		}
		s.bus.Publish(evt)
	}
	return nil
}

// Token returns the current bearer token, or empty when absent or expired.
func (s *Store) Token() string {
	s.mu.RLock()
	token := s.current.Token
	s.mu.RUnlock()

	if token == "" || s.expired(token) {
		return ""
	}
	return token
}

// Customer returns a copy of the stored profile, or nil.
func (s *Store) Customer() *domain.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current.Customer == nil {
		return nil
	}
	copied := *s.current.Customer
	return &copied
}

// Clear drops the session, wipes the persisted slot, and publishes logout.
// In-flight requests holding the old token complete harmlessly; their writes
// land on state the UI no longer reads as authenticated.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	customerID := ""
	if s.current.Customer != nil {
		customerID = s.current.Customer.ID
	}
	s.current = session{}
	s.mu.Unlock()

	if s.slot != nil {
		if err := s.slot.Del(ctx, s.slotKey); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear persisted session")
		}
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.CustomerLoggedOut, CustomerID: customerID})
	}
	return nil
}

// Restore loads the persisted session at startup. The profile is stale until
// refreshed from the gateway; an expired token simply reads as empty.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.slot == nil {
		return false, nil
	}

	blob, err := s.slot.Get(ctx, s.slotKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read persisted session")
	}

	var restored session
	if err := json.Unmarshal([]byte(blob), &restored); err != nil || restored.Token == "" {
		_ = s.slot.Del(ctx, s.slotKey)
		return false, nil
	}

	s.mu.Lock()
	s.current = restored
	s.mu.Unlock()
	return true, nil
}

func (s *Store) persist(ctx context.Context) error {
	if s.slot == nil {
		return nil
	}

	s.mu.RLock()
	blob, err := json.Marshal(s.current)
	s.mu.RUnlock()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serialize session")
	}
	if err := s.slot.Set(ctx, s.slotKey, string(blob)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist session")
	}
	return nil
}

// expired inspects the token's registered claims without verifying the
// signature; the client holds no signing secret. Opaque tokens carry no
// expiry information and are passed through.
func (s *Store) expired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(s.now())
}
