package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/marisol-labs/storefront-core/internal/domain"
	"github.com/marisol-labs/storefront-core/internal/snapshot"
)

// fakeGateway records every call and serves scriptable responses. Unscripted
// endpoints return a full cart body for cart_1.
type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	onCreateCart           func(regionID string) ([]byte, error)
	onGetCart              func(cartID string) ([]byte, error)
	onUpdateCart           func(cartID string, payload any) ([]byte, error)
	onAddLineItem          func(cartID, variantID string, quantity int) ([]byte, error)
	onUpdateLineItem       func(cartID, lineItemID string, quantity int) ([]byte, error)
	onRemoveLineItem       func(cartID, lineItemID string) ([]byte, error)
	onAssociateCustomer    func(cartID string) ([]byte, error)
	onGetCustomer          func() ([]byte, error)
	onAddShippingMethod    func(cartID, optionID string) ([]byte, error)
	onCreatePaymentSession func(paymentCollectionID, providerID string) ([]byte, error)
	onCompleteCart         func(cartID string) ([]byte, error)
}

func cartBody(id, regionID string, extra string) []byte {
	body := fmt.Sprintf(`{"cart": {"id": %q, "region_id": %q, "currency_code": "usd"%s}}`, id, regionID, extra)
	return []byte(body)
}

func (f *fakeGateway) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeGateway) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			count++
		}
	}
	return count
}

func (f *fakeGateway) CreateCart(ctx context.Context, regionID string) ([]byte, error) {
	f.record("create:" + regionID)
	if f.onCreateCart != nil {
		return f.onCreateCart(regionID)
	}
	return cartBody("cart_1", regionID, ""), nil
}

func (f *fakeGateway) GetCart(ctx context.Context, cartID string) ([]byte, error) {
	f.record("get:" + cartID)
	if f.onGetCart != nil {
		return f.onGetCart(cartID)
	}
	return cartBody(cartID, "reg_1", ""), nil
}

func (f *fakeGateway) UpdateCart(ctx context.Context, cartID string, payload any) ([]byte, error) {
	key := "update:" + cartID
	if m, ok := payload.(map[string]any); ok {
		for _, field := range []string{"region_id", "shipping_address", "billing_address"} {
			if _, present := m[field]; present {
				key += ":" + field
			}
		}
	}
	f.record(key)
	if f.onUpdateCart != nil {
		return f.onUpdateCart(cartID, payload)
	}
	return cartBody(cartID, "reg_1", ""), nil
}

func (f *fakeGateway) AddLineItem(ctx context.Context, cartID, variantID string, quantity int) ([]byte, error) {
	f.record(fmt.Sprintf("add-item:%s:%s:%d", cartID, variantID, quantity))
	if f.onAddLineItem != nil {
		return f.onAddLineItem(cartID, variantID, quantity)
	}
	return cartBody(cartID, "reg_1", ""), nil
}

func (f *fakeGateway) UpdateLineItem(ctx context.Context, cartID, lineItemID string, quantity int) ([]byte, error) {
	f.record(fmt.Sprintf("update-item:%s:%s:%d", cartID, lineItemID, quantity))
	if f.onUpdateLineItem != nil {
		return f.onUpdateLineItem(cartID, lineItemID, quantity)
	}
	return cartBody(cartID, "reg_1", ""), nil
}

func (f *fakeGateway) RemoveLineItem(ctx context.Context, cartID, lineItemID string) ([]byte, error) {
	f.record(fmt.Sprintf("remove-item:%s:%s", cartID, lineItemID))
	if f.onRemoveLineItem != nil {
		return f.onRemoveLineItem(cartID, lineItemID)
	}
	return cartBody(cartID, "reg_1", ""), nil
}

func (f *fakeGateway) AssociateCustomer(ctx context.Context, cartID string) ([]byte, error) {
	f.record("associate:" + cartID)
	if f.onAssociateCustomer != nil {
		return f.onAssociateCustomer(cartID)
	}
	return cartBody(cartID, "reg_1", `, "customer_id": "cus_1"`), nil
}

func (f *fakeGateway) GetCustomer(ctx context.Context) ([]byte, error) {
	f.record("get-customer")
	if f.onGetCustomer != nil {
		return f.onGetCustomer()
	}
	return []byte(`{"customer": {"id": "cus_1", "email": "ada@example.com"}}`), nil
}

func (f *fakeGateway) AddShippingMethod(ctx context.Context, cartID, optionID string) ([]byte, error) {
	f.record("shipping:" + cartID + ":" + optionID)
	if f.onAddShippingMethod != nil {
		return f.onAddShippingMethod(cartID, optionID)
	}
	return cartBody(cartID, "reg_1", ""), nil
}

func (f *fakeGateway) CreatePaymentSession(ctx context.Context, paymentCollectionID, providerID string) ([]byte, error) {
	f.record("payment-session:" + paymentCollectionID + ":" + providerID)
	if f.onCreatePaymentSession != nil {
		return f.onCreatePaymentSession(paymentCollectionID, providerID)
	}
	return []byte(`{"success": true}`), nil
}

func (f *fakeGateway) CompleteCart(ctx context.Context, cartID string) ([]byte, error) {
	f.record("complete:" + cartID)
	if f.onCompleteCart != nil {
		return f.onCompleteCart(cartID)
	}
	return []byte(fmt.Sprintf(`{"order": {"id": "order_1", "email": "a@b.co"}, "cart_id": %q}`, cartID)), nil
}

type stubCreds struct {
	mu       sync.Mutex
	token    string
	customer *domain.Customer
}

func (s *stubCreds) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *stubCreds) Customer() *domain.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customer
}

func newTestOrchestrator(gw *fakeGateway, creds CredentialSource) (*Orchestrator, *snapshot.Store) {
	store := snapshot.New(nil, "")
	orch, err := New(Params{
		Gateway:     gw,
		Snapshots:   store,
		Credentials: creds,
	})
	if err != nil {
		panic(err)
	}
	return orch, store
}

func seedCart(store *snapshot.Store, cart domain.Cart) {
	store.Replace(cart)
}
