package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/marisol-labs/storefront-core/internal/domain"
	"github.com/marisol-labs/storefront-core/internal/events"
	"github.com/marisol-labs/storefront-core/internal/snapshot"
	pkgerrors "github.com/marisol-labs/storefront-core/pkg/errors"
	"go.uber.org/multierr"
)

func customerWithDefaults() *domain.Customer {
	return &domain.Customer{
		ID:    "cus_1",
		Email: "ada@example.com",
		Addresses: []domain.Address{
			{ID: "addr_ship", FirstName: "Ada", LastName: "Lovelace", Address1: "12 Byron St",
				City: "London", CountryCode: "gb", PostalCode: "N1 9AA", IsDefaultShipping: true},
			{ID: "addr_bill", FirstName: "Ada", LastName: "Lovelace", Address1: "1 Analytical Way",
				City: "London", CountryCode: "gb", PostalCode: "EC1 1AA", IsDefaultBilling: true},
		},
	}
}

func TestAssociationAppliesBothDefaults(t *testing.T) {
	gw := &fakeGateway{}
	creds := &stubCreds{token: "tok", customer: customerWithDefaults()}
	orch, store := newTestOrchestrator(gw, creds)
	seedCart(store, domain.Cart{ID: "cart_1", RegionID: "reg_1"})

	if err := orch.AssociateCustomer(context.Background()); err != nil {
		t.Fatalf("AssociateCustomer: %v", err)
	}

	if n := gw.callCount("associate:cart_1"); n != 1 {
		t.Errorf("associate calls = %d, want 1", n)
	}
	if n := gw.callCount("update:cart_1:shipping_address"); n != 1 {
		t.Errorf("shipping submissions = %d, want 1", n)
	}
	if n := gw.callCount("update:cart_1:billing_address"); n != 1 {
		t.Errorf("billing submissions = %d, want 1", n)
	}
	// Exactly one refetch after the join barrier, never one per sub-op.
	if n := gw.callCount("get:"); n != 1 {
		t.Errorf("refetch calls = %d, want 1", n)
	}
}

func TestAssociationSameAddressSubmittedOnce(t *testing.T) {
	shared := domain.Address{
		ID: "addr_both", FirstName: "Ada", LastName: "Lovelace", Address1: "12 Byron St",
		City: "London", CountryCode: "gb", PostalCode: "N1 9AA",
		IsDefaultShipping: true, IsDefaultBilling: true,
	}
	gw := &fakeGateway{}
	creds := &stubCreds{token: "tok", customer: &domain.Customer{
		ID: "cus_1", Email: "ada@example.com", Addresses: []domain.Address{shared},
	}}
	orch, store := newTestOrchestrator(gw, creds)
	seedCart(store, domain.Cart{ID: "cart_1"})

	if err := orch.AssociateCustomer(context.Background()); err != nil {
		t.Fatalf("AssociateCustomer: %v", err)
	}
	if n := gw.callCount("update:cart_1:shipping_address:billing_address"); n != 1 {
		t.Errorf("combined submissions = %d, want 1 carrying both roles", n)
	}
	if n := gw.callCount("update:"); n != 1 {
		t.Errorf("total update calls = %d, want 1", n)
	}
}

func TestAssociationSkipsOwnedCart(t *testing.T) {
	slot := newMemSlot()
	blob, _ := json.Marshal(domain.Cart{ID: "cart_1", RegionID: "reg_1", CustomerID: "cus_1"})
	_ = slot.Set(context.Background(), "cart", string(blob))

	store := snapshot.New(slot, "cart")
	if _, err := store.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	// A fresh process has no in-memory association bookkeeping; the cart's
	// own customer id must be enough to skip the workflow.
	gw := &fakeGateway{}
	creds := &stubCreds{token: "tok", customer: customerWithDefaults()}
	orch, err := New(Params{Gateway: gw, Snapshots: store, Credentials: creds})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := orch.AssociateCustomer(context.Background()); err != nil {
		t.Fatalf("AssociateCustomer: %v", err)
	}
	if len(gw.calls) != 0 {
		t.Errorf("gateway calls = %v, want none for an already-owned cart", gw.calls)
	}
}

func TestAssociationIdempotentPerCart(t *testing.T) {
	gw := &fakeGateway{}
	creds := &stubCreds{token: "tok", customer: customerWithDefaults()}
	orch, store := newTestOrchestrator(gw, creds)
	seedCart(store, domain.Cart{ID: "cart_1"})

	if err := orch.AssociateCustomer(context.Background()); err != nil {
		t.Fatalf("first AssociateCustomer: %v", err)
	}
	before := len(gw.calls)

	if err := orch.AssociateCustomer(context.Background()); err != nil {
		t.Fatalf("second AssociateCustomer: %v", err)
	}
	if len(gw.calls) != before {
		t.Errorf("second run issued %d extra calls, want 0", len(gw.calls)-before)
	}
}

func TestAssociationFetchesProfileWhenSessionLacksOne(t *testing.T) {
	gw := &fakeGateway{
		onGetCustomer: func() ([]byte, error) {
			return []byte(`{"customer": {"id": "cus_1", "email": "ada@example.com",
				"addresses": [{"id": "addr_1", "first_name": "Ada", "last_name": "Lovelace",
				"address_1": "12 Byron St", "city": "London", "country_code": "gb",
				"postal_code": "N1 9AA", "is_default_shipping": true, "is_default_billing": true}]}}`), nil
		},
	}
	// Token only, no profile: the session shape after a restore.
	creds := &stubCreds{token: "tok"}
	orch, store := newTestOrchestrator(gw, creds)
	seedCart(store, domain.Cart{ID: "cart_1"})

	if err := orch.AssociateCustomer(context.Background()); err != nil {
		t.Fatalf("AssociateCustomer: %v", err)
	}
	if n := gw.callCount("get-customer"); n != 1 {
		t.Errorf("profile fetches = %d, want 1", n)
	}
	if n := gw.callCount("update:cart_1:shipping_address:billing_address"); n != 1 {
		t.Errorf("address submissions = %d, want 1 from the fetched profile", n)
	}
}

func TestAssociationUnreadableProfileFails(t *testing.T) {
	gw := &fakeGateway{
		onGetCustomer: func() ([]byte, error) {
			// An id alone does not pass for a customer; the probe needs
			// the email too.
			return []byte(`{"id": "cus_1"}`), nil
		},
	}
	creds := &stubCreds{token: "tok"}
	orch, store := newTestOrchestrator(gw, creds)
	seedCart(store, domain.Cart{ID: "cart_1"})

	err := orch.AssociateCustomer(context.Background())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodePrecondition {
		t.Errorf("error = %v, want precondition code", err)
	}
	if n := gw.callCount("update:"); n != 0 {
		t.Errorf("address submissions = %d, want 0", n)
	}
}

func TestAssociationNoDefaultAddresses(t *testing.T) {
	gw := &fakeGateway{}
	creds := &stubCreds{token: "tok", customer: &domain.Customer{ID: "cus_1", Email: "ada@example.com"}}
	orch, store := newTestOrchestrator(gw, creds)
	seedCart(store, domain.Cart{ID: "cart_1"})

	err := orch.AssociateCustomer(context.Background())
	if err == nil {
		t.Fatal("expected no-addresses error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNoAddresses {
		t.Errorf("error = %v, want no-addresses code", err)
	}
	if n := gw.callCount("update:"); n != 0 {
		t.Errorf("address submissions = %d, want 0", n)
	}
	// The association itself still ran and committed.
	if n := gw.callCount("associate:cart_1"); n != 1 {
		t.Errorf("associate calls = %d, want 1", n)
	}
}

func TestAssociationFailedSubOpDoesNotShortCircuit(t *testing.T) {
	gw := &fakeGateway{}
	gw.onUpdateCart = func(cartID string, payload any) ([]byte, error) {
		if m, ok := payload.(map[string]any); ok {
			if _, isBilling := m["billing_address"]; isBilling {
				return nil, pkgerrors.New(pkgerrors.CodeTransport, "gateway timeout")
			}
		}
		return cartBody(cartID, "reg_1", ""), nil
	}
	creds := &stubCreds{token: "tok", customer: customerWithDefaults()}
	orch, store := newTestOrchestrator(gw, creds)
	seedCart(store, domain.Cart{ID: "cart_1"})

	err := orch.AssociateCustomer(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if len(multierr.Errors(err)) != 1 {
		t.Errorf("combined errors = %v, want exactly the billing failure", multierr.Errors(err))
	}
	// The sibling shipping submission still went out, and the single refetch
	// still ran after the barrier.
	if n := gw.callCount("update:cart_1:shipping_address"); n != 1 {
		t.Errorf("shipping submissions = %d, want 1", n)
	}
	if n := gw.callCount("get:"); n != 1 {
		t.Errorf("refetch calls = %d, want 1", n)
	}
}

func TestAssociationTransientFailureCanRetry(t *testing.T) {
	attempts := 0
	gw := &fakeGateway{
		onAssociateCustomer: func(string) ([]byte, error) {
			attempts++
			if attempts == 1 {
				return nil, pkgerrors.New(pkgerrors.CodeTransport, "gateway timeout")
			}
			return cartBody("cart_1", "reg_1", `, "customer_id": "cus_1"`), nil
		},
	}
	creds := &stubCreds{token: "tok", customer: customerWithDefaults()}
	orch, store := newTestOrchestrator(gw, creds)
	seedCart(store, domain.Cart{ID: "cart_1"})

	if err := orch.AssociateCustomer(context.Background()); err == nil {
		t.Fatal("expected transient failure")
	}
	if err := orch.AssociateCustomer(context.Background()); err != nil {
		t.Fatalf("retry after transient failure: %v", err)
	}
	if attempts != 2 {
		t.Errorf("associate attempts = %d, want 2", attempts)
	}
}

func TestAssociationPreconditions(t *testing.T) {
	t.Run("no cart", func(t *testing.T) {
		orch, _ := newTestOrchestrator(&fakeGateway{}, &stubCreds{token: "tok"})
		err := orch.AssociateCustomer(context.Background())
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodePrecondition {
			t.Errorf("error = %v, want precondition code", err)
		}
	})
	t.Run("no token", func(t *testing.T) {
		orch, store := newTestOrchestrator(&fakeGateway{}, &stubCreds{})
		seedCart(store, domain.Cart{ID: "cart_1"})
		err := orch.AssociateCustomer(context.Background())
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodePrecondition {
			t.Errorf("error = %v, want precondition code", err)
		}
	})
}

func TestLoginEventTriggersAssociation(t *testing.T) {
	gw := &fakeGateway{}
	creds := &stubCreds{token: "tok", customer: customerWithDefaults()}

	store := snapshot.New(nil, "")
	store.Replace(domain.Cart{ID: "cart_1", RegionID: "reg_1"})
	bus := events.NewBus()
	if _, err := New(Params{Gateway: gw, Snapshots: store, Credentials: creds, Bus: bus}); err != nil {
		t.Fatalf("New: %v", err)
	}

	bus.Publish(events.Event{Kind: events.CustomerAuthenticated})

	deadline := time.Now().Add(2 * time.Second)
	for gw.callCount("associate:cart_1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("association never ran after login event")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLoginEventSkipsOwnedCart(t *testing.T) {
	gw := &fakeGateway{}
	creds := &stubCreds{token: "tok", customer: customerWithDefaults()}

	store := snapshot.New(nil, "")
	store.Replace(domain.Cart{ID: "cart_1", CustomerID: "cus_1"})
	bus := events.NewBus()
	if _, err := New(Params{Gateway: gw, Snapshots: store, Credentials: creds, Bus: bus}); err != nil {
		t.Fatalf("New: %v", err)
	}

	bus.Publish(events.Event{Kind: events.CustomerAuthenticated})
	time.Sleep(50 * time.Millisecond)

	if n := gw.callCount("associate:"); n != 0 {
		t.Errorf("associate calls = %d, want 0 for an owned cart", n)
	}
}
