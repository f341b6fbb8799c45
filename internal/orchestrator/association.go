package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/marisol-labs/storefront-core/internal/domain"
	"github.com/marisol-labs/storefront-core/internal/interpret"
	pkgerrors "github.com/marisol-labs/storefront-core/pkg/errors"
	"go.uber.org/multierr"
)

// AssociateCustomer runs the fan-out/fan-in workflow that turns an anonymous
// cart into a customer-owned one: associate, apply the customer's default
// addresses concurrently, then refetch exactly once after every sub-operation
// settles.
func (o *Orchestrator) AssociateCustomer(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.runAssociationLocked(ctx)
}

func (o *Orchestrator) runAssociationLocked(ctx context.Context) error {
	cart, _ := o.snapshots.Get()
	if cart == nil {
		return pkgerrors.New(pkgerrors.CodePrecondition, "no active cart")
	}
	if o.creds.Token() == "" {
		return pkgerrors.New(pkgerrors.CodePrecondition, "no auth token")
	}

	cartID := cart.ID
	if cart.HasCustomer() {
		// A cart the server already ties to a customer needs no workflow.
		// This covers carts restored from disk, where the in-memory
		// bookkeeping below starts empty.
		o.assocMu.Lock()
		o.associated[cartID] = true
		o.assocMu.Unlock()
		return nil
	}

	// The workflow runs once per cart. A second call on an already-handled
	// cart must not duplicate address submissions.
	o.assocMu.Lock()
	if o.associated[cartID] {
		o.assocMu.Unlock()
		return nil
	}
	o.associated[cartID] = true
	o.assocMu.Unlock()

	done := o.observe("associate_customer", StateAssociating)
	err := o.associateAndApplyDefaults(ctx, cartID)
	done(err, "")

	if err != nil && pkgerrors.Retryable(err) {
		// Transient failures may be retried later; only a settled workflow
		// stays marked as run.
		o.assocMu.Lock()
		delete(o.associated, cartID)
		o.assocMu.Unlock()
	}
	return err
}

func (o *Orchestrator) associateAndApplyDefaults(ctx context.Context, cartID string) error {
	raw, err := o.gw.AssociateCustomer(ctx, cartID)
	if err != nil {
		return err
	}

	var cart domain.Cart
	if interpret.Entity(raw, cartOpts, &cart) == interpret.Decoded {
		o.commit(ctx, cart)
	}

	customer, err := o.customerProfile(ctx)
	if err != nil {
		return err
	}

	ops := planAddressOps(customer)
	if len(ops) == 0 {
		// Deliberate signal, not a transport failure: the caller should
		// know no addresses were applied.
		return pkgerrors.New(pkgerrors.CodeNoAddresses, "customer has no default addresses")
	}

	// Fan out. A failing sub-operation flips the error but never
	// short-circuits its sibling; the join barrier waits for all of them.
	var wg sync.WaitGroup
	errs := make([]error, len(ops))
	for i, op := range ops {
		wg.Add(1)
		go func(i int, op addressOp) {
			defer wg.Done()
			if _, err := o.gw.UpdateCart(ctx, cartID, op.payload); err != nil {
				errs[i] = fmt.Errorf("applying %s: %w", op.label, err)
			}
		}(i, op)
	}
	wg.Wait()

	// Exactly one authoritative refetch after the fan-in, regardless of
	// which sub-operation settled first.
	if _, err := o.refetch(ctx, cartID); err != nil {
		errs = append(errs, err)
	}

	return multierr.Combine(errs...)
}

// customerProfile prefers the stored session profile and falls back to the
// gateway when the session carries only a token, as a restored session does
// before its first profile refresh.
func (o *Orchestrator) customerProfile(ctx context.Context) (*domain.Customer, error) {
	if customer := o.creds.Customer(); customer != nil {
		return customer, nil
	}

	raw, err := o.gw.GetCustomer(ctx)
	if err != nil {
		return nil, err
	}
	var customer domain.Customer
	if interpret.Entity(raw, customerOpts, &customer) != interpret.Decoded {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "no customer profile")
	}
	return &customer, nil
}

type addressOp struct {
	label   string
	payload map[string]any
}

// planAddressOps selects at most one default shipping and one default billing
// address. When the same address carries both flags it counts as a single
// operation submitted once, covering both roles.
func planAddressOps(customer *domain.Customer) []addressOp {
	ship := customer.DefaultShippingAddress()
	bill := customer.DefaultBillingAddress()

	var ops []addressOp
	if ship != nil && bill != nil && ship.ID != "" && ship.ID == bill.ID {
		return []addressOp{{
			label: "default shipping+billing address",
			payload: map[string]any{
				"shipping_address": *ship,
				"billing_address":  *ship,
			},
		}}
	}
	if ship != nil {
		ops = append(ops, addressOp{
			label:   "default shipping address",
			payload: map[string]any{"shipping_address": *ship},
		})
	}
	if bill != nil {
		ops = append(ops, addressOp{
			label:   "default billing address",
			payload: map[string]any{"billing_address": *bill},
		})
	}
	return ops
}
