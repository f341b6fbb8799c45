package orchestrator

import (
	"context"
	"fmt"

	"github.com/marisol-labs/storefront-core/internal/domain"
	"github.com/marisol-labs/storefront-core/internal/interpret"
	pkgerrors "github.com/marisol-labs/storefront-core/pkg/errors"
)

// EnsureOutcome tells the caller how ensureCartForRegion satisfied the
// request. Recreated silently lost the previous cart's line items, so calling
// code must be able to warn the user.
type EnsureOutcome string

const (
	EnsureCreated   EnsureOutcome = "created"
	EnsureUnchanged EnsureOutcome = "unchanged"
	EnsureUpdated   EnsureOutcome = "updated"
	EnsureRecreated EnsureOutcome = "recreated"
)

// CreateCart creates a fresh cart for the region. On success the machine is
// Active holding the new cart; on failure it stays Uninitialized when no
// prior cart exists.
func (o *Orchestrator) CreateCart(ctx context.Context, regionID string) (*domain.Cart, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.createCartLocked(ctx, regionID)
}

func (o *Orchestrator) createCartLocked(ctx context.Context, regionID string) (*domain.Cart, error) {
	if err := domain.ValidateRegionID(regionID); err != nil {
		return nil, err
	}

	hadCart := o.snapshots.CartID() != ""
	done := o.observe("create_cart", StateCreating)

	cart, err := o.createAndCommit(ctx, regionID)
	if err != nil {
		if hadCart {
			done(err, "")
		} else {
			done(err, StateUninitialized)
		}
		return nil, err
	}
	done(nil, "")

	// A signed-in customer's new cart is associated immediately; the create
	// itself already succeeded, so association failures only get logged.
	if o.creds.Token() != "" && !cart.HasCustomer() {
		if err := o.runAssociationLocked(ctx); err != nil {
			o.logError(ctx, "associating new cart failed", err)
		}
		if refreshed, _ := o.snapshots.Get(); refreshed != nil {
			cart = refreshed
		}
	}
	return cart, nil
}

func (o *Orchestrator) createAndCommit(ctx context.Context, regionID string) (*domain.Cart, error) {
	raw, err := o.gw.CreateCart(ctx, regionID)
	if err != nil {
		return nil, err
	}

	var cart domain.Cart
	if interpret.Entity(raw, cartOpts, &cart) != interpret.Decoded {
		// Without an id there is nothing to refetch; this is the one spot
		// where an unreadable success body is fatal to the operation.
		return nil, pkgerrors.New(pkgerrors.CodeTransport, "cart creation returned an unreadable body")
	}
	o.commit(ctx, cart)
	return &cart, nil
}

// EnsureCartForRegion guarantees an active cart in the given region. A cart
// in another region is updated in place when the backend allows it; when the
// region change is rejected (committed line items block a swap) the policy is
// discard-and-recreate, reported distinctly so the UI can warn about the
// lost items.
func (o *Orchestrator) EnsureCartForRegion(ctx context.Context, regionID string) (EnsureOutcome, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.ensureCartLocked(ctx, regionID)
}

func (o *Orchestrator) ensureCartLocked(ctx context.Context, regionID string) (EnsureOutcome, error) {
	if err := domain.ValidateRegionID(regionID); err != nil {
		return "", err
	}

	current, _ := o.snapshots.Get()
	if current == nil {
		if _, err := o.createCartLocked(ctx, regionID); err != nil {
			return "", err
		}
		return EnsureCreated, nil
	}
	if current.RegionID == regionID {
		return EnsureUnchanged, nil
	}

	done := o.observe("update_region", StateMutating)
	outcome, err := o.switchRegionLocked(ctx, current.ID, regionID)
	done(err, "")
	return outcome, err
}

func (o *Orchestrator) switchRegionLocked(ctx context.Context, cartID, regionID string) (EnsureOutcome, error) {
	payload := map[string]any{"region_id": regionID}

	raw, err := o.gw.UpdateCart(ctx, cartID, payload)
	if err != nil && pkgerrors.Retryable(err) {
		// A transient blip should not cost the user their cart; one retry
		// before falling back to recreation.
		o.logWarn(ctx, "region update failed, retrying once before recreating")
		raw, err = o.gw.UpdateCart(ctx, cartID, payload)
	}
	if err == nil {
		if _, err := o.commitOrRefetch(ctx, raw, cartID); err != nil {
			return "", err
		}
		return EnsureUpdated, nil
	}

	// Discard-and-recreate. This silently loses the previous cart's line
	// items, so it is logged and counted as its own outcome.
	o.logWarn(ctx, fmt.Sprintf("region update rejected, recreating cart in region %s", regionID))
	if o.metrics != nil {
		o.metrics.IncRecreation()
	}
	o.snapshots.Clear()
	if err := o.snapshots.Persist(ctx); err != nil {
		o.logError(ctx, "clearing persisted cart failed", err)
	}

	if _, err := o.createAndCommit(ctx, regionID); err != nil {
		return "", err
	}
	return EnsureRecreated, nil
}

// AddLineItem adds a variant to the cart, creating the cart first when none
// exists. The add is retried exactly once after cart creation, never more.
func (o *Orchestrator) AddLineItem(ctx context.Context, variantID string, quantity int, regionID string) error {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	if o.snapshots.CartID() == "" {
		if _, err := o.ensureCartLocked(ctx, regionID); err != nil {
			return err
		}
	}
	cartID := o.snapshots.CartID()
	if cartID == "" {
		return pkgerrors.New(pkgerrors.CodePrecondition, "no active cart")
	}

	done := o.observe("add_line_item", StateMutating)
	cart, err := o.mutateLineItem(ctx, cartID, func() ([]byte, error) {
		return o.gw.AddLineItem(ctx, cartID, variantID, quantity)
	})
	done(err, "")
	if err != nil {
		return err
	}

	// Association is chained fire-and-forget: the add already reported
	// success, whatever happens to the association.
	if o.creds.Token() != "" && !cart.HasCustomer() {
		if err := o.runAssociationLocked(ctx); err != nil {
			o.logError(ctx, "post-add cart association failed", err)
		}
	}
	return nil
}

// UpdateLineItem changes a line item quantity on the current cart.
func (o *Orchestrator) UpdateLineItem(ctx context.Context, lineItemID string, quantity int) error {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	cartID := o.snapshots.CartID()
	if cartID == "" {
		return pkgerrors.New(pkgerrors.CodePrecondition, "no active cart")
	}

	done := o.observe("update_line_item", StateMutating)
	_, err := o.mutateLineItem(ctx, cartID, func() ([]byte, error) {
		return o.gw.UpdateLineItem(ctx, cartID, lineItemID, quantity)
	})
	done(err, "")
	return err
}

// RemoveLineItem deletes a line item from the current cart.
func (o *Orchestrator) RemoveLineItem(ctx context.Context, lineItemID string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	cartID := o.snapshots.CartID()
	if cartID == "" {
		return pkgerrors.New(pkgerrors.CodePrecondition, "no active cart")
	}

	done := o.observe("remove_line_item", StateMutating)
	_, err := o.mutateLineItem(ctx, cartID, func() ([]byte, error) {
		return o.gw.RemoveLineItem(ctx, cartID, lineItemID)
	})
	done(err, "")
	return err
}

func (o *Orchestrator) mutateLineItem(ctx context.Context, cartID string, call func() ([]byte, error)) (*domain.Cart, error) {
	raw, err := call()
	if err != nil {
		return nil, err
	}
	return o.commitOrRefetch(ctx, raw, cartID)
}

// SetAddress submits a shipping or billing address. The mutation response is
// never trusted for this endpoint; a refetch-by-id follows every successful
// write as a deliberate consistency discipline.
func (o *Orchestrator) SetAddress(ctx context.Context, kind domain.AddressKind, address domain.Address) error {
	if !kind.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "address kind must be shipping or billing")
	}
	if err := domain.ValidateAddress(address); err != nil {
		return err
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	cartID := o.snapshots.CartID()
	if cartID == "" {
		return pkgerrors.New(pkgerrors.CodePrecondition, "no active cart")
	}

	done := o.observe("set_address", StateAddressEditing)
	err := o.submitAddressLocked(ctx, cartID, kind, address, true)
	done(err, "")
	return err
}

func (o *Orchestrator) submitAddressLocked(ctx context.Context, cartID string, kind domain.AddressKind, address domain.Address, refetchAfter bool) error {
	field := "shipping_address"
	if kind == domain.AddressBilling {
		field = "billing_address"
	}

	if _, err := o.gw.UpdateCart(ctx, cartID, map[string]any{field: address}); err != nil {
		return err
	}
	if !refetchAfter {
		return nil
	}
	_, err := o.refetch(ctx, cartID)
	return err
}

// SelectShippingOption submits a shipping option id. The endpoint's response
// shape varies; anything that is not a full cart falls back to the
// authoritative GET.
func (o *Orchestrator) SelectShippingOption(ctx context.Context, optionID string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	cartID := o.snapshots.CartID()
	if cartID == "" {
		return pkgerrors.New(pkgerrors.CodePrecondition, "no active cart")
	}

	done := o.observe("select_shipping_option", StateShippingSelecting)
	err := func() error {
		raw, err := o.gw.AddShippingMethod(ctx, cartID, optionID)
		if err != nil {
			return err
		}
		_, err = o.commitOrRefetch(ctx, raw, cartID)
		return err
	}()
	done(err, "")
	return err
}

// SelectPaymentProvider opens a payment session and refetches the cart so the
// snapshot carries the updated payment collection.
func (o *Orchestrator) SelectPaymentProvider(ctx context.Context, paymentCollectionID, providerID string) error {
	if paymentCollectionID == "" {
		return pkgerrors.New(pkgerrors.CodePrecondition, "payment collection id is required")
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	cartID := o.snapshots.CartID()
	if cartID == "" {
		return pkgerrors.New(pkgerrors.CodePrecondition, "no active cart")
	}

	done := o.observe("select_payment_provider", StatePaymentSelecting)
	err := func() error {
		if _, err := o.gw.CreatePaymentSession(ctx, paymentCollectionID, providerID); err != nil {
			return err
		}
		_, err := o.refetch(ctx, cartID)
		return err
	}()
	done(err, "")
	return err
}

// VerifySnapshot refreshes a snapshot restored from disk. Restored carts are
// unverified: totals and shipping/payment state cannot be trusted until the
// refetch-by-id succeeds. A cart the backend no longer knows is discarded.
func (o *Orchestrator) VerifySnapshot(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	cart, unverified := o.snapshots.Get()
	if cart == nil || !unverified {
		return nil
	}

	done := o.observe("verify_snapshot", StateMutating)
	_, err := o.refetch(ctx, cart.ID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			o.logWarn(ctx, "persisted cart no longer exists, discarding")
			o.snapshots.Clear()
			if perr := o.snapshots.Persist(ctx); perr != nil {
				o.logError(ctx, "clearing persisted cart failed", perr)
			}
			done(nil, StateUninitialized)
			return nil
		}
	}
	done(err, "")
	return err
}

// CompleteCart finalizes the cart. Success is terminal: the snapshot is
// cleared and the machine rests in Completed. Failure leaves the cart Active
// and retryable.
func (o *Orchestrator) CompleteCart(ctx context.Context) (*domain.Order, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	cartID := o.snapshots.CartID()
	if cartID == "" {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "no active cart")
	}

	done := o.observe("complete_cart", StateCompleting)

	raw, err := o.gw.CompleteCart(ctx, cartID)
	if err != nil {
		done(err, "")
		return nil, err
	}

	var order domain.Order
	if interpret.Entity(raw, orderOpts, &order) != interpret.Decoded {
		// The completion itself succeeded; the order payload was just not
		// readable. The cart is gone server-side either way.
		o.logWarn(ctx, "completion response unreadable, reporting minimal order")
	}

	o.snapshots.Clear()
	if err := o.snapshots.Persist(ctx); err != nil {
		o.logError(ctx, "clearing persisted cart failed", err)
	}
	o.logInfo(ctx, "cart completed")
	done(nil, StateCompleted)
	return &order, nil
}
