// Package orchestrator sequences cart lifecycle operations against the
// commerce gateway. It is the only writer of the snapshot store: every
// successful mutation commits a wholesale replace from an authoritative
// response or an explicit refetch, never a locally patched delta.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marisol-labs/storefront-core/internal/domain"
	"github.com/marisol-labs/storefront-core/internal/events"
	"github.com/marisol-labs/storefront-core/internal/interpret"
	"github.com/marisol-labs/storefront-core/internal/snapshot"
	pkgerrors "github.com/marisol-labs/storefront-core/pkg/errors"
	"github.com/marisol-labs/storefront-core/pkg/logger"
	"github.com/marisol-labs/storefront-core/pkg/metrics"
)

// State tracks where the cart lifecycle currently is. Active is the stable
// resting state; every operation is a round trip through one transient state
// and back, so failures never strand the machine outside Active/Completed.
type State string

const (
	StateUninitialized     State = "uninitialized"
	StateCreating          State = "creating"
	StateActive            State = "active"
	StateAssociating       State = "associating"
	StateMutating          State = "mutating"
	StateAddressEditing    State = "address_editing"
	StateShippingSelecting State = "shipping_selecting"
	StatePaymentSelecting  State = "payment_selecting"
	StateCompleting        State = "completing"
	StateCompleted         State = "completed"
)

// Gateway is the transport surface the orchestrator drives.
type Gateway interface {
	CreateCart(ctx context.Context, regionID string) ([]byte, error)
	GetCart(ctx context.Context, cartID string) ([]byte, error)
	UpdateCart(ctx context.Context, cartID string, payload any) ([]byte, error)
	AddLineItem(ctx context.Context, cartID, variantID string, quantity int) ([]byte, error)
	UpdateLineItem(ctx context.Context, cartID, lineItemID string, quantity int) ([]byte, error)
	RemoveLineItem(ctx context.Context, cartID, lineItemID string) ([]byte, error)
	AssociateCustomer(ctx context.Context, cartID string) ([]byte, error)
	GetCustomer(ctx context.Context) ([]byte, error)
	AddShippingMethod(ctx context.Context, cartID, optionID string) ([]byte, error)
	CreatePaymentSession(ctx context.Context, paymentCollectionID, providerID string) ([]byte, error)
	CompleteCart(ctx context.Context, cartID string) ([]byte, error)
}

// CredentialSource exposes the auth state the orchestrator reads fresh at the
// start of every operation.
type CredentialSource interface {
	Token() string
	Customer() *domain.Customer
}

var cartOpts = interpret.Options{WrapperKeys: []string{"cart", "data"}}
var orderOpts = interpret.Options{WrapperKeys: []string{"order", "data"}}

// Customer payloads need the probe gate: a bare object with an id is not
// enough to tell a customer from any other entity, so id and email must both
// be present before the strict decode runs.
var customerOpts = interpret.Options{
	WrapperKeys: []string{"customer", "data"},
	ProbeKeys:   []string{"id", "email"},
}

// Orchestrator is the cart state machine.
type Orchestrator struct {
	gw        Gateway
	snapshots *snapshot.Store
	creds     CredentialSource
	log       *logger.Logger
	metrics   *metrics.OperationMetrics

	// opMu serializes mutating operations so no two of them race on the
	// same cart id to completion without an intervening commit.
	opMu sync.Mutex

	stateMu      sync.RWMutex
	state        State
	errorMessage string

	assocMu    sync.Mutex
	associated map[string]bool
}

// Params wires an orchestrator.
type Params struct {
	Gateway     Gateway
	Snapshots   *snapshot.Store
	Credentials CredentialSource
	Bus         *events.Bus
	Logger      *logger.Logger
	Metrics     *metrics.OperationMetrics
}

// New validates the stack and subscribes to auth events. Bus, Logger and
// Metrics are optional.
func New(p Params) (*Orchestrator, error) {
	if p.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if p.Snapshots == nil {
		return nil, fmt.Errorf("snapshot store required")
	}
	if p.Credentials == nil {
		return nil, fmt.Errorf("credential source required")
	}

	o := &Orchestrator{
		gw:         p.Gateway,
		snapshots:  p.Snapshots,
		creds:      p.Credentials,
		log:        p.Logger,
		metrics:    p.Metrics,
		state:      StateUninitialized,
		associated: make(map[string]bool),
	}
	if p.Snapshots.CartID() != "" {
		o.setState(StateActive, "")
	}

	if p.Bus != nil {
		p.Bus.Subscribe(o.onAuthEvent)
	}
	return o, nil
}

// State returns the current machine state and the last error message, which
// is only meaningful while the state is Active.
func (o *Orchestrator) State() (State, string) {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state, o.errorMessage
}

func (o *Orchestrator) setState(next State, errorMessage string) {
	o.stateMu.Lock()
	o.state = next
	o.errorMessage = errorMessage
	o.stateMu.Unlock()
}

// onAuthEvent reacts to auth flips published on the event bus. Handlers are
// synchronous, so the real work moves to a goroutine.
func (o *Orchestrator) onAuthEvent(evt events.Event) {
	switch evt.Kind {
	case events.CustomerAuthenticated:
		cart, _ := o.snapshots.Get()
		if cart == nil || cart.HasCustomer() {
			return
		}
		go func() {
			ctx := context.Background()
			if err := o.AssociateCustomer(ctx); err != nil {
				o.logError(ctx, "post-login cart association failed", err)
			}
		}()
	case events.CustomerLoggedOut:
		// Outstanding requests complete harmlessly; only the association
		// bookkeeping resets so a future login can run the workflow again.
		o.assocMu.Lock()
		o.associated = make(map[string]bool)
		o.assocMu.Unlock()
	}
}

// commit replaces the snapshot wholesale and persists it; persistence
// failures are logged, never surfaced, because the in-memory state is
// already authoritative.
func (o *Orchestrator) commit(ctx context.Context, cart domain.Cart) {
	o.snapshots.Replace(cart)
	if err := o.snapshots.Persist(ctx); err != nil {
		o.logError(ctx, "persisting cart snapshot failed", err)
	}
}

// refetch issues the authoritative GET for the cart and commits the result.
// Here an undecodable body IS an error: a read has no write to fall back on.
func (o *Orchestrator) refetch(ctx context.Context, cartID string) (*domain.Cart, error) {
	if o.metrics != nil {
		o.metrics.IncRefetch()
	}

	raw, err := o.gw.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	var cart domain.Cart
	if interpret.Entity(raw, cartOpts, &cart) != interpret.Decoded {
		return nil, pkgerrors.New(pkgerrors.CodeTransport, "authoritative cart fetch returned an unreadable body")
	}
	o.commit(ctx, cart)
	return &cart, nil
}

// commitOrRefetch interprets a mutation response: a decoded cart commits
// directly, anything else falls back to the authoritative GET.
func (o *Orchestrator) commitOrRefetch(ctx context.Context, raw []byte, cartID string) (*domain.Cart, error) {
	var cart domain.Cart
	if interpret.Entity(raw, cartOpts, &cart) == interpret.Decoded {
		o.commit(ctx, cart)
		return &cart, nil
	}
	if o.log != nil {
		if interpret.AcknowledgedSuccess(raw) {
			o.log.Debug(ctx, "mutation acknowledged without a cart body, refetching")
		} else {
			o.log.Debug(ctx, "mutation response not decodable, refetching")
		}
	}
	return o.refetch(ctx, cartID)
}

// observe wraps one operation with state transitions and metrics. The
// returned func restores Active (or the supplied terminal state) and records
// the outcome.
func (o *Orchestrator) observe(op string, transient State) func(err error, terminal State) {
	start := time.Now()
	o.setState(transient, "")
	return func(err error, terminal State) {
		if o.metrics != nil {
			o.metrics.ObserveDuration(op, time.Since(start))
			if err != nil {
				o.metrics.IncFailure(op)
			} else {
				o.metrics.IncSuccess(op)
			}
		}
		if terminal != "" {
			o.setState(terminal, errorText(err))
			return
		}
		o.setState(StateActive, errorText(err))
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.MetadataFor(typed.Code()).PublicMessage
	}
	return "something went wrong"
}

func (o *Orchestrator) logError(ctx context.Context, msg string, err error) {
	if o.log != nil {
		o.log.Error(ctx, msg, err)
	}
}

func (o *Orchestrator) logWarn(ctx context.Context, msg string) {
	if o.log != nil {
		o.log.Warn(ctx, msg)
	}
}

func (o *Orchestrator) logInfo(ctx context.Context, msg string) {
	if o.log != nil {
		o.log.Info(ctx, msg)
	}
}
