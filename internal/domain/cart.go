package domain

import (
	"github.com/marisol-labs/storefront-core/pkg/types"
)

// Cart is the server-owned shopping session aggregate. The backend is the
// single writer of every monetary field; totals are never recomputed locally
// except as a display fallback on line items.
type Cart struct {
	ID           string `json:"id"`
	CurrencyCode string `json:"currency_code"`

	Total         types.Money `json:"total"`
	Subtotal      types.Money `json:"subtotal"`
	TaxTotal      types.Money `json:"tax_total"`
	ShippingTotal types.Money `json:"shipping_total"`
	DiscountTotal types.Money `json:"discount_total"`

	CustomerID string `json:"customer_id,omitempty"`
	RegionID   string `json:"region_id,omitempty"`
	Email      string `json:"email,omitempty"`

	Items []LineItem `json:"items"`

	ShippingAddress   *Address           `json:"shipping_address,omitempty"`
	BillingAddress    *Address           `json:"billing_address,omitempty"`
	PaymentCollection *PaymentCollection `json:"payment_collection,omitempty"`
	Promotions        []Promotion        `json:"promotions,omitempty"`
}

// Identity returns the aggregate id used by the decode fallback chain to tell
// a real entity apart from an acknowledgement-shaped payload.
func (c *Cart) Identity() string {
	if c == nil {
		return ""
	}
	return c.ID
}

// HasCustomer reports whether the cart has been associated with a customer.
func (c *Cart) HasCustomer() bool {
	return c != nil && c.CustomerID != ""
}

// ItemByID returns the line item with the given id, or nil.
func (c *Cart) ItemByID(lineItemID string) *LineItem {
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if c.Items[i].ID == lineItemID {
			return &c.Items[i]
		}
	}
	return nil
}

// LineItem is one cart entry. Quantity and prices tolerate the flexible
// scalar encodings described in pkg/types.
type LineItem struct {
	ID        string        `json:"id"`
	VariantID string        `json:"variant_id"`
	ProductID string        `json:"product_id"`
	Quantity  types.FlexInt `json:"quantity"`
	UnitPrice types.Money   `json:"unit_price"`
	Title     string        `json:"title,omitempty"`

	Total    *types.Money `json:"total,omitempty"`
	Subtotal *types.Money `json:"subtotal,omitempty"`
}

// DisplayTotal returns the computed total when the backend sent one, or the
// locally derived unit price times quantity. The derived value is for display
// only and is never submitted back to the server.
func (li LineItem) DisplayTotal() types.Money {
	if li.Total != nil {
		return *li.Total
	}
	return types.Money(li.UnitPrice.Int64() * int64(li.Quantity))
}

// Promotion is an applied discount, carried opaquely for display.
type Promotion struct {
	ID   string `json:"id"`
	Code string `json:"code,omitempty"`
}

// Order is the completion result returned when a cart transitions to its
// terminal state.
type Order struct {
	ID           string        `json:"id"`
	DisplayID    types.FlexInt `json:"display_id,omitempty"`
	Email        string        `json:"email,omitempty"`
	CurrencyCode string        `json:"currency_code,omitempty"`
	Total        types.Money   `json:"total"`
}

func (o *Order) Identity() string {
	if o == nil {
		return ""
	}
	return o.ID
}
