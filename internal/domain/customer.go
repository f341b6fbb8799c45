package domain

// Customer owns its address book. Carts only ever embed copies of these
// addresses for shipping/billing.
type Customer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Addresses []Address `json:"addresses,omitempty"`
}

func (c *Customer) Identity() string {
	if c == nil {
		return ""
	}
	return c.ID
}

// DefaultShippingAddress returns the first address flagged default-shipping.
func (c *Customer) DefaultShippingAddress() *Address {
	return c.firstWithFlag(func(a Address) bool { return a.IsDefaultShipping.Bool() })
}

// DefaultBillingAddress returns the first address flagged default-billing.
func (c *Customer) DefaultBillingAddress() *Address {
	return c.firstWithFlag(func(a Address) bool { return a.IsDefaultBilling.Bool() })
}

func (c *Customer) firstWithFlag(match func(Address) bool) *Address {
	if c == nil {
		return nil
	}
	for i := range c.Addresses {
		if match(c.Addresses[i]) {
			return &c.Addresses[i]
		}
	}
	return nil
}
