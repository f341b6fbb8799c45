package domain

import "github.com/marisol-labs/storefront-core/pkg/types"

// Address is either customer-owned (id required) or embedded on a cart as a
// copy (id optional). A cart embeds, never references: editing a customer
// address later does not change a cart's embedded copy.
type Address struct {
	ID string `json:"id,omitempty"`

	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Address1    string `json:"address_1" validate:"required"`
	City        string `json:"city" validate:"required"`
	CountryCode string `json:"country_code" validate:"required,len=2"`
	PostalCode  string `json:"postal_code" validate:"required"`

	Company  string `json:"company,omitempty"`
	Address2 string `json:"address_2,omitempty"`
	Province string `json:"province,omitempty"`
	Phone    string `json:"phone,omitempty"`

	IsDefaultShipping types.FlexBool `json:"is_default_shipping,omitempty"`
	IsDefaultBilling  types.FlexBool `json:"is_default_billing,omitempty"`
}

// AddressKind selects which cart address slot a submission targets.
type AddressKind string

const (
	AddressShipping AddressKind = "shipping"
	AddressBilling  AddressKind = "billing"
)

func (k AddressKind) Valid() bool {
	return k == AddressShipping || k == AddressBilling
}
