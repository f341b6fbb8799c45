package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/marisol-labs/storefront-core/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateAddress checks the required identity fields before an address is
// submitted to the gateway.
func ValidateAddress(addr Address) error {
	if err := validate.Struct(addr); err != nil {
		var fields []string
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "address is missing required fields").
			WithDetails(strings.Join(fields, ", "))
	}
	return nil
}

// ValidateQuantity enforces the positive-quantity rule on line item writes.
func ValidateQuantity(quantity int) error {
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	return nil
}

// ValidateRegionID rejects blank region identifiers before a network call.
func ValidateRegionID(regionID string) error {
	if strings.TrimSpace(regionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "region id is required")
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = verrs
	return true
}
